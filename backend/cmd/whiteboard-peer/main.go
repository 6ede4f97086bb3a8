package main

import (
	"context"
	"log"
	"math"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"whiteboard/backend/config"
	"whiteboard/backend/internal/drag"
	"whiteboard/backend/internal/drawing"
	"whiteboard/backend/internal/geometry"
	"whiteboard/backend/internal/pointer"
	"whiteboard/backend/internal/registry"
	"whiteboard/backend/internal/whiteboard"
)

// 无界面的对端：连接 relay，周期性画一笔，并打印其他人的光标
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	page, err := url.Parse(cfg.Peer.Page)
	if err != nil {
		log.Fatalf("invalid peer.page %q: %v", cfg.Peer.Page, err)
	}
	endpoint := pointer.Endpoint(page, cfg.Peer.Port) + "?room=" + url.QueryEscape(cfg.Peer.Room)

	s := cfg.Peer.Surface
	bounds := geometry.Bounds{Left: s.Left, Top: s.Top, Width: s.Width, Height: s.Height}
	canvas := drawing.NewCanvas(bounds)
	canvas.Observer = func(cmd drawing.Command) { log.Printf("draw: %s", cmd) }

	conn := pointer.NewConnection(pointer.Options{SendQueueSize: cfg.Pointer.SendQueueSize, WriteTimeout: cfg.Pointer.WriteWait})
	conn.OnDisconnect(func(err error) {
		log.Printf("pointer channel dropped, remote cursors frozen: %v", err)
	})
	connected := make(chan error, 1)
	conn.Connect(endpoint, func(err error) { connected <- err })

	session := whiteboard.Attach(whiteboard.Options{
		Canvas:       canvas,
		Channel:      conn,
		Cursors:      registry.CursorFactoryFunc(newLogCursor),
		CursorMaxAge: cfg.Peer.CursorMaxAge,
	})
	defer session.Detach()

	select {
	case err := <-connected:
		if err != nil {
			// 本地绘制不依赖网络
			log.Printf("connect %s failed: %v", endpoint, err)
		} else {
			log.Printf("connected to %s", endpoint)
		}
	case <-ctx.Done():
		return
	}

	intents := make(chan drag.Intent)
	go playStrokes(ctx, intents, bounds, cfg.Peer.StrokeInterval, conn.ID)

	if err := session.Run(ctx, intents); err != nil && ctx.Err() == nil {
		log.Printf("session stopped: %v", err)
	}

	if conn.State() != pointer.Unconnected {
		done := make(chan struct{})
		conn.Disconnect(func() { close(done) })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}

// playStrokes 模拟输入源：每隔 interval 在画布上画一个圆，再点一个点。
// self 返回服务端分配的 clientId，其他对端看到的光标就是这个 id。
func playStrokes(ctx context.Context, out chan<- drag.Intent, b geometry.Bounds, interval time.Duration, self func() string) {
	defer close(out)
	if interval <= 0 {
		interval = 2 * time.Second
	}
	cx, cy := b.Left+b.Width/2, b.Top+b.Height/2
	radius := math.Min(b.Width, b.Height) / 4
	const steps = 24

	send := func(in drag.Intent) bool {
		select {
		case out <- in:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		log.Printf("stroke: client=%s", self())
		if !send(drag.Start(cx+radius, cy)) {
			return
		}
		for i := 1; i <= steps; i++ {
			a := 2 * math.Pi * float64(i) / steps
			if !send(drag.Move(cx+radius*math.Cos(a), cy+radius*math.Sin(a), drag.OnSurface)) {
				return
			}
		}
		if !send(drag.End(drag.OnDocument)) {
			return
		}
		if !send(drag.Start(cx, cy)) || !send(drag.End(drag.OnSurface)) {
			return
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}

type logCursor struct {
	clientID string
}

func newLogCursor(clientID string) registry.Cursor {
	log.Printf("remote cursor appeared: client=%s", clientID)
	return &logCursor{clientID: clientID}
}

func (c *logCursor) MoveTo(p geometry.AbsolutePoint) {
	log.Printf("remote cursor: client=%s x=%.1f y=%.1f", c.clientID, p.X, p.Y)
}

func (c *logCursor) Remove() {
	log.Printf("remote cursor removed: client=%s", c.clientID)
}
