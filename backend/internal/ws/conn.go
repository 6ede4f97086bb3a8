package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/backend/internal/protocol"
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	room     string
	clientID string
	// 出站帧队列，由 writeLoop 单独消费
	send chan []byte

	pongWait time.Duration
}

func NewConn(ws *websocket.Conn, hub *Hub, room, clientID string, queueSize int, pongWait time.Duration) *Conn {
	return &Conn{ws: ws, hub: hub, room: room, clientID: clientID, send: make(chan []byte, queueSize), pongWait: pongWait}
}

func (c *Conn) ClientID() string { return c.clientID }

// Enqueue 非阻塞入队，队列满了直接丢弃（指针数据会被后续事件覆盖）
func (c *Conn) Enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	// 先离开房间再关闭 send，保证广播不会写入已关闭的通道
	defer func() {
		c.hub.Leave(c.room, c)
		close(c.send)
	}()
	if c.pongWait > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		})
	}
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read error (client=%s, room=%s): %v", c.clientID, c.room, err)
			}
			return
		}
		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			log.Printf("drop frame (client=%s): %v", c.clientID, err)
			continue
		}
		switch env.Type {
		case protocol.ClientPointerEventName:
			ev, err := protocol.DecodeClientPointerEvent(env)
			if err != nil {
				log.Printf("drop frame (client=%s): %v", c.clientID, err)
				continue
			}
			c.hub.PublishPointer(ctx, c, ev)
		default:
			// 忽略未知类型
		}
	}
}

func (c *Conn) writeLoop(pingPeriod, writeWait time.Duration) {
	var ping <-chan time.Time
	if pingPeriod > 0 {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
