package whiteboard

import (
	"context"
	"log"
	"sync"
	"time"

	"whiteboard/backend/internal/drag"
	"whiteboard/backend/internal/geometry"
	"whiteboard/backend/internal/protocol"
	"whiteboard/backend/internal/registry"
)

// Canvas 绘图区域适配器需要提供的能力
type Canvas interface {
	geometry.Surface
	drag.Renderer
	Clear()
}

// PointerChannel 会话用到的指针通道子集，*pointer.Connection 满足该接口
type PointerChannel interface {
	SendPointerLocation(p geometry.RelativePoint)
	OnPointerLocation(h func(protocol.ServerPointerEvent)) (cancel func())
}

type Options struct {
	Canvas Canvas
	// Channel 为空时只做本地绘制；绘制从不依赖网络状态
	Channel PointerChannel
	Cursors registry.CursorFactory
	// CursorMaxAge > 0 时 Run 会定期清理这么久没有更新的远端光标
	CursorMaxAge time.Duration
	// RemoteBuffer 入站事件交给 Run 之前的缓冲
	RemoteBuffer int
}

// Session 一次绘图区域挂载对应的上下文。
// 没有挂载就没有 Session，因此不存在重复初始化的问题。
// Dispatch/Clear/Detach/Run 只能在同一个 goroutine 上调用；
// 入站指针事件由通道的读 goroutine 投递，统一在 Run 中处理。
type Session struct {
	canvas   Canvas
	machine  *drag.Machine
	channel  PointerChannel
	cursors  *registry.Registry
	maxAge   time.Duration
	remote   chan protocol.ServerPointerEvent
	closed   chan struct{}
	once     sync.Once
	detached bool
	cancel   func()
}

func Attach(opt Options) *Session {
	if opt.RemoteBuffer <= 0 {
		opt.RemoteBuffer = 64
	}
	s := &Session{
		canvas:  opt.Canvas,
		machine: drag.NewMachine(opt.Canvas),
		channel: opt.Channel,
		maxAge:  opt.CursorMaxAge,
		remote:  make(chan protocol.ServerPointerEvent, opt.RemoteBuffer),
		closed:  make(chan struct{}),
	}
	if opt.Cursors != nil {
		s.cursors = registry.New(opt.Cursors, opt.Canvas)
	}
	if s.channel != nil && s.cursors != nil {
		s.cancel = s.channel.OnPointerLocation(s.enqueueRemote)
	}
	return s
}

func (s *Session) enqueueRemote(ev protocol.ServerPointerEvent) {
	select {
	case s.remote <- ev:
	case <-s.closed:
	}
}

// Dispatch 处理一个输入意图。
// start 只在绘图区域上生效；move/end 在 document 级别收到同样驱动拖拽，
// 这样拖出绘图区域后拖拽不会卡住。
func (s *Session) Dispatch(in drag.Intent) {
	if s.detached {
		return
	}
	switch in.Kind {
	case drag.KindStart:
		if in.Target != drag.OnSurface {
			return
		}
		s.machine.Start(geometry.ToRelative(in.Point, s.canvas))
	case drag.KindMove:
		rel := geometry.ToRelative(in.Point, s.canvas)
		s.machine.Move(rel)
		if s.channel != nil {
			s.channel.SendPointerLocation(rel)
		}
	case drag.KindEnd:
		s.machine.End()
	case drag.KindCancel:
		s.machine.Cancel()
	case drag.KindMultiTouch:
		s.machine.MultiTouchDetected()
	default:
		log.Printf("ignore unknown intent: %v", in.Kind)
	}
}

// Clear 用户主动清屏
func (s *Session) Clear() {
	if s.detached {
		return
	}
	s.canvas.Clear()
}

func (s *Session) Dragging() bool { return s.machine.Dragging() }

// Cursors 远端光标表；没有配置 CursorFactory 时为 nil
func (s *Session) Cursors() *registry.Registry { return s.cursors }

// Detach 绘图区域已从文档移除；之后的意图都被忽略，入站处理函数被注销
func (s *Session) Detach() {
	s.once.Do(func() {
		s.detached = true
		close(s.closed)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Run 事件循环：依次处理输入意图和入站指针事件，直到 ctx 结束、输入关闭或 Detach。
// Run 返回时会话随之 Detach，通道的读 goroutine 不会卡在处理函数里。
func (s *Session) Run(ctx context.Context, intents <-chan drag.Intent) error {
	defer s.Detach()
	var sweep <-chan time.Time
	if s.maxAge > 0 && s.cursors != nil {
		t := time.NewTicker(s.maxAge / 2)
		defer t.Stop()
		sweep = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		case in, ok := <-intents:
			if !ok {
				s.drainRemote()
				return nil
			}
			s.Dispatch(in)
		case ev := <-s.remote:
			s.cursors.OnRemoteEvent(ev)
		case <-sweep:
			for _, id := range s.cursors.Expire(s.maxAge) {
				log.Printf("remote cursor expired: client=%s", id)
			}
		}
	}
}

// drainRemote 处理已经缓冲的入站事件
func (s *Session) drainRemote() {
	for {
		select {
		case ev := <-s.remote:
			s.cursors.OnRemoteEvent(ev)
		default:
			return
		}
	}
}
