package registry

import (
	"sync"
	"time"

	"whiteboard/backend/internal/geometry"
	"whiteboard/backend/internal/protocol"
)

// Cursor 屏幕上代表某个远端客户端指针的元素
type Cursor interface {
	MoveTo(p geometry.AbsolutePoint)
	Remove()
}

// CursorFactory 为第一次出现的 clientId 创建光标元素
type CursorFactory interface {
	NewCursor(clientID string) Cursor
}

type CursorFactoryFunc func(clientID string) Cursor

func (f CursorFactoryFunc) NewCursor(clientID string) Cursor { return f(clientID) }

type entry struct {
	cursor   Cursor
	lastSeen time.Time
}

// Registry clientId -> 光标元素。
// 同一 clientId 的事件顺序由指针通道保证，这里不做乱序处理。
type Registry struct {
	factory CursorFactory
	surface geometry.Surface
	now     func() time.Time

	mu      sync.Mutex
	cursors map[string]*entry
}

func New(factory CursorFactory, surface geometry.Surface) *Registry {
	return &Registry{
		factory: factory,
		surface: surface,
		now:     time.Now,
		cursors: make(map[string]*entry),
	}
}

// OnRemoteEvent 首次见到的 clientId 创建光标，之后总是移动到事件位置
func (r *Registry) OnRemoteEvent(ev protocol.ServerPointerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cursors[ev.ID]
	if !ok {
		e = &entry{cursor: r.factory.NewCursor(ev.ID)}
		r.cursors[ev.ID] = e
	}
	e.lastSeen = r.now()
	rel := geometry.RelativePoint{X: ev.X, Y: ev.Y}
	e.cursor.MoveTo(geometry.ToAbsolute(rel, r.surface))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cursors)
}

func (r *Registry) Cursor(clientID string) (Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cursors[clientID]
	if !ok {
		return nil, false
	}
	return e.cursor, true
}

// Expire 移除 maxAge 内没有更新过的光标，返回被移除的 clientId。
// 对端断开后不会有显式的离开事件，靠超时清理。
func (r *Registry) Expire(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxAge)
	var removed []string
	for id, e := range r.cursors {
		if e.lastSeen.Before(cutoff) {
			e.cursor.Remove()
			delete(r.cursors, id)
			removed = append(removed, id)
		}
	}
	return removed
}
