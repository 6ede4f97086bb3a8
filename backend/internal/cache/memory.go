package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"whiteboard/backend/internal/protocol"
)

type memoryCursor struct {
	pos      protocol.ClientPointerEvent
	expireAt time.Time
}

// 单实例部署（未配置 Redis）时使用的内存实现
type memoryPresence struct {
	mu    sync.Mutex
	now   func() time.Time
	rooms map[string]map[string]memoryCursor
}

func NewMemoryPresence() CursorPresence {
	return &memoryPresence{now: time.Now, rooms: make(map[string]map[string]memoryCursor)}
}

func (p *memoryPresence) Touch(ctx context.Context, room, clientID string, pos protocol.ClientPointerEvent, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rooms[room] == nil {
		p.rooms[room] = make(map[string]memoryCursor)
	}
	p.rooms[room][clientID] = memoryCursor{pos: pos, expireAt: p.now().Add(ttl)}
	return nil
}

func (p *memoryPresence) AliveCursors(ctx context.Context, room string) ([]protocol.ServerPointerEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	var out []protocol.ServerPointerEvent
	for id, c := range p.rooms[room] {
		if !c.expireAt.After(now) {
			delete(p.rooms[room], id)
			continue
		}
		out = append(out, c.pos.ToServerEvent(id))
	}
	if len(p.rooms[room]) == 0 {
		delete(p.rooms, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *memoryPresence) Remove(ctx context.Context, room, clientID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conns, ok := p.rooms[room]; ok {
		delete(conns, clientID)
		if len(conns) == 0 {
			delete(p.rooms, room)
		}
	}
	return nil
}

func (p *memoryPresence) Rooms(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]string, 0, len(p.rooms))
	for r := range p.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms, nil
}
