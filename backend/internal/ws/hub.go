package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"whiteboard/backend/internal/cache"
	"whiteboard/backend/internal/protocol"
)

// Relay 把本实例的指针事件转发给其他实例
type Relay interface {
	Publish(ctx context.Context, room string, frame []byte) error
}

type Hub struct {
	// 外部存储句柄（一般是 Redis），记录每个客户端最后的位置，供新加入者回放
	presence  cache.CursorPresence
	relay     Relay
	cursorTTL time.Duration

	// 保护 rooms；广播时持有读锁，避免向已关闭的 send 通道写入
	mu sync.RWMutex
	// room -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.CursorPresence, relay Relay, cursorTTL time.Duration) *Hub {
	return &Hub{presence: p, relay: relay, cursorTTL: cursorTTL, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定房间
func (h *Hub) Join(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

// Leave 将连接从指定房间移除
func (h *Hub) Leave(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Members 房间内本实例上的连接数
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// PublishPointer 把某个客户端的指针位置广播给同房间的其他连接。
// 同一发送方的事件在其读循环里依次入队，接收方看到的顺序与发送顺序一致。
func (h *Hub) PublishPointer(ctx context.Context, from *Conn, ev protocol.ClientPointerEvent) {
	frame, err := ev.ToServerEvent(from.clientID).Encode()
	if err != nil {
		log.Printf("encode server pointer event error (client=%s): %v", from.clientID, err)
		return
	}
	// 先记录位置再广播：收到实时事件的一方随后拉取快照时一定能看到这次位置
	if h.presence != nil {
		if err := h.presence.Touch(ctx, from.room, from.clientID, ev, h.cursorTTL); err != nil {
			log.Printf("touch cursor error (room=%s, client=%s): %v", from.room, from.clientID, err)
		}
	}
	h.broadcast(from.room, from, frame)
	if h.relay != nil {
		if err := h.relay.Publish(ctx, from.room, frame); err != nil {
			log.Printf("relay publish error (room=%s): %v", from.room, err)
		}
	}
}

// DeliverRemote 其他实例转发过来的事件，投递给本实例该房间的全部连接
func (h *Hub) DeliverRemote(room string, frame []byte) {
	h.broadcast(room, nil, frame)
}

func (h *Hub) broadcast(room string, except *Conn, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		c.Enqueue(frame)
	}
}

// Snapshot 房间当前存活的光标，用于给新连接回放
func (h *Hub) Snapshot(ctx context.Context, room string) ([]protocol.ServerPointerEvent, error) {
	if h.presence == nil {
		return nil, nil
	}
	return h.presence.AliveCursors(ctx, room)
}

// Rooms 有存活光标的房间（多实例时包含其他实例上的房间）
func (h *Hub) Rooms(ctx context.Context) ([]string, error) {
	if h.presence == nil {
		return nil, nil
	}
	return h.presence.Rooms(ctx)
}

func (h *Hub) forget(ctx context.Context, room, clientID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Remove(ctx, room, clientID); err != nil {
		log.Printf("remove cursor error (room=%s, client=%s): %v", room, clientID, err)
	}
}
