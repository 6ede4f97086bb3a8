package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whiteboard/backend/internal/activity"
	"whiteboard/backend/internal/protocol"
)

const DefaultRoom = "default"

// ActivitySink 接收上线/下线事件，*activity.Dispatcher 满足该接口
type ActivitySink interface {
	Enqueue(ctx context.Context, evt activity.PeerEvent) error
}

type ManagerOptions struct {
	// AllowedOrigins Origin 前缀白名单；为空时只允许本地开发环境
	AllowedOrigins []string
	SendQueueSize  int
	MaxMessageSize int64
	PongWait       time.Duration
	WriteWait      time.Duration
	// Instance 写入活动事件，区分多实例部署
	Instance string
}

type Manager struct {
	h        *Hub
	sink     ActivitySink
	opt      ManagerOptions
	upgrader websocket.Upgrader
}

var localOrigins = []string{
	"http://localhost",
	"http://127.0.0.1",
	"https://localhost",
	"https://127.0.0.1",
}

func NewManager(h *Hub, sink ActivitySink, opt ManagerOptions) *Manager {
	if opt.SendQueueSize <= 0 {
		opt.SendQueueSize = 64
	}
	if opt.MaxMessageSize <= 0 {
		opt.MaxMessageSize = 1024
	}
	if opt.WriteWait <= 0 {
		opt.WriteWait = 5 * time.Second
	}
	allowed := opt.AllowedOrigins
	if len(allowed) == 0 {
		allowed = localOrigins
	}
	m := &Manager{h: h, sink: sink, opt: opt}
	m.upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
			return true
		}
		for _, p := range allowed {
			if p == "*" || strings.HasPrefix(origin, p) {
				return true
			}
		}
		return false
	}}
	return m
}

// WebSocketConnect 升级连接，分配 clientId，回放房间内的存活光标，然后进入读循环（阻塞至连接关闭）
func (m *Manager) WebSocketConnect(c *gin.Context) {
	room := c.DefaultQuery("room", DefaultRoom)

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(m.opt.MaxMessageSize)

	ctx := c.Request.Context()
	clientID := uuid.NewString()
	wsConn := NewConn(conn, m.h, room, clientID, m.opt.SendQueueSize, m.opt.PongWait)

	// 第一帧告诉客户端自己的 clientId
	if hello, err := (protocol.ClientIDEvent{ID: wsConn.ClientID()}).Encode(); err == nil {
		wsConn.Enqueue(hello)
	}

	// 先回放再加入房间：回放的位置不会晚于之后的实时事件
	snapshot, err := m.h.Snapshot(ctx, room)
	if err != nil {
		log.Printf("load cursor snapshot error (room=%s): %v", room, err)
	}
	for _, ev := range snapshot {
		frame, err := ev.Encode()
		if err != nil {
			continue
		}
		wsConn.Enqueue(frame)
	}
	m.h.Join(room, wsConn)
	m.emit(ctx, activity.PeerJoined, room, clientID)
	log.Printf("client joined: client=%s room=%s members=%d", clientID, room, m.h.Members(room))

	var pingPeriod time.Duration
	if m.opt.PongWait > 0 {
		pingPeriod = m.opt.PongWait * 9 / 10
	}
	writeDone := make(chan struct{})
	go func() {
		wsConn.writeLoop(pingPeriod, m.opt.WriteWait)
		close(writeDone)
	}()

	wsConn.readLoop(ctx)
	<-writeDone

	// 请求上下文可能已经取消，清理用独立的上下文
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.h.forget(cleanupCtx, room, clientID)
	m.emit(cleanupCtx, activity.PeerLeft, room, clientID)
	log.Printf("client left: client=%s room=%s", clientID, room)
}

// Cursors GET /rooms/:room/cursors
func (m *Manager) Cursors(c *gin.Context) {
	room := c.Param("room")
	cursors, err := m.h.Snapshot(c.Request.Context(), room)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cursors == nil {
		c.JSON(http.StatusOK, gin.H{"room": room, "cursors": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "cursors": cursors})
}

// Rooms GET /rooms，列出还有存活光标的房间
func (m *Manager) Rooms(c *gin.Context) {
	rooms, err := m.h.Rooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rooms == nil {
		rooms = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (m *Manager) emit(ctx context.Context, eventType, room, clientID string) {
	if m.sink == nil {
		return
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	evt := activity.PeerEvent{EventType: eventType, Room: room, ClientID: clientID, Instance: m.opt.Instance, At: time.Now()}
	if err := m.sink.Enqueue(enqueueCtx, evt); err != nil {
		log.Printf("enqueue activity event error (type=%s, client=%s): %v", eventType, clientID, err)
	}
}
