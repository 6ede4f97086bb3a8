package pointer

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/backend/internal/geometry"
	"whiteboard/backend/internal/protocol"
)

type State int

const (
	Unconnected State = iota
	Connecting
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// PreconditionError 调用顺序错误（编程错误），以 panic 的形式抛出
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return "pointer: " + e.Op + ": " + e.Reason
}

func precondition(op, reason string) {
	panic(&PreconditionError{Op: op, Reason: reason})
}

type Options struct {
	// SendQueueSize 写循环前的有界通道，满了直接丢弃
	SendQueueSize    int
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	// CloseGrace 主动断开时等待对端回 close 帧的时间
	CloseGrace time.Duration
}

// Connection 指针通道：通过 websocket 发送本地指针、接收远端指针。
//
// 同一时刻只允许注册一个入站处理函数；处理函数在读循环 goroutine 上按到达顺序逐个调用。
// 传输层故障只体现为状态变为 Disconnected 并回调 OnDisconnect，
// SendPointerLocation 永远不会因为网络问题报错。
type Connection struct {
	dialer *websocket.Dialer
	opt    Options

	mu            sync.Mutex
	state         State
	connectCalled bool
	closeWanted   bool
	closing       bool   // Disconnect 已发出 close 帧，等待读循环退出
	dialGen       uint64 // 每次 Connect 加一，过期的拨号结果直接丢弃
	ws            *websocket.Conn
	id            string
	send          chan []byte
	handler       func(protocol.ServerPointerEvent)
	handlerGen    uint64
	onDisconnect  func(error)
	disconnected  func()
}

func NewConnection(opt Options) *Connection {
	if opt.SendQueueSize <= 0 {
		opt.SendQueueSize = 32
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = time.Second
	}
	if opt.HandshakeTimeout <= 0 {
		opt.HandshakeTimeout = 5 * time.Second
	}
	if opt.CloseGrace <= 0 {
		opt.CloseGrace = time.Second
	}
	return &Connection{
		dialer: &websocket.Dialer{HandshakeTimeout: opt.HandshakeTimeout},
		opt:    opt,
	}
}

// Endpoint 由当前页面的协议、主机名加上配置的端口得出连接地址
func Endpoint(page *url.URL, port int) string {
	scheme := "ws"
	if page.Scheme == "https" || page.Scheme == "wss" {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(page.Hostname(), strconv.Itoa(port)),
		Path:   "/ws",
	}
	return u.String()
}

// Connect 异步建立连接，完成（或失败）后回调 onConnected。
// 上一次 Connect 尚未结束或已连接时再次调用会 panic。
func (c *Connection) Connect(endpoint string, onConnected func(error)) {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		precondition("Connect", "already "+c.state.String())
	}
	c.connectCalled = true
	c.closeWanted = false
	c.state = Connecting
	c.id = ""
	c.dialGen++
	gen := c.dialGen
	c.mu.Unlock()

	go c.dial(endpoint, gen, onConnected)
}

func (c *Connection) dial(endpoint string, gen uint64, onConnected func(error)) {
	ws, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		log.Printf("pointer dial failed (endpoint=%s): %v", endpoint, err)
		c.mu.Lock()
		if c.dialGen == gen && c.state == Connecting {
			c.state = Disconnected
		}
		c.mu.Unlock()
		if onConnected != nil {
			onConnected(err)
		}
		return
	}

	c.mu.Lock()
	if c.dialGen != gen || c.closeWanted {
		// 连接过程中已经 Disconnect，或者已经被新的 Connect 取代
		if c.dialGen == gen {
			c.state = Disconnected
		}
		c.mu.Unlock()
		_ = ws.Close()
		if onConnected != nil {
			onConnected(fmt.Errorf("pointer: disconnected while connecting to %s", endpoint))
		}
		return
	}
	send := make(chan []byte, c.opt.SendQueueSize)
	c.ws = ws
	c.send = send
	c.state = Connected
	c.mu.Unlock()

	go c.writeLoop(ws, send)
	go c.readLoop(ws)

	if onConnected != nil {
		onConnected(nil)
	}
}

// Disconnect 关闭连接，读循环退出后回调 onDisconnected
func (c *Connection) Disconnect(onDisconnected func()) {
	c.mu.Lock()
	if !c.connectCalled {
		c.mu.Unlock()
		precondition("Disconnect", "connection used before Connect() called")
	}
	if c.closing {
		c.mu.Unlock()
		precondition("Disconnect", "disconnect already in progress")
	}
	ws := c.ws
	if ws == nil {
		c.closeWanted = true
		c.state = Disconnected
		c.mu.Unlock()
		if onDisconnected != nil {
			go onDisconnected()
		}
		return
	}
	c.closing = true
	c.disconnected = onDisconnected
	c.mu.Unlock()

	// WriteControl 可以和写循环并发调用
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opt.WriteTimeout)); err != nil {
		_ = ws.Close()
		return
	}
	time.AfterFunc(c.opt.CloseGrace, func() { _ = ws.Close() })
}

// SendPointerLocation 发出本地指针位置，不确认、不重试、断线期间直接丢弃
func (c *Connection) SendPointerLocation(p geometry.RelativePoint) {
	frame, err := protocol.ClientPointerEvent{X: p.X, Y: p.Y}.Encode()
	if err != nil {
		log.Printf("encode pointer event error: %v", err)
		frame = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connectCalled {
		precondition("SendPointerLocation", "connection used before Connect() called")
	}
	if c.state != Connected || frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		// 队列满了，丢弃；后续移动事件会覆盖这次位置
	}
}

// OnPointerLocation 注册唯一的入站处理函数，返回取消函数。
// 已有处理函数时再注册会 panic；取消后可以重新注册。
func (c *Connection) OnPointerLocation(h func(protocol.ServerPointerEvent)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connectCalled {
		precondition("OnPointerLocation", "connection used before Connect() called")
	}
	if c.handler != nil {
		precondition("OnPointerLocation", "pointer handler already registered")
	}
	c.handlerGen++
	gen := c.handlerGen
	c.handler = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.handlerGen == gen {
			c.handler = nil
		}
	}
}

// OnDisconnect 传输层故障导致断线时回调（主动 Disconnect 不触发）
func (c *Connection) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

// ID 服务端分配给本连接的 clientId；收到服务端通知之前为空
func (c *Connection) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) currentHandler() func(protocol.ServerPointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Connection) readLoop(ws *websocket.Conn) {
	var readErr error
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			log.Printf("drop inbound frame: %v", err)
			continue
		}
		if env.Type == protocol.ClientIDEventName {
			hello, err := protocol.DecodeClientIDEvent(env)
			if err != nil {
				log.Printf("drop inbound frame: %v", err)
				continue
			}
			c.mu.Lock()
			if c.ws == ws {
				c.id = hello.ID
			}
			c.mu.Unlock()
			continue
		}
		if env.Type != protocol.ServerPointerEventName {
			continue
		}
		ev, err := protocol.DecodeServerPointerEvent(env)
		if err != nil {
			log.Printf("drop inbound frame: %v", err)
			continue
		}
		if h := c.currentHandler(); h != nil {
			h(ev)
		}
	}
	_ = ws.Close()

	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
		c.closing = false
		c.state = Disconnected
		close(c.send)
		c.send = nil
	}
	done := c.disconnected
	c.disconnected = nil
	listener := c.onDisconnect
	c.mu.Unlock()

	if done != nil {
		done()
		return
	}
	if listener != nil {
		listener(readErr)
	}
}

func (c *Connection) writeLoop(ws *websocket.Conn, send <-chan []byte) {
	for frame := range send {
		_ = ws.SetWriteDeadline(time.Now().Add(c.opt.WriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("pointer write error: %v", err)
			// 关闭后读循环会退出并把状态置为 Disconnected
			_ = ws.Close()
			return
		}
	}
}
