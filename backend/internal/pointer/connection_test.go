package pointer

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/backend/internal/geometry"
	"whiteboard/backend/internal/protocol"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// echoServer 把收到的 clientPointerEvent 以 id=peer 的 serverPointerEvent 回发。
// 连接建立后先告知 clientId=me，再发一条坏帧和一条未知类型，客户端应当忽略。
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		hello, _ := protocol.ClientIDEvent{ID: "me"}.Encode()
		_ = ws.WriteMessage(websocket.TextMessage, hello)
		_ = ws.WriteMessage(websocket.TextMessage, []byte("garbage"))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome","data":{}}`))
		for {
			_, frame, err := ws.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.DecodeEnvelope(frame)
			if err != nil {
				continue
			}
			ev, err := protocol.DecodeClientPointerEvent(env)
			if err != nil {
				continue
			}
			out, _ := ev.ToServerEvent("peer").Encode()
			if err := ws.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func mustPanicPrecondition(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("%s: expected panic", name)
		}
		if _, ok := r.(*PreconditionError); !ok {
			t.Fatalf("%s: panic value = %#v, want *PreconditionError", name, r)
		}
	}()
	fn()
}

func connect(t *testing.T, c *Connection, endpoint string) {
	t.Helper()
	done := make(chan error, 1)
	c.Connect(endpoint, func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Connect() timed out")
	}
}

func TestConnection_UseBeforeConnectPanics(t *testing.T) {
	c := NewConnection(Options{})
	mustPanicPrecondition(t, "SendPointerLocation", func() { c.SendPointerLocation(geometry.RelativePoint{}) })
	mustPanicPrecondition(t, "Disconnect", func() { c.Disconnect(nil) })
	mustPanicPrecondition(t, "OnPointerLocation", func() { c.OnPointerLocation(func(protocol.ServerPointerEvent) {}) })
	if c.IsConnected() || c.State() != Unconnected {
		t.Fatalf("state = %v, want unconnected", c.State())
	}
}

func TestConnection_SendAndReceiveInOrder(t *testing.T) {
	srv := echoServer(t)
	c := NewConnection(Options{})
	connect(t, c, wsURL(srv))
	if !c.IsConnected() {
		t.Fatalf("IsConnected() = false after connect")
	}

	got := make(chan protocol.ServerPointerEvent, 16)
	cancel := c.OnPointerLocation(func(ev protocol.ServerPointerEvent) { got <- ev })
	defer cancel()

	for i := 1; i <= 3; i++ {
		c.SendPointerLocation(geometry.RelativePoint{X: float64(i), Y: float64(i * 10)})
	}
	for i := 1; i <= 3; i++ {
		select {
		case ev := <-got:
			want := protocol.ServerPointerEvent{ID: "peer", X: float64(i), Y: float64(i * 10)}
			if ev != want {
				t.Fatalf("event %d = %+v, want %+v", i, ev, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestConnection_SecondHandlerPanicsUntilCancelled(t *testing.T) {
	srv := echoServer(t)
	c := NewConnection(Options{})
	connect(t, c, wsURL(srv))

	cancel := c.OnPointerLocation(func(protocol.ServerPointerEvent) {})
	mustPanicPrecondition(t, "second OnPointerLocation", func() {
		c.OnPointerLocation(func(protocol.ServerPointerEvent) {})
	})
	cancel()
	// 旧的取消函数不能影响新注册的处理函数
	cancel2 := c.OnPointerLocation(func(protocol.ServerPointerEvent) {})
	cancel()
	mustPanicPrecondition(t, "after stale cancel", func() {
		c.OnPointerLocation(func(protocol.ServerPointerEvent) {})
	})
	cancel2()
}

func TestConnection_ConnectTwicePanics(t *testing.T) {
	srv := echoServer(t)
	c := NewConnection(Options{})
	connect(t, c, wsURL(srv))
	mustPanicPrecondition(t, "Connect", func() { c.Connect(wsURL(srv), nil) })
}

func TestConnection_Disconnect(t *testing.T) {
	srv := echoServer(t)
	c := NewConnection(Options{})
	connect(t, c, wsURL(srv))

	faults := make(chan error, 1)
	c.OnDisconnect(func(err error) { faults <- err })

	done := make(chan struct{})
	c.Disconnect(func() { close(done) })
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Disconnect() callback not called")
	}
	if c.IsConnected() || c.State() != Disconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}
	select {
	case err := <-faults:
		t.Fatalf("OnDisconnect called for a requested disconnect: %v", err)
	default:
	}
	// 断开后发送直接丢弃
	c.SendPointerLocation(geometry.RelativePoint{X: 1, Y: 1})
}

func TestConnection_ServerDropIsLifecycleSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	defer srv.Close()

	c := NewConnection(Options{})
	faults := make(chan error, 1)
	c.OnDisconnect(func(err error) { faults <- err })
	connect(t, c, wsURL(srv))

	select {
	case err := <-faults:
		if err == nil {
			t.Fatalf("OnDisconnect error = nil, want read error")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("OnDisconnect not called")
	}
	if c.IsConnected() {
		t.Fatalf("IsConnected() = true after server drop")
	}
	c.SendPointerLocation(geometry.RelativePoint{X: 1, Y: 1})

	// 断线后可以重新连接
	c.Connect("ws://127.0.0.1:1/ws", nil)
}

func TestConnection_DialFailure(t *testing.T) {
	c := NewConnection(Options{HandshakeTimeout: time.Second})
	done := make(chan error, 1)
	c.Connect("ws://127.0.0.1:1/ws", func(err error) { done <- err })
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Connect() error = nil, want dial error")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Connect() callback not called")
	}
	if c.State() != Disconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}
	c.SendPointerLocation(geometry.RelativePoint{X: 1, Y: 1})

	done2 := make(chan struct{})
	c.Disconnect(func() { close(done2) })
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatalf("Disconnect() callback not called")
	}
}

func TestEndpoint(t *testing.T) {
	cases := []struct {
		page string
		port int
		want string
	}{
		{"http://example.com/index.html", 8080, "ws://example.com:8080/ws"},
		{"https://example.com:443/", 9000, "wss://example.com:9000/ws"},
		{"http://[::1]:3000/", 3001, "ws://[::1]:3001/ws"},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.page)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.page, err)
		}
		if got := Endpoint(u, tc.port); got != tc.want {
			t.Fatalf("Endpoint(%s, %d) = %s, want %s", tc.page, tc.port, got, tc.want)
		}
	}
}

func TestPreconditionError_Message(t *testing.T) {
	var err error = &PreconditionError{Op: "Disconnect", Reason: "nope"}
	var pe *PreconditionError
	if !errors.As(err, &pe) || err.Error() != "pointer: Disconnect: nope" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestConnection_LearnsOwnID(t *testing.T) {
	srv := echoServer(t)
	c := NewConnection(Options{})
	connect(t, c, wsURL(srv))

	deadline := time.Now().Add(3 * time.Second)
	for c.ID() != "me" {
		if time.Now().After(deadline) {
			t.Fatalf("ID() = %q, want me", c.ID())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// silentServer 升级后既不读也不回 close 帧，直到测试结束
func silentServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestConnection_DisconnectTwicePanics(t *testing.T) {
	srv := silentServer(t)
	c := NewConnection(Options{CloseGrace: 500 * time.Millisecond})
	connect(t, c, wsURL(srv))

	done := make(chan struct{})
	c.Disconnect(func() { close(done) })
	mustPanicPrecondition(t, "second Disconnect", func() { c.Disconnect(nil) })
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("first Disconnect() callback not called")
	}
	if c.State() != Disconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}
}

func TestConnection_StaleDialIsDropped(t *testing.T) {
	var requests int32
	inner := echoServer(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 第一次握手故意变慢
		if atomic.AddInt32(&requests, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewConnection(Options{})
	first := make(chan error, 1)
	c.Connect(wsURL(srv), func(err error) { first <- err })
	disconnected := make(chan struct{})
	c.Disconnect(func() { close(disconnected) })
	<-disconnected

	connect(t, c, wsURL(srv))

	select {
	case err := <-first:
		if err == nil {
			t.Fatalf("superseded Connect() reported success")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("superseded Connect() callback not called")
	}
	if !c.IsConnected() {
		t.Fatalf("state = %v after stale dial, want connected", c.State())
	}

	got := make(chan protocol.ServerPointerEvent, 1)
	cancel := c.OnPointerLocation(func(ev protocol.ServerPointerEvent) { got <- ev })
	defer cancel()
	c.SendPointerLocation(geometry.RelativePoint{X: 4, Y: 2})
	select {
	case ev := <-got:
		if ev.X != 4 || ev.Y != 2 {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("second connection does not carry events")
	}
}
