package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// 通道上的事件名
const (
	ClientPointerEventName = "clientPointerEvent"
	ServerPointerEventName = "serverPointerEvent"
	// ClientIDEventName 连接建立后服务端发出的第一帧，告知客户端自己的 clientId
	ClientIDEventName = "clientIdEvent"
)

var ErrMalformed = errors.New("MALFORMED_POINTER_EVENT")

// Envelope 每个 websocket 文本帧的外层结构
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClientPointerEvent 本地指针位置（出站）。没有身份字段，身份由连接本身决定。
type ClientPointerEvent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ServerPointerEvent 远端某个客户端的指针位置（入站）
type ServerPointerEvent struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// ClientIDEvent 服务端分配给该连接的标识，与其他人收到的 ServerPointerEvent.ID 相同
type ClientIDEvent struct {
	ID string `json:"id"`
}

// ToServerEvent 服务端用发送方的连接标识把客户端事件转成广播事件
func (e ClientPointerEvent) ToServerEvent(id string) ServerPointerEvent {
	return ServerPointerEvent{ID: id, X: e.X, Y: e.Y}
}

func (e ClientPointerEvent) Encode() ([]byte, error) {
	return encode(ClientPointerEventName, e)
}

func (e ServerPointerEvent) Encode() ([]byte, error) {
	return encode(ServerPointerEventName, e)
}

func (e ClientIDEvent) Encode() ([]byte, error) {
	return encode(ClientIDEventName, e)
}

func encode(name string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: name, Data: data})
}

// DecodeEnvelope 只解析外层，调用方按 Type 分发
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

func DecodeClientPointerEvent(env Envelope) (ClientPointerEvent, error) {
	if env.Type != ClientPointerEventName {
		return ClientPointerEvent{}, fmt.Errorf("%w: unexpected type %q", ErrMalformed, env.Type)
	}
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return ClientPointerEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.X == nil || raw.Y == nil {
		return ClientPointerEvent{}, fmt.Errorf("%w: x and y are required", ErrMalformed)
	}
	if !finite(*raw.X) || !finite(*raw.Y) {
		return ClientPointerEvent{}, fmt.Errorf("%w: non-finite coordinate", ErrMalformed)
	}
	return ClientPointerEvent{X: *raw.X, Y: *raw.Y}, nil
}

func DecodeServerPointerEvent(env Envelope) (ServerPointerEvent, error) {
	if env.Type != ServerPointerEventName {
		return ServerPointerEvent{}, fmt.Errorf("%w: unexpected type %q", ErrMalformed, env.Type)
	}
	var raw struct {
		ID *string  `json:"id"`
		X  *float64 `json:"x"`
		Y  *float64 `json:"y"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return ServerPointerEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.ID == nil || *raw.ID == "" || raw.X == nil || raw.Y == nil {
		return ServerPointerEvent{}, fmt.Errorf("%w: id, x and y are required", ErrMalformed)
	}
	return ServerPointerEvent{ID: *raw.ID, X: *raw.X, Y: *raw.Y}, nil
}

func DecodeClientIDEvent(env Envelope) (ClientIDEvent, error) {
	if env.Type != ClientIDEventName {
		return ClientIDEvent{}, fmt.Errorf("%w: unexpected type %q", ErrMalformed, env.Type)
	}
	var raw struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return ClientIDEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.ID == nil || *raw.ID == "" {
		return ClientIDEvent{}, fmt.Errorf("%w: id is required", ErrMalformed)
	}
	return ClientIDEvent{ID: *raw.ID}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
