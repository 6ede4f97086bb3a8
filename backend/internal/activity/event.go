package activity

import "time"

const (
	PeerJoined = "PEER_JOINED"
	PeerLeft   = "PEER_LEFT"
)

// PeerEvent 房间内客户端上线/下线事件，发往 Kafka 供下游统计
type PeerEvent struct {
	EventType string    `json:"eventType"`
	Room      string    `json:"room"`
	ClientID  string    `json:"clientId"`
	Instance  string    `json:"instance,omitempty"`
	At        time.Time `json:"at"`
}
