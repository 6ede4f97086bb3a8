package ws

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "whiteboard:pointer:"

type relayMessage struct {
	Instance string          `json:"instance"`
	Frame    json.RawMessage `json:"frame"`
}

// RedisRelay 通过 Redis pub/sub 在多个实例之间转发指针事件。
// 单个发布连接上的消息保持顺序；本实例发出的消息按 instance 过滤掉。
type RedisRelay struct {
	rdb      redis.UniversalClient
	instance string
}

func NewRedisRelay(rdb redis.UniversalClient, instance string) *RedisRelay {
	return &RedisRelay{rdb: rdb, instance: instance}
}

func relayChannel(room string) string { return relayChannelPrefix + room }

func (r *RedisRelay) Publish(ctx context.Context, room string, frame []byte) error {
	b, err := json.Marshal(relayMessage{Instance: r.instance, Frame: frame})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel(room), b).Err()
}

// Run 订阅所有房间的转发频道，直到 ctx 结束
func (r *RedisRelay) Run(ctx context.Context, h *Hub) error {
	sub := r.rdb.PSubscribe(ctx, relayChannelPrefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(h, msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(h *Hub, channel, payload string) {
	var m relayMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		log.Printf("drop relay message (channel=%s): %v", channel, err)
		return
	}
	if m.Instance == r.instance {
		return
	}
	h.DeliverRemote(strings.TrimPrefix(channel, relayChannelPrefix), m.Frame)
}
