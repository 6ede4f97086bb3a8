package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"whiteboard/backend/internal/protocol"
)

// CursorPresence 记录每个房间内各客户端最后的指针位置，带逻辑 TTL
type CursorPresence interface {
	Touch(ctx context.Context, room, clientID string, pos protocol.ClientPointerEvent, ttl time.Duration) error
	AliveCursors(ctx context.Context, room string) ([]protocol.ServerPointerEvent, error)
	Remove(ctx context.Context, room, clientID string) error
	Rooms(ctx context.Context) ([]string, error)
}

// 具体实现：基于 redis 的 CursorPresence。
// UniversalClient 同时兼容单机和集群。
type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) CursorPresence {
	return &redisPresence{rdb: rdb}
}

// 清理过期成员
// KEYS[1] = roomKey(room)
// KEYS[2] = posKey(room)
// ARGV[1] = now (unix seconds)
var sweepScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) Touch(ctx context.Context, room, clientID string, pos protocol.ClientPointerEvent, ttl time.Duration) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	expireAt := time.Now().Add(ttl).Unix()
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(room), redis.Z{Score: float64(expireAt), Member: clientID})
	tx.HSet(ctx, posKey(room), clientID, data)
	_, err = tx.Exec(ctx)
	return err
}

func (p *redisPresence) AliveCursors(ctx context.Context, room string) ([]protocol.ServerPointerEvent, error) {
	now := time.Now().Unix()
	// step1: 清理过期成员
	if err := sweepScript.Run(ctx, p.rdb, []string{roomKey(room), posKey(room)}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	// step2: 查询存活成员（score > now）
	ids, err := p.rdb.ZRangeByScore(ctx, roomKey(room), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// step3: 批量获取位置
	vals, err := p.rdb.HMGet(ctx, posKey(room), ids...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]protocol.ServerPointerEvent, 0, len(ids))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var pos protocol.ClientPointerEvent
		if err := json.Unmarshal([]byte(s), &pos); err != nil {
			continue
		}
		out = append(out, pos.ToServerEvent(ids[i]))
	}
	return out, nil
}

func (p *redisPresence) Remove(ctx context.Context, room, clientID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(room), clientID)
	tx.HDel(ctx, posKey(room), clientID)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) Rooms(ctx context.Context) ([]string, error) {
	var rooms []string
	iter := p.rdb.Scan(ctx, 0, roomPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if room := strings.TrimPrefix(iter.Val(), roomPrefix); room != "" {
			rooms = append(rooms, room)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}
