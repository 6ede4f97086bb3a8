package cache

import "fmt"

// 键语义：
// - roomKey(room): 房间内光标存活表（ZSET<clientId>，score = expireAt Unix 秒）
// - posKey(room):  房间内 clientId -> 最后位置 JSON（Hash）

const (
	keyRoomFmt = "presence:cursor:room:%s" // ZSET<clientId, expireAt>
	keyPosFmt  = "presence:cursor:pos:%s"  // Hash<clientId -> {"x":..,"y":..}>
	roomPrefix = "presence:cursor:room:"
)

func roomKey(room string) string { return fmt.Sprintf(keyRoomFmt, room) }
func posKey(room string) string  { return fmt.Sprintf(keyPosFmt, room) }
