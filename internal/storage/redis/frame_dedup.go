package redis

import (
	"context"
	"fmt"
	"time"
)

const dedupKeyPrefix = "frame:seen:"

// FrameDeduper 基于 MAC+星上时戳的收帧去重。
// 同一帧在重传窗口内只归档一次。
type FrameDeduper struct {
	client *Client
	ttl    time.Duration
}

// NewFrameDeduper 创建收帧去重器；ttl<=0 时取10分钟
func NewFrameDeduper(client *Client, ttl time.Duration) *FrameDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &FrameDeduper{client: client, ttl: ttl}
}

// Seen 标记并判断帧是否已见过；首次见到返回 false
func (d *FrameDeduper) Seen(ctx context.Context, mac uint32, timeUnix uint32) (bool, error) {
	key := fmt.Sprintf("%s%08x:%d", dedupKeyPrefix, mac, timeUnix)
	ok, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
