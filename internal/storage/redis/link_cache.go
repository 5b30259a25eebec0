package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	linkStatusKey = "link:status" // 最近链路状态（String，JSON）
	linkStatusTTL = 10 * time.Minute
)

// LinkStatus 最近一次下行帧携带的链路质量
type LinkStatus struct {
	RSSI        float32   `json:"rssi"`
	SNR         float32   `json:"snr"`
	FreqError   float32   `json:"freq_error"`
	LastCommand uint8     `json:"last_command"`
	LastFrameAt time.Time `json:"last_frame_at"`
}

// LinkCache 缓存最近链路状态，供 API 快速查询
type LinkCache struct {
	client *Client
}

// NewLinkCache 创建链路状态缓存
func NewLinkCache(client *Client) *LinkCache {
	return &LinkCache{client: client}
}

// Set 写入最近链路状态
func (c *LinkCache) Set(ctx context.Context, st *LinkStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal link status: %w", err)
	}
	return c.client.Set(ctx, linkStatusKey, data, linkStatusTTL).Err()
}

// Get 读取最近链路状态；缓存过期或从未写入时返回 nil
func (c *LinkCache) Get(ctx context.Context) (*LinkStatus, error) {
	data, err := c.client.Get(ctx, linkStatusKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st LinkStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal link status: %w", err)
	}
	return &st, nil
}
