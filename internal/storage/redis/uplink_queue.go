package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis Key前缀
	uplinkQueueKey      = "uplink:queue"      // 待上行队列（Sorted Set，按优先级+时间排序）
	uplinkProcessingKey = "uplink:processing" // 发射中（Hash，按关联号索引）
	uplinkDeadKey       = "uplink:dead"       // 死信队列（List）
)

// UplinkJob 待上行指令任务
type UplinkJob struct {
	CorrelationID string    `json:"correlation_id"` // 关联号（唯一）
	Command       uint8     `json:"command"`        // 指令码
	CommandName   string    `json:"command_name"`   // 指令助记名
	Payload       []byte    `json:"payload"`        // 指令载荷
	ECC           bool      `json:"ecc"`            // 是否请求前向纠错编码
	Priority      int       `json:"priority"`       // 优先级（0-9，9最高）
	Retries       int       `json:"retries"`        // 已重试次数
	MaxRetry      int       `json:"max_retry"`      // 最大重试次数
	CreatedAt     time.Time `json:"created_at"`     // 创建时间
	UpdatedAt     time.Time `json:"updated_at"`     // 更新时间
	TimeoutMS     int       `json:"timeout_ms"`     // 等待星上确认的超时（毫秒）
}

// UplinkQueue Redis上行指令队列
type UplinkQueue struct {
	client *Client
}

// NewUplinkQueue 创建Redis上行队列
func NewUplinkQueue(client *Client) *UplinkQueue {
	return &UplinkQueue{client: client}
}

// Enqueue 入队（添加待上行指令）
func (q *UplinkQueue) Enqueue(ctx context.Context, job *UplinkJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	// 计算score（优先级*1e12 + 时间戳，保证高优先级先出队；
	// ZPopMin 取最小值，因此优先级取负）
	score := -float64(job.Priority)*1e12 + float64(job.CreatedAt.UnixNano())/1e6

	return q.client.ZAdd(ctx, uplinkQueueKey, redis.Z{
		Score:  score,
		Member: job.CorrelationID + ":" + string(data),
	}).Err()
}

// Dequeue 出队（获取一条待上行指令；队列为空返回 nil）
func (q *UplinkQueue) Dequeue(ctx context.Context) (*UplinkJob, error) {
	result, err := q.client.ZPopMin(ctx, uplinkQueueKey, 1).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, nil
	}

	member := result[0].Member.(string)
	job, err := parseJob(member)
	if err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}

	return job, nil
}

// MarkProcessing 标记指令为发射中
func (q *UplinkQueue) MarkProcessing(ctx context.Context, job *UplinkJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// 设置到Hash，带TTL（防止进程崩溃导致永久锁定）
	pipe := q.client.Pipeline()
	pipe.HSet(ctx, uplinkProcessingKey, job.CorrelationID, data)
	pipe.Expire(ctx, uplinkProcessingKey, time.Duration(job.TimeoutMS)*time.Millisecond*2)
	_, err = pipe.Exec(ctx)

	return err
}

// MarkSuccess 标记指令已确认（从发射中删除）
func (q *UplinkQueue) MarkSuccess(ctx context.Context, job *UplinkJob) error {
	return q.client.HDel(ctx, uplinkProcessingKey, job.CorrelationID).Err()
}

// MarkFailed 标记指令失败（重试或进入死信队列）
func (q *UplinkQueue) MarkFailed(ctx context.Context, job *UplinkJob, errMsg string) error {
	if err := q.client.HDel(ctx, uplinkProcessingKey, job.CorrelationID).Err(); err != nil {
		return err
	}

	job.Retries++
	job.UpdatedAt = time.Now()

	if job.Retries < job.MaxRetry {
		return q.Enqueue(ctx, job)
	}

	// 超过最大重试次数，进入死信队列
	deadJob := map[string]interface{}{
		"job":       job,
		"error":     errMsg,
		"failed_at": time.Now(),
	}
	data, _ := json.Marshal(deadJob)

	return q.client.LPush(ctx, uplinkDeadKey, data).Err()
}

// GetPendingCount 获取待上行指令数量
func (q *UplinkQueue) GetPendingCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, uplinkQueueKey).Result()
}

// GetProcessingCount 获取发射中指令数量
func (q *UplinkQueue) GetProcessingCount(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, uplinkProcessingKey).Result()
}

// GetDeadCount 获取死信队列指令数量
func (q *UplinkQueue) GetDeadCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, uplinkDeadKey).Result()
}

// parseJob 解析队列成员，格式: "关联号:JSON"
func parseJob(member string) (*UplinkJob, error) {
	colonIdx := strings.IndexByte(member, ':')
	if colonIdx == -1 {
		return nil, fmt.Errorf("invalid member format")
	}

	data := []byte(member[colonIdx+1:])
	var job UplinkJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// Stats 获取队列统计信息
func (q *UplinkQueue) Stats(ctx context.Context) (map[string]interface{}, error) {
	pending, _ := q.GetPendingCount(ctx)
	processing, _ := q.GetProcessingCount(ctx)
	dead, _ := q.GetDeadCount(ctx)

	return map[string]interface{}{
		"pending":    pending,
		"processing": processing,
		"dead":       dead,
		"total":      pending + processing,
	}, nil
}
