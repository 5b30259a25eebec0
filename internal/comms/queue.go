package comms

import (
	"sync"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
)

// 队列容量
const (
	TXQueueCap  = 6
	CmdQueueCap = 2
)

// PacketQueue 有界先进先出帧队列
type PacketQueue struct {
	mu    sync.Mutex
	items []*satlink.Packet
	cap   int
}

// NewPacketQueue 创建指定容量的队列
func NewPacketQueue(capacity int) *PacketQueue {
	return &PacketQueue{cap: capacity}
}

// Push 入队；满时返回 false 且不入队
func (q *PacketQueue) Push(p *satlink.Packet) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, p)
	return true
}

// Pop 出队最早的一帧；空时返回 false
func (q *PacketQueue) Pop() (*satlink.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// Len 当前队列长度
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap 队列容量
func (q *PacketQueue) Cap() int { return q.cap }
