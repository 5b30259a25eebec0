package clock

import (
	"sync/atomic"
	"time"
)

// DefaultEpoch 任务时钟的缺省起点：2025-01-01T00:00:00Z
const DefaultEpoch uint32 = 1735689600

// Mission 任务时钟：以主机时钟为基准叠加偏移，地面对时指令可整体跳变
type Mission struct {
	offset atomic.Int64 // 任务秒 - 主机秒
	inited atomic.Bool
}

// New 创建未对时的任务时钟（首次读取前按 DefaultEpoch 初始化）
func New() *Mission {
	return &Mission{}
}

// Set 设置任务时钟；t=0 表示回到缺省起点
func (m *Mission) Set(t uint32) {
	if t == 0 {
		t = DefaultEpoch
	}
	m.offset.Store(int64(t) - time.Now().Unix())
	m.inited.Store(true)
}

// Now 返回当前任务秒（UNIX 秒）
func (m *Mission) Now() uint32 {
	if !m.inited.Load() {
		m.Set(0)
	}
	return uint32(time.Now().Unix() + m.offset.Load())
}
