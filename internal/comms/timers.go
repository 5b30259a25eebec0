package comms

import (
	"sync"
	"time"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
)

// timerClass 定时自令类别，同类重复设置时后者覆盖前者
type timerClass int

const (
	timerLoraState timerClass = iota
	timerCrystal
)

func (c timerClass) String() string {
	switch c {
	case timerLoraState:
		return "lora_state"
	case timerCrystal:
		return "crystal"
	}
	return "unknown"
}

// deferredTimers 延时自令表。到期后把预存的指令帧交还状态机，
// 如同刚从空中收到一样排队执行
type deferredTimers struct {
	mu     sync.Mutex
	timers map[timerClass]*time.Timer
	fire   func(p *satlink.Packet)
}

func newDeferredTimers(fire func(p *satlink.Packet)) *deferredTimers {
	return &deferredTimers{
		timers: make(map[timerClass]*time.Timer),
		fire:   fire,
	}
}

// Arm 设置一个延时自令；同类已有定时器被取消并替换
func (d *deferredTimers) Arm(class timerClass, delay time.Duration, p *satlink.Packet) {
	dup := p.Clone()
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[class]; ok {
		t.Stop()
	}
	d.timers[class] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, class)
		d.mu.Unlock()
		d.fire(dup)
	})
}

// Cancel 取消指定类别的定时器
func (d *deferredTimers) Cancel(class timerClass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[class]; ok {
		t.Stop()
		delete(d.timers, class)
	}
}

// Close 取消全部定时器
func (d *deferredTimers) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c, t := range d.timers {
		t.Stop()
		delete(d.timers, c)
	}
}
