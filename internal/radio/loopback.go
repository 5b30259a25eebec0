package radio

import (
	"sync"
)

// Loopback 内存回环驱动，开发与测试用。
// Inject 模拟一帧到达，Sent 记录发出的空中帧
type Loopback struct {
	mu      sync.Mutex
	params  Params
	state   State
	ready   bool
	last    []byte
	sent    [][]byte
	events  chan struct{}
	rssi    float32
	snr     float32
	freqErr float32

	// BeginErr 置位后 Begin 返回该错误，用于演练致命路径
	BeginErr error
}

// NewLoopback 创建回环驱动
func NewLoopback() *Loopback {
	return &Loopback{
		events: make(chan struct{}, 16),
		rssi:   -97.5,
		snr:    8.25,
	}
}

func (l *Loopback) Begin(p Params) error {
	if l.BeginErr != nil {
		return l.BeginErr
	}
	if err := p.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = p
	l.ready = true
	l.state = StateIdle
	return nil
}

func (l *Loopback) StartReceive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return ErrNotReady
	}
	l.state = StateListening
	return nil
}

func (l *Loopback) StartTransmit(frame []byte) error {
	l.mu.Lock()
	if !l.ready {
		l.mu.Unlock()
		return ErrNotReady
	}
	l.state = StateTransmitting
	l.sent = append(l.sent, append([]byte(nil), frame...))
	l.state = StateIdle
	l.mu.Unlock()
	l.notify()
	return nil
}

func (l *Loopback) ReadData() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return nil, ErrNoFrame
	}
	return append([]byte(nil), l.last...), nil
}

func (l *Loopback) PacketLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}

func (l *Loopback) SetFrequency(mhz float64) error {
	if !ValidFrequency(mhz) {
		return ErrRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params.FrequencyMHz = mhz
	return nil
}

func (l *Loopback) SetBandwidth(khz float64) error {
	if !ValidBandwidth(khz) {
		return ErrRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params.BandwidthKHz = khz
	return nil
}

func (l *Loopback) SetSpreadingFactor(sf int) error {
	if !ValidSpreadingFactor(sf) {
		return ErrRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params.SpreadingFactor = sf
	return nil
}

func (l *Loopback) SetCodingRate(cr int) error {
	if !ValidCodingRate(cr) {
		return ErrRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params.CodingRate = cr
	return nil
}

func (l *Loopback) SetOutputPower(dbm int) error {
	if !ValidPower(dbm) {
		return ErrRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params.PowerDBm = dbm
	return nil
}

func (l *Loopback) RSSI() float32           { return l.rssi }
func (l *Loopback) SNR() float32            { return l.snr }
func (l *Loopback) FrequencyError() float32 { return l.freqErr }

func (l *Loopback) Events() <-chan struct{} { return l.events }

func (l *Loopback) Close() error { return nil }

// Inject 模拟空中到达一帧并触发通知
func (l *Loopback) Inject(frame []byte) {
	l.mu.Lock()
	l.last = append([]byte(nil), frame...)
	l.mu.Unlock()
	l.notify()
}

// SetLinkStats 设置链路质量读数
func (l *Loopback) SetLinkStats(rssi, snr, freqErr float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rssi, l.snr, l.freqErr = rssi, snr, freqErr
}

// Sent 返回已发送帧的副本
func (l *Loopback) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	for i, f := range l.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// CurrentParams 返回当前参数快照
func (l *Loopback) CurrentParams() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

func (l *Loopback) notify() {
	select {
	case l.events <- struct{}{}:
	default:
	}
}
