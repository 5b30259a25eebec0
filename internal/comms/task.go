package comms

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pocketqube-lab/comms-server/internal/clock"
	"github.com/pocketqube-lab/comms-server/internal/fec"
	"github.com/pocketqube-lab/comms-server/internal/metrics"
	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/radio"
)

// Phase 通信任务状态机的当前态
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRX
	PhaseTX
	PhaseCmd
	PhaseSerial
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRX:
		return "rx"
	case PhaseTX:
		return "tx"
	case PhaseCmd:
		return "cmd"
	case PhaseSerial:
		return "serial"
	}
	return "unknown"
}

// Config 通信任务配置
type Config struct {
	Radio          radio.Params
	BeaconInterval time.Duration
	IdleWait       time.Duration
	TXTimeout      time.Duration
	SerialEvery    time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Radio:          radio.DefaultParams(),
		BeaconInterval: 30 * time.Second,
		IdleWait:       500 * time.Millisecond,
		TXTimeout:      10 * time.Second,
		SerialEvery:    100 * time.Millisecond,
	}
}

// Task 通信任务。持有全部链路状态，单 goroutine 驱动状态机，
// 队列与定时器内部自带锁，跨 goroutine 投递安全
type Task struct {
	cfg      Config
	drv      radio.Driver
	clk      *clock.Mission
	platform Platform
	log      *zap.Logger
	met      *metrics.AppMetrics

	txq      *PacketQueue
	cmdq     *PacketQueue
	timers   *deferredTimers
	handlers map[byte]func(*satlink.Packet) error

	phase      Phase
	txState    byte
	txMirror   atomic.Uint32
	rsEnabled  bool
	nextBeacon time.Time
	started    time.Time
	lastRSSI   float32

	serialLines   chan string
	serialBuf     [][]byte
	serialLimiter *rate.Limiter
	pendingLine   string
	hasPending    bool
}

// NewTask 组装通信任务
func NewTask(cfg Config, drv radio.Driver, clk *clock.Mission, platform Platform, log *zap.Logger, met *metrics.AppMetrics) *Task {
	t := &Task{
		cfg:           cfg,
		drv:           drv,
		clk:           clk,
		platform:      platform,
		log:           log.Named("comms"),
		met:           met,
		txq:           NewPacketQueue(TXQueueCap),
		cmdq:          NewPacketQueue(CmdQueueCap),
		txState:       TXOn,
		started:       time.Now(),
		serialLines:   make(chan string, 16),
		serialLimiter: rate.NewLimiter(rate.Every(cfg.SerialEvery), 1),
	}
	t.txMirror.Store(uint32(TXOn))
	t.initHandlers()
	t.timers = newDeferredTimers(t.fireDeferred)
	return t
}

// fireDeferred 定时自令到期，按收到新指令处理
func (t *Task) fireDeferred(p *satlink.Packet) {
	if !t.cmdq.Push(p) {
		t.met.CmdQueueDrops.Inc()
		t.log.Warn("定时自令入队失败，指令队列已满",
			zap.String("cmd", satlink.CommandName(p.Command)))
	}
}

// Run 启动射频前端并驱动状态机直至上下文取消
func (t *Task) Run(ctx context.Context) error {
	if err := t.drv.Begin(t.cfg.Radio); err != nil {
		t.log.Error("射频前端初始化失败", zap.Error(err))
		return err
	}
	t.log.Info("通信任务启动",
		zap.Float64("freq_mhz", t.cfg.Radio.FrequencyMHz),
		zap.Int("sf", t.cfg.Radio.SpreadingFactor))
	t.met.TXStateGauge.Set(float64(t.txState))
	t.nextBeacon = time.Now().Add(t.cfg.BeaconInterval)

	for ctx.Err() == nil {
		switch t.phase {
		case PhaseIdle:
			t.stepIdle(ctx)
		case PhaseRX:
			t.stepRX()
		case PhaseTX:
			t.stepTX(ctx)
		case PhaseCmd:
			t.stepCmd()
		case PhaseSerial:
			t.stepSerial(ctx)
		}
	}
	t.timers.Close()
	return ctx.Err()
}

func (t *Task) setPhase(p Phase) {
	t.phase = p
	t.met.StateTransitions.WithLabelValues(p.String()).Inc()
}

// stepIdle 先出站再执行指令，空闲时挂在接收上等事件
func (t *Task) stepIdle(ctx context.Context) {
	if time.Now().After(t.nextBeacon) {
		t.nextBeacon = time.Now().Add(t.cfg.BeaconInterval)
		if t.txState == TXOn {
			if t.txq.Push(t.buildBeacon()) {
				t.met.BeaconTotal.Inc()
			} else {
				t.met.TXDropTotal.WithLabelValues("queue_full").Inc()
			}
		}
	}

	if t.txq.Len() > 0 {
		t.setPhase(PhaseTX)
		return
	}
	if t.cmdq.Len() > 0 {
		t.setPhase(PhaseCmd)
		return
	}

	// 已到达的控制台行优先于挂起等待射频事件
	select {
	case line := <-t.serialLines:
		t.pendingLine = line
		t.hasPending = true
		t.setPhase(PhaseSerial)
		return
	default:
	}

	if err := t.drv.StartReceive(); err != nil {
		t.log.Error("进入接收失败", zap.Error(err))
		return
	}
	select {
	case <-ctx.Done():
	case <-t.drv.Events():
		t.setPhase(PhaseRX)
	case line := <-t.serialLines:
		t.pendingLine = line
		t.hasPending = true
		t.setPhase(PhaseSerial)
	case <-time.After(t.cfg.IdleWait):
	}
}

// stepRX 取帧、解码、校验、入指令队列。任何一步失败都回 NACK
func (t *Task) stepRX() {
	defer t.setPhase(PhaseIdle)

	frame, err := t.drv.ReadData()
	if err != nil {
		return
	}
	t.met.FramesReceived.Inc()
	t.met.BytesReceived.Add(float64(len(frame)))
	t.lastRSSI = t.drv.RSSI()
	t.met.RSSIGauge.Set(float64(t.lastRSSI))
	t.met.SNRGauge.Set(float64(t.drv.SNR()))

	raw := frame
	if satlink.DataHasECC(frame) {
		decoded, derr := fec.Decode(frame)
		if derr != nil {
			t.met.ParseTotal.WithLabelValues("error").Inc()
			tec := byte(0)
			if len(decoded) > 2 {
				tec = decoded[2]
			}
			t.enqueueNack(tec, satlink.ErrDecode)
			t.log.Warn("纠错译码失败", zap.Int("len", len(frame)))
			return
		}
		raw = decoded
	}

	p, uerr := satlink.Unmarshal(raw)
	if uerr != nil {
		t.met.ParseTotal.WithLabelValues("error").Inc()
		t.enqueueNack(p.Command, p.State)
		t.log.Warn("帧校验失败",
			zap.String("state", p.State.String()),
			zap.String("cmd", satlink.CommandName(p.Command)))
		return
	}
	t.met.ParseTotal.WithLabelValues("ok").Inc()

	if !p.IsTEC() {
		t.log.Debug("忽略非遥控帧", zap.String("cmd", satlink.CommandName(p.Command)))
		return
	}

	// 下行编码模式跟随最近一条有效遥控
	t.rsEnabled = p.ECC

	if !t.cmdq.Push(p) {
		t.met.CmdQueueDrops.Inc()
		t.enqueueNack(p.Command, satlink.ErrCmdFull)
		t.log.Warn("指令队列已满", zap.String("cmd", satlink.CommandName(p.Command)))
		return
	}

	// 复位类指令收帧时就回 ACK，不等指令队列排到它
	if satlink.ACKNeededBefore(p.Command) {
		t.enqueueAck(p.Command)
	}
}

// stepTX 排空发送队列，逐帧等待发完
func (t *Task) stepTX(ctx context.Context) {
	defer t.setPhase(PhaseIdle)

	for {
		p, ok := t.txq.Pop()
		if !ok {
			return
		}
		if t.txState == TXOff {
			t.met.TXDropTotal.WithLabelValues("tx_off").Inc()
			continue
		}
		if t.txState == TXNoBeacon && p.Command == satlink.TERBeacon {
			t.met.TXDropTotal.WithLabelValues("no_beacon").Inc()
			continue
		}

		p.Seal(t.clk.Now())
		frame := p.Marshal()
		if t.rsEnabled && p.ECC {
			frame = fec.Encode(frame)
		}
		if err := t.drv.StartTransmit(frame); err != nil {
			t.met.TXDropTotal.WithLabelValues("radio").Inc()
			t.log.Error("发送启动失败", zap.Error(err))
			continue
		}
		t.met.FramesSent.Inc()
		t.met.BytesSent.Add(float64(len(frame)))

		select {
		case <-t.drv.Events():
		case <-time.After(t.cfg.TXTimeout):
			t.log.Warn("等待发送完成超时", zap.String("cmd", satlink.CommandName(p.Command)))
		case <-ctx.Done():
			return
		}
	}
}

// stepCmd 执行一条指令并按策略回执
func (t *Task) stepCmd() {
	defer t.setPhase(PhaseIdle)

	p, ok := t.cmdq.Pop()
	if !ok {
		return
	}

	// 复位类指令的 ACK 在收帧阶段已入队，执行后不再补发
	ackedBefore := satlink.ACKNeededBefore(p.Command)

	if err := t.executeTEC(p); err != nil {
		t.log.Warn("指令执行失败",
			zap.String("cmd", satlink.CommandName(p.Command)),
			zap.Error(err))
		t.enqueueNack(p.Command, satlink.CodeOf(err))
		return
	}
	t.log.Info("指令执行完成", zap.String("cmd", satlink.CommandName(p.Command)))
	if satlink.ACKNeeded(p.Command) && !ackedBefore {
		t.enqueueAck(p.Command)
	}
}

// buildBeacon 心跳载荷：在轨运行秒数、发射机策略、最近一次上行的 RSSI。
// 心跳始终明文发送，不随上行的编码模式走
func (t *Task) buildBeacon() *satlink.Packet {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint32(buf[0:4], uint32(time.Since(t.started)/time.Second))
	buf[4] = t.txState
	binary.BigEndian.PutUint32(buf[5:9], floatBits(t.lastRSSI))
	return satlink.New(satlink.TERBeacon, buf, false)
}

func (t *Task) enqueueAck(tec byte) {
	if !t.txq.Push(satlink.NewAck(tec, t.rsEnabled)) {
		t.met.TXDropTotal.WithLabelValues("queue_full").Inc()
	}
}

func (t *Task) enqueueNack(tec byte, code satlink.ErrCode) {
	if !t.txq.Push(satlink.NewNack(tec, code, t.rsEnabled)) {
		t.met.TXDropTotal.WithLabelValues("queue_full").Inc()
	}
}

// TXStateSnapshot 当前发射机策略，可跨 goroutine 读取
func (t *Task) TXStateSnapshot() byte { return byte(t.txMirror.Load()) }

// QueueDepths 发送与指令队列当前深度
func (t *Task) QueueDepths() (tx, cmd int) {
	return t.txq.Len(), t.cmdq.Len()
}

func floatBits(f float32) uint32 { return math.Float32bits(f) }
