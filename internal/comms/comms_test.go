package comms

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/clock"
	"github.com/pocketqube-lab/comms-server/internal/fec"
	"github.com/pocketqube-lab/comms-server/internal/metrics"
	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/radio"
)

type storageWrite struct {
	addr uint32
	data []byte
}

type crystalRun struct {
	glass       byte
	diode       byte
	picture     byte
	acquisition uint32
}

// stubPlatform 记录全部平台调用
type stubPlatform struct {
	writes   []storageWrite
	notes    []Notification
	reboots  []RebootTarget
	vars     [][]byte
	crystals []crystalRun
	err      error
}

func (s *stubPlatform) StorageWrite(addr uint32, data []byte) error {
	s.writes = append(s.writes, storageWrite{addr, append([]byte(nil), data...)})
	return s.err
}

func (s *stubPlatform) Notify(n Notification) error {
	s.notes = append(s.notes, n)
	return s.err
}

func (s *stubPlatform) Reboot(t RebootTarget) error {
	s.reboots = append(s.reboots, t)
	return s.err
}

func (s *stubPlatform) VarChange(payload []byte) error {
	s.vars = append(s.vars, append([]byte(nil), payload...))
	return s.err
}

func (s *stubPlatform) Crystal(glass, diode, picture byte, acquisition uint32) error {
	s.crystals = append(s.crystals, crystalRun{glass, diode, picture, acquisition})
	return s.err
}

func newTestTask(t *testing.T) (*Task, *radio.Loopback, *stubPlatform) {
	t.Helper()
	drv := radio.NewLoopback()
	plat := &stubPlatform{}
	met := metrics.NewAppMetrics(metrics.NewRegistry())
	task := NewTask(DefaultConfig(), drv, clock.New(), plat, zap.NewNop(), met)
	require.NoError(t, drv.Begin(task.cfg.Radio))
	return task, drv, plat
}

func sealedFrame(cmd byte, payload []byte, ecc bool) []byte {
	p := satlink.New(cmd, payload, ecc)
	p.Seal(1735689600)
	return p.Marshal()
}

func TestQueueBounds(t *testing.T) {
	q := NewPacketQueue(2)
	require.True(t, q.Push(satlink.New(satlink.TECLoraPing, nil, false)))
	require.True(t, q.Push(satlink.New(satlink.TECSetTime, nil, false)))
	require.False(t, q.Push(satlink.New(satlink.TECObcReboot, nil, false)))

	p, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, satlink.TECLoraPing, p.Command)
	p, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, satlink.TECSetTime, p.Command)
	_, ok = q.Pop()
	require.False(t, ok)
}

func TestExecSetTime(t *testing.T) {
	task, _, _ := newTestTask(t)
	pkt := satlink.New(satlink.TECSetTime, []byte{0x67, 0x74, 0x85, 0x80}, false)
	require.NoError(t, task.executeTEC(pkt))
	now := task.clk.Now()
	require.GreaterOrEqual(t, now, uint32(1735689600))
	require.Less(t, now, uint32(1735689605))

	bad := satlink.New(satlink.TECSetTime, []byte{1, 2}, false)
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(task.executeTEC(bad)))
}

func TestExecExitState(t *testing.T) {
	task, _, plat := newTestTask(t)

	require.NoError(t, task.executeTEC(satlink.New(satlink.TECExitState, []byte{0xF0, 0x00}, false)))
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECExitState, []byte{0x0F, 0x00}, false)))
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECExitState, []byte{0x00, 0xF0}, false)))
	require.Equal(t, []Notification{NotifyExitContingency, NotifyExitSunsafe, NotifyExitSurvival}, plat.notes)

	err := task.executeTEC(satlink.New(satlink.TECExitState, []byte{0x00, 0x00}, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
	err = task.executeTEC(satlink.New(satlink.TECExitState, []byte{0xF0}, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
}

func TestExecReboots(t *testing.T) {
	task, _, plat := newTestTask(t)
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECObcReboot, nil, false)))
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECEpsReboot, nil, false)))
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECAdcsReboot, nil, false)))
	require.Equal(t, []RebootTarget{RebootOBC, RebootEPS, RebootADCS}, plat.reboots)
}

func TestExecLoraState(t *testing.T) {
	task, _, _ := newTestTask(t)

	require.NoError(t, task.executeTEC(satlink.New(satlink.TECLoraState, []byte{0x00, 0, 0, 0}, false)))
	require.Equal(t, TXOff, task.txState)

	require.NoError(t, task.executeTEC(satlink.New(satlink.TECLoraState, []byte{0x22, 0x00, 0x00, 0x3C}, false)))
	require.Equal(t, TXNoBeacon, task.txState)
	task.timers.mu.Lock()
	armed := len(task.timers.timers)
	task.timers.mu.Unlock()
	require.Equal(t, 1, armed)

	err := task.executeTEC(satlink.New(satlink.TECLoraState, []byte{0x12, 0, 0, 0}, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
	err = task.executeTEC(satlink.New(satlink.TECLoraState, []byte{0x33, 0, 0, 0}, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
	require.Equal(t, TXNoBeacon, task.txState)
}

func TestDeferredTimerFires(t *testing.T) {
	task, _, _ := newTestTask(t)
	restore := satlink.New(satlink.TECLoraState, []byte{0x11, 0, 0, 0}, false)
	task.timers.Arm(timerLoraState, 10*time.Millisecond, restore)

	require.Eventually(t, func() bool {
		return task.cmdq.Len() == 1
	}, time.Second, 5*time.Millisecond)

	p, ok := task.cmdq.Pop()
	require.True(t, ok)
	require.Equal(t, satlink.TECLoraState, p.Command)
	require.Equal(t, byte(0x11), p.Payload[0])
}

func TestTimerRearmReplaces(t *testing.T) {
	task, _, _ := newTestTask(t)
	p := satlink.New(satlink.TECLoraState, []byte{0x11, 0, 0, 0}, false)
	task.timers.Arm(timerLoraState, time.Hour, p)
	task.timers.Arm(timerLoraState, 10*time.Millisecond, p)

	require.Eventually(t, func() bool {
		return task.cmdq.Len() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, task.cmdq.Len())
}

func TestExecLoraConfig(t *testing.T) {
	task, drv, _ := newTestTask(t)

	// 434.500 MHz, BW 125 kHz, SF7, CR5, 0 dBm
	payload := []byte{0x06, 0xA1, 0x44, 0x48, 0x48}
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECLoraConfig, payload, false)))
	got := drv.CurrentParams()
	require.Equal(t, 434.5, got.FrequencyMHz)
	require.Equal(t, 125.0, got.BandwidthKHz)
	require.Equal(t, 7, got.SpreadingFactor)
	require.Equal(t, 5, got.CodingRate)
	require.Equal(t, 0, got.PowerDBm)

	// 600 MHz 越界，任何参数都不应落地
	bad := []byte{0x09, 0x27, 0xC0, 0x48, 0x48}
	err := task.executeTEC(satlink.New(satlink.TECLoraConfig, bad, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
	require.Equal(t, 434.5, drv.CurrentParams().FrequencyMHz)

	err = task.executeTEC(satlink.New(satlink.TECLoraConfig, []byte{1, 2, 3}, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
}

func TestExecLoraPing(t *testing.T) {
	task, _, _ := newTestTask(t)
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECLoraPing, nil, false)))

	reply, ok := task.txq.Pop()
	require.True(t, ok)
	require.Equal(t, satlink.TERLoraLink, reply.Command)
	require.Len(t, reply.Payload, 12)
	rssi := math.Float32frombits(binary.BigEndian.Uint32(reply.Payload[0:4]))
	snr := math.Float32frombits(binary.BigEndian.Uint32(reply.Payload[4:8]))
	require.Equal(t, float32(-97.5), rssi)
	require.Equal(t, float32(8.25), snr)
}

func TestExecCryExpImmediate(t *testing.T) {
	task, _, plat := newTestTask(t)
	payload := packCryExp(2, 0, 5, 3, 100)
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECCryExp, payload, false)))
	require.Equal(t, []crystalRun{{glass: 2, diode: 5, picture: 3, acquisition: 100}}, plat.crystals)
	require.Equal(t, []Notification{NotifyTakePhoto}, plat.notes)
}

func TestExecCryExpDeferred(t *testing.T) {
	task, _, plat := newTestTask(t)
	payload := packCryExp(1, 60, 2, 0, 500)
	require.NoError(t, task.executeTEC(satlink.New(satlink.TECCryExp, payload, false)))
	require.Empty(t, plat.crystals)
	task.timers.mu.Lock()
	_, armed := task.timers.timers[timerCrystal]
	task.timers.mu.Unlock()
	require.True(t, armed)
}

func TestExecCryExpBadGlass(t *testing.T) {
	task, _, _ := newTestTask(t)

	mismatch := packCryExp(1, 0, 0, 0, 0)
	mismatch[0] ^= 0x20 // 两份副本不再一致
	err := task.executeTEC(satlink.New(satlink.TECCryExp, mismatch, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))

	err = task.executeTEC(satlink.New(satlink.TECCryExp, packCryExp(3, 0, 0, 0, 0), false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
}

func TestCryExpBitLayout(t *testing.T) {
	payload := packCryExp(2, 0x2ABCD, 5, 3, 0x15555)
	r := bitReader{data: payload}
	require.Equal(t, uint32(2), r.take(3))
	require.Equal(t, uint32(2), r.take(3))
	require.Equal(t, uint32(0x2ABCD), r.take(18))
	require.Equal(t, uint32(5), r.take(3))
	require.Equal(t, uint32(3), r.take(3))
	require.Equal(t, uint32(0x15555), r.take(18))
}

func TestExecAdcsTLE(t *testing.T) {
	task, _, plat := newTestTask(t)

	full := make([]byte, tleChunkSize)
	for i := range full {
		full[i] = byte(i)
	}
	for chunk := byte(1); chunk <= 5; chunk++ {
		payload := append([]byte{chunk}, full...)
		require.NoError(t, task.executeTEC(satlink.New(satlink.TECAdcsTLE, payload, false)))
	}

	require.Len(t, plat.writes, 6)
	require.Equal(t, uint32(tleRegion1), plat.writes[0].addr)
	require.Equal(t, uint32(tleRegion1+tleChunkSize), plat.writes[1].addr)
	require.Equal(t, uint32(tleRegion1+2*tleChunkSize), plat.writes[2].addr)
	require.Len(t, plat.writes[2].data, 1)
	require.Equal(t, uint32(tleRegion2), plat.writes[3].addr)
	require.Len(t, plat.writes[3].data, tleChunkSize-1)
	require.Equal(t, uint32(tleRegion2+tleChunkSize-1), plat.writes[4].addr)
	require.Equal(t, uint32(tleRegion2+2*tleChunkSize-1), plat.writes[5].addr)
	require.Equal(t, []Notification{NotifyTLEUpdated}, plat.notes)

	err := task.executeTEC(satlink.New(satlink.TECAdcsTLE, []byte{6, 0x00}, false))
	require.Equal(t, satlink.ErrCmdPayload, satlink.CodeOf(err))
}

func TestRXExecuteAckFlow(t *testing.T) {
	task, drv, _ := newTestTask(t)
	drv.Inject(sealedFrame(satlink.TECSetTime, []byte{0x67, 0x74, 0x85, 0x80}, false))

	task.stepRX()
	require.Equal(t, 1, task.cmdq.Len())
	require.False(t, task.rsEnabled)

	task.stepCmd()
	require.Equal(t, 1, task.txq.Len())

	task.stepTX(context.Background())
	sent := drv.Sent()
	require.Len(t, sent, 1)
	ack, err := satlink.Unmarshal(sent[0])
	require.NoError(t, err)
	require.Equal(t, satlink.TERAck, ack.Command)
	require.Equal(t, []byte{satlink.TECSetTime}, ack.Payload)
}

func TestRXBadMACSendsNack(t *testing.T) {
	task, drv, _ := newTestTask(t)
	frame := sealedFrame(satlink.TECLoraPing, nil, false)
	frame[8] ^= 0xFF
	drv.Inject(frame)

	task.stepRX()
	require.Equal(t, 0, task.cmdq.Len())

	nack, ok := task.txq.Pop()
	require.True(t, ok)
	require.Equal(t, satlink.TERNack, nack.Command)
	require.Equal(t, []byte{satlink.TECLoraPing, satlink.ErrMAC.Byte()}, nack.Payload)
}

func TestRXWithECC(t *testing.T) {
	task, drv, _ := newTestTask(t)
	frame := fec.Encode(sealedFrame(satlink.TECSetTime, []byte{0x67, 0x74, 0x85, 0x80}, true))
	frame[5] ^= 0x5A // 单字节信道误码
	drv.Inject(frame)

	task.stepRX()
	require.Equal(t, 1, task.cmdq.Len())
	require.True(t, task.rsEnabled)

	task.stepCmd()
	task.stepTX(context.Background())
	sent := drv.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, 0, len(sent[0])%fec.BlockSize)

	decoded, err := fec.Decode(sent[0])
	require.NoError(t, err)
	ack, err := satlink.Unmarshal(decoded)
	require.NoError(t, err)
	require.Equal(t, satlink.TERAck, ack.Command)
}

func TestCmdQueueFullNack(t *testing.T) {
	task, drv, _ := newTestTask(t)
	for i := 0; i < CmdQueueCap; i++ {
		require.True(t, task.cmdq.Push(satlink.New(satlink.TECLoraPing, nil, false)))
	}
	drv.Inject(sealedFrame(satlink.TECSetTime, []byte{0, 0, 0, 0}, false))

	task.stepRX()
	nack, ok := task.txq.Pop()
	require.True(t, ok)
	require.Equal(t, satlink.TERNack, nack.Command)
	require.Equal(t, satlink.ErrCmdFull.Byte(), nack.Payload[1])
}

func TestTXOffDropsEverything(t *testing.T) {
	task, drv, _ := newTestTask(t)
	task.txState = TXOff
	task.txq.Push(satlink.New(satlink.TERBeacon, nil, false))
	task.txq.Push(satlink.NewAck(satlink.TECSetTime, false))

	task.stepTX(context.Background())
	require.Empty(t, drv.Sent())
	require.Equal(t, 0, task.txq.Len())
}

func TestNoBeaconDropsOnlyBeacons(t *testing.T) {
	task, drv, _ := newTestTask(t)
	task.txState = TXNoBeacon
	task.txq.Push(satlink.New(satlink.TERBeacon, nil, false))
	task.txq.Push(satlink.NewAck(satlink.TECSetTime, false))

	task.stepTX(context.Background())
	sent := drv.Sent()
	require.Len(t, sent, 1)
	p, err := satlink.Unmarshal(sent[0])
	require.NoError(t, err)
	require.Equal(t, satlink.TERAck, p.Command)
}

func TestRebootAcksBeforeExecution(t *testing.T) {
	task, drv, plat := newTestTask(t)
	drv.Inject(sealedFrame(satlink.TECObcReboot, nil, false))

	// 收帧阶段 ACK 已入队，指令尚未执行
	task.stepRX()
	require.Equal(t, 1, task.txq.Len())
	require.Empty(t, plat.reboots)
	require.Equal(t, 1, task.cmdq.Len())

	task.stepCmd()
	require.Equal(t, []RebootTarget{RebootOBC}, plat.reboots)
	require.Equal(t, 1, task.txq.Len())
	ack, _ := task.txq.Pop()
	require.Equal(t, satlink.TERAck, ack.Command)
}

func TestPingSkipsAck(t *testing.T) {
	task, _, _ := newTestTask(t)
	require.True(t, task.cmdq.Push(satlink.New(satlink.TECLoraPing, nil, false)))

	task.stepCmd()
	require.Equal(t, 1, task.txq.Len())
	reply, _ := task.txq.Pop()
	require.Equal(t, satlink.TERLoraLink, reply.Command)
}

func TestSerialCommitAndDiscard(t *testing.T) {
	task, _, _ := newTestTask(t)
	frame := sealedFrame(satlink.TECLoraPing, nil, false)

	task.handleSerialLine(hex.EncodeToString(frame))
	task.handleSerialLine("end")
	task.handleSerialLine("go")
	require.Equal(t, 0, task.txq.Len())

	task.handleSerialLine(hex.EncodeToString(frame))
	task.handleSerialLine("go")
	require.Equal(t, 1, task.txq.Len())

	task.handleSerialLine("zz not hex")
	require.Empty(t, task.serialBuf)
}

func TestSerialBufferBounded(t *testing.T) {
	task, _, _ := newTestTask(t)
	frame := hex.EncodeToString(sealedFrame(satlink.TECLoraPing, nil, false))
	for i := 0; i < CmdQueueCap+3; i++ {
		task.handleSerialLine(frame)
	}
	require.Len(t, task.serialBuf, CmdQueueCap)
}

func TestBeaconEnqueuedWhenDue(t *testing.T) {
	task, drv, _ := newTestTask(t)
	task.nextBeacon = time.Now().Add(-time.Second)
	task.rsEnabled = true
	task.lastRSSI = -97.5

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task.stepIdle(ctx)
	require.Equal(t, 1, task.txq.Len())

	task.stepTX(context.Background())
	sent := drv.Sent()
	require.Len(t, sent, 1)
	// 心跳明文发送，即使下行编码模式开着
	require.False(t, satlink.DataHasECC(sent[0]))
	p, err := satlink.Unmarshal(sent[0])
	require.NoError(t, err)
	require.Equal(t, satlink.TERBeacon, p.Command)
	require.Len(t, p.Payload, 9)
	require.Equal(t, TXOn, p.Payload[4])
	rssi := math.Float32frombits(binary.BigEndian.Uint32(p.Payload[5:9]))
	require.InDelta(t, -97.5, rssi, 0.01)
}

func TestIdlePrefersSerialOverRadio(t *testing.T) {
	task, drv, _ := newTestTask(t)
	task.nextBeacon = time.Now().Add(time.Hour)
	task.serialLines <- "end"
	drv.Inject(sealedFrame(satlink.TECLoraPing, nil, false))

	task.stepIdle(context.Background())
	require.Equal(t, PhaseSerial, task.phase)
	require.True(t, task.hasPending)
}

func TestRunStopsOnBeginError(t *testing.T) {
	drv := radio.NewLoopback()
	drv.BeginErr = radio.ErrNotReady
	met := metrics.NewAppMetrics(metrics.NewRegistry())
	task := NewTask(DefaultConfig(), drv, clock.New(), &stubPlatform{}, zap.NewNop(), met)
	require.Error(t, task.Run(context.Background()))
}
