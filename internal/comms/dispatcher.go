package comms

import (
	"encoding/binary"
	"time"

	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/radio"
)

// 发射机策略
const (
	TXOff      byte = 0x00
	TXOn       byte = 0x01
	TXNoBeacon byte = 0x02
)

// TLE 存储布局：前两块及第 3 块首字节落在第一分区，其余落在第二分区
const (
	tleChunkCount = 5
	tleChunkSize  = 97
	tleRegion1    = 0x00010000
	tleRegion2    = 0x00020000
)

func linkErr(code satlink.ErrCode) error {
	return &satlink.LinkError{Code: code}
}

// executeTEC 按指令码分发执行，返回错误时由调用方转 NACK
func (t *Task) executeTEC(p *satlink.Packet) error {
	h, ok := t.handlers[p.Command]
	if !ok {
		return linkErr(satlink.ErrCmdUnknown)
	}
	t.met.TECRouteTotal.WithLabelValues(satlink.CommandName(p.Command)).Inc()
	return h(p)
}

func (t *Task) initHandlers() {
	t.handlers = map[byte]func(*satlink.Packet) error{
		satlink.TECObcReboot:  t.execObcReboot,
		satlink.TECExitState:  t.execExitState,
		satlink.TECVarChange:  t.execVarChange,
		satlink.TECSetTime:    t.execSetTime,
		satlink.TECEpsReboot:  t.execEpsReboot,
		satlink.TECAdcsReboot: t.execAdcsReboot,
		satlink.TECAdcsTLE:    t.execAdcsTLE,
		satlink.TECLoraState:  t.execLoraState,
		satlink.TECLoraConfig: t.execLoraConfig,
		satlink.TECLoraPing:   t.execLoraPing,
		satlink.TECCryExp:     t.execCryExp,
	}
}

func (t *Task) execObcReboot(p *satlink.Packet) error {
	t.log.Warn("执行星务复位")
	return t.platform.Reboot(RebootOBC)
}

func (t *Task) execEpsReboot(p *satlink.Packet) error {
	t.log.Warn("执行电源复位")
	return t.platform.Reboot(RebootEPS)
}

func (t *Task) execAdcsReboot(p *satlink.Packet) error {
	t.log.Warn("执行姿控复位")
	return t.platform.Reboot(RebootADCS)
}

// execExitState 按字节图样退出保护模式
func (t *Task) execExitState(p *satlink.Packet) error {
	if len(p.Payload) < 2 {
		return linkErr(satlink.ErrCmdPayload)
	}
	switch {
	case p.Payload[0] == 0xF0:
		return t.platform.Notify(NotifyExitContingency)
	case p.Payload[0] == 0x0F:
		return t.platform.Notify(NotifyExitSunsafe)
	case p.Payload[1] == 0xF0:
		return t.platform.Notify(NotifyExitSurvival)
	}
	return linkErr(satlink.ErrCmdPayload)
}

func (t *Task) execVarChange(p *satlink.Packet) error {
	if len(p.Payload) == 0 {
		return linkErr(satlink.ErrCmdPayload)
	}
	if err := t.platform.VarChange(p.Payload); err != nil {
		return err
	}
	return t.platform.Notify(NotifyCalibrationUpdated)
}

func (t *Task) execSetTime(p *satlink.Packet) error {
	if len(p.Payload) != 4 {
		return linkErr(satlink.ErrCmdPayload)
	}
	t.clk.Set(binary.BigEndian.Uint32(p.Payload))
	t.log.Info("星上时间已校准", zap.Uint32("unix", t.clk.Now()))
	return nil
}

// execAdcsTLE 分块写入轨道根数。块 3 跨在两个分区的交界上
func (t *Task) execAdcsTLE(p *satlink.Packet) error {
	if len(p.Payload) < 2 {
		return linkErr(satlink.ErrCmdPayload)
	}
	chunk := int(p.Payload[0])
	if chunk < 1 || chunk > tleChunkCount {
		return linkErr(satlink.ErrCmdPayload)
	}
	data := p.Payload[1:]
	if len(data) > tleChunkSize {
		return linkErr(satlink.ErrCmdPayload)
	}

	var err error
	switch {
	case chunk <= 2:
		err = t.platform.StorageWrite(tleRegion1+uint32(chunk-1)*tleChunkSize, data)
	case chunk == 3:
		err = t.platform.StorageWrite(tleRegion1+2*tleChunkSize, data[:1])
		if err == nil && len(data) > 1 {
			err = t.platform.StorageWrite(tleRegion2, data[1:])
		}
	default:
		err = t.platform.StorageWrite(tleRegion2+uint32(chunk-3)*tleChunkSize-1, data)
	}
	if err != nil {
		return err
	}
	if chunk == tleChunkCount {
		return t.platform.Notify(NotifyTLEUpdated)
	}
	return nil
}

// execLoraState 切换发射机策略。首字节两份 4 位副本必须一致，
// 后 24 位为恢复发射前的持续秒数，0 表示永久生效
func (t *Task) execLoraState(p *satlink.Packet) error {
	if len(p.Payload) != 4 {
		return linkErr(satlink.ErrCmdPayload)
	}
	hi := p.Payload[0] >> 4
	lo := p.Payload[0] & 0x0F
	if hi != lo || hi > TXNoBeacon {
		return linkErr(satlink.ErrCmdPayload)
	}
	duration := uint32(p.Payload[1])<<16 | uint32(p.Payload[2])<<8 | uint32(p.Payload[3])

	t.txState = hi
	t.txMirror.Store(uint32(hi))
	t.met.TXStateGauge.Set(float64(hi))
	t.log.Info("发射机策略切换",
		zap.Uint8("tx_state", hi),
		zap.Uint32("duration_s", duration))

	if duration > 0 {
		restore := satlink.New(satlink.TECLoraState, []byte{0x11, 0, 0, 0}, t.rsEnabled)
		t.timers.Arm(timerLoraState, time.Duration(duration)*time.Second, restore)
	} else {
		t.timers.Cancel(timerLoraState)
	}
	return nil
}

// execLoraConfig 重配射频参数。5 字节：24 位频率（kHz），
// 带宽(2)/扩频因子(3)/编码率(3)，功率(5)/保留(3)。全部校验通过才落地
func (t *Task) execLoraConfig(p *satlink.Packet) error {
	if len(p.Payload) != 5 {
		return linkErr(satlink.ErrCmdPayload)
	}
	freqKHz := uint32(p.Payload[0])<<16 | uint32(p.Payload[1])<<8 | uint32(p.Payload[2])
	mhz := float64(freqKHz) / 1000.0
	bw := radio.Bandwidths[p.Payload[3]>>6]
	sf := int(p.Payload[3]>>3&0x07) + 6
	cr := int(p.Payload[3]&0x07) + 5
	power := int(p.Payload[4]>>3) - 9

	if !radio.ValidFrequency(mhz) || !radio.ValidSpreadingFactor(sf) ||
		!radio.ValidCodingRate(cr) || !radio.ValidPower(power) {
		return linkErr(satlink.ErrCmdPayload)
	}

	if err := t.drv.SetFrequency(mhz); err != nil {
		return err
	}
	if err := t.drv.SetBandwidth(bw); err != nil {
		return err
	}
	if err := t.drv.SetSpreadingFactor(sf); err != nil {
		return err
	}
	if err := t.drv.SetCodingRate(cr); err != nil {
		return err
	}
	if err := t.drv.SetOutputPower(power); err != nil {
		return err
	}
	t.log.Info("射频参数重配",
		zap.Float64("freq_mhz", mhz),
		zap.Float64("bw_khz", bw),
		zap.Int("sf", sf),
		zap.Int("cr", cr),
		zap.Int("power_dbm", power))
	return nil
}

// execLoraPing 回发链路质量帧：RSSI、SNR、频偏三个大端 float32
func (t *Task) execLoraPing(p *satlink.Packet) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], floatBits(t.drv.RSSI()))
	binary.BigEndian.PutUint32(buf[4:8], floatBits(t.drv.SNR()))
	binary.BigEndian.PutUint32(buf[8:12], floatBits(t.drv.FrequencyError()))
	reply := satlink.New(satlink.TERLoraLink, buf, t.rsEnabled)
	if !t.txq.Push(reply) {
		t.met.TXDropTotal.WithLabelValues("queue_full").Inc()
		return linkErr(satlink.ErrCmdFull)
	}
	return nil
}

// execCryExp 晶体实验：48 位 MSB 位域
// glass(3)+glass(3)+activation(18)+diode(3)+picture(3)+acquisition(18)
func (t *Task) execCryExp(p *satlink.Packet) error {
	if len(p.Payload) != 6 {
		return linkErr(satlink.ErrCmdPayload)
	}
	r := bitReader{data: p.Payload}
	glass1 := byte(r.take(3))
	glass2 := byte(r.take(3))
	activation := r.take(18)
	diode := byte(r.take(3))
	picture := byte(r.take(3))
	acquisition := r.take(18)

	if glass1 != glass2 || glass1 > 2 {
		return linkErr(satlink.ErrCmdPayload)
	}

	if activation > 0 {
		deferred := satlink.New(satlink.TECCryExp, packCryExp(glass1, 0, diode, picture, acquisition), t.rsEnabled)
		t.timers.Arm(timerCrystal, time.Duration(activation)*time.Second, deferred)
		t.log.Info("晶体实验延时启动", zap.Uint32("delay_s", activation))
		return nil
	}
	if err := t.platform.Crystal(glass1, diode, picture, acquisition); err != nil {
		return err
	}
	if picture > 0 {
		return t.platform.Notify(NotifyTakePhoto)
	}
	return nil
}

// packCryExp 重新打包晶体实验位域
func packCryExp(glass byte, activation uint32, diode, picture byte, acquisition uint32) []byte {
	var w bitWriter
	w.put(uint32(glass), 3)
	w.put(uint32(glass), 3)
	w.put(activation, 18)
	w.put(uint32(diode), 3)
	w.put(uint32(picture), 3)
	w.put(acquisition, 18)
	return w.bytes(6)
}

// bitReader 自高位起的位域读取器
type bitReader struct {
	data []byte
	pos  int
}

func (r *bitReader) take(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		byteIdx := r.pos / 8
		bitIdx := 7 - r.pos%8
		v = v<<1 | uint32(r.data[byteIdx]>>bitIdx&1)
		r.pos++
	}
	return v
}

// bitWriter 自高位起的位域写入器
type bitWriter struct {
	bits []byte
}

func (w *bitWriter) put(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.bits = append(w.bits, byte(v>>i&1))
	}
}

func (w *bitWriter) bytes(size int) []byte {
	out := make([]byte, size)
	for i, b := range w.bits {
		if b != 0 {
			out[i/8] |= 1 << (7 - i%8)
		}
	}
	return out
}
