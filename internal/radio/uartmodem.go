package radio

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// UARTModem 通过串口 AT 指令驱动外置 LoRa 模块（RYLR 系列同类）。
// 二进制帧以十六进制文本承载，+RCV 主动上报触发接收通知
type UARTModem struct {
	mu      sync.Mutex
	port    serial.Port
	params  Params
	ready   bool
	last    []byte
	rssi    float32
	snr     float32
	events  chan struct{}
	cmdResp chan string
	closeC  chan struct{}
	log     *zap.Logger

	cmdTimeout time.Duration
}

// UARTConfig 串口参数
type UARTConfig struct {
	Device string
	Baud   int
}

// OpenUARTModem 打开串口并启动读循环
func OpenUARTModem(cfg UARTConfig, log *zap.Logger) (*UARTModem, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open uart %s: %w", cfg.Device, err)
	}
	m := &UARTModem{
		port:       port,
		events:     make(chan struct{}, 16),
		cmdResp:    make(chan string, 1),
		closeC:     make(chan struct{}),
		log:        log.Named("uartmodem"),
		cmdTimeout: 10 * time.Second,
	}
	go m.readLoop()
	return m, nil
}

func (m *UARTModem) readLoop() {
	reader := bufio.NewReader(m.port)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-m.closeC:
			default:
				m.log.Warn("串口读取中断", zap.Error(err))
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if payload, found := strings.CutPrefix(line, "+RCV="); found {
			m.handleReceive(payload)
			continue
		}
		// 其余行视为指令应答
		select {
		case m.cmdResp <- line:
		default:
			m.log.Debug("丢弃迟到应答", zap.String("line", line))
		}
	}
}

// handleReceive 解析 +RCV=<addr>,<len>,<hexdata>,<rssi>,<snr>
func (m *UARTModem) handleReceive(payload string) {
	parts := strings.Split(payload, ",")
	if len(parts) < 5 {
		m.log.Warn("畸形上报", zap.String("payload", payload))
		return
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil || len(data) != n {
		m.log.Warn("上报数据与长度不符", zap.String("payload", payload))
		return
	}
	rssi, _ := strconv.ParseFloat(parts[3], 32)
	snr, _ := strconv.ParseFloat(parts[4], 32)

	m.mu.Lock()
	m.last = data
	m.rssi = float32(rssi)
	m.snr = float32(snr)
	m.mu.Unlock()

	select {
	case m.events <- struct{}{}:
	default:
	}
}

// command 发送一条 AT 指令并等待单行应答
func (m *UARTModem) command(cmd string) (string, error) {
	if _, err := m.port.Write([]byte(cmd + "\r\n")); err != nil {
		return "", fmt.Errorf("uart write: %w", err)
	}
	select {
	case line := <-m.cmdResp:
		if code, found := strings.CutPrefix(line, "+ERR="); found {
			return line, fmt.Errorf("modem error %s for %q", code, cmd)
		}
		return line, nil
	case <-time.After(m.cmdTimeout):
		return "", fmt.Errorf("modem timeout for %q", cmd)
	}
}

func (m *UARTModem) Begin(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	cmds := []string{
		"AT",
		fmt.Sprintf("AT+BAND=%d", int64(p.FrequencyMHz*1e6)),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", p.SpreadingFactor, bandwidthIndex(p.BandwidthKHz), p.CodingRate-4, p.PreambleLen),
		fmt.Sprintf("AT+CRFOP=%d", p.PowerDBm),
		fmt.Sprintf("AT+SYNC=%d", p.SyncWord),
	}
	for _, c := range cmds {
		if _, err := m.command(c); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.params = p
	m.ready = true
	m.mu.Unlock()
	return nil
}

// bandwidthIndex 模块侧带宽档位编码
func bandwidthIndex(khz float64) int {
	switch khz {
	case 62.5:
		return 6
	case 125:
		return 7
	case 250:
		return 8
	case 500:
		return 9
	}
	return 7
}

func (m *UARTModem) StartReceive() error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if !ready {
		return ErrNotReady
	}
	// 模块常驻接收，无需显式切换
	return nil
}

func (m *UARTModem) StartTransmit(frame []byte) error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if !ready {
		return ErrNotReady
	}
	cmd := fmt.Sprintf("AT+SEND=0,%d,%s", len(frame), strings.ToUpper(hex.EncodeToString(frame)))
	go func() {
		if _, err := m.command(cmd); err != nil {
			m.log.Error("发送失败", zap.Error(err))
		}
		select {
		case m.events <- struct{}{}:
		default:
		}
	}()
	return nil
}

func (m *UARTModem) ReadData() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil, ErrNoFrame
	}
	return append([]byte(nil), m.last...), nil
}

func (m *UARTModem) PacketLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}

func (m *UARTModem) SetFrequency(mhz float64) error {
	if !ValidFrequency(mhz) {
		return ErrRange
	}
	if _, err := m.command(fmt.Sprintf("AT+BAND=%d", int64(mhz*1e6))); err != nil {
		return err
	}
	m.mu.Lock()
	m.params.FrequencyMHz = mhz
	m.mu.Unlock()
	return nil
}

func (m *UARTModem) setParameter(update func(*Params)) error {
	m.mu.Lock()
	p := m.params
	m.mu.Unlock()
	update(&p)
	cmd := fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", p.SpreadingFactor, bandwidthIndex(p.BandwidthKHz), p.CodingRate-4, p.PreambleLen)
	if _, err := m.command(cmd); err != nil {
		return err
	}
	m.mu.Lock()
	m.params = p
	m.mu.Unlock()
	return nil
}

func (m *UARTModem) SetBandwidth(khz float64) error {
	if !ValidBandwidth(khz) {
		return ErrRange
	}
	return m.setParameter(func(p *Params) { p.BandwidthKHz = khz })
}

func (m *UARTModem) SetSpreadingFactor(sf int) error {
	if !ValidSpreadingFactor(sf) {
		return ErrRange
	}
	return m.setParameter(func(p *Params) { p.SpreadingFactor = sf })
}

func (m *UARTModem) SetCodingRate(cr int) error {
	if !ValidCodingRate(cr) {
		return ErrRange
	}
	return m.setParameter(func(p *Params) { p.CodingRate = cr })
}

func (m *UARTModem) SetOutputPower(dbm int) error {
	if !ValidPower(dbm) {
		return ErrRange
	}
	if _, err := m.command(fmt.Sprintf("AT+CRFOP=%d", dbm)); err != nil {
		return err
	}
	m.mu.Lock()
	m.params.PowerDBm = dbm
	m.mu.Unlock()
	return nil
}

func (m *UARTModem) RSSI() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rssi
}

func (m *UARTModem) SNR() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snr
}

// FrequencyError 模块不上报频偏，恒为 0
func (m *UARTModem) FrequencyError() float32 { return 0 }

func (m *UARTModem) Events() <-chan struct{} { return m.events }

func (m *UARTModem) Close() error {
	close(m.closeC)
	return m.port.Close()
}
