package gs

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/fec"
	"github.com/pocketqube-lab/comms-server/internal/metrics"
	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/radio"
	"github.com/pocketqube-lab/comms-server/internal/storage"
	"github.com/pocketqube-lab/comms-server/internal/storage/models"
	"github.com/pocketqube-lab/comms-server/internal/storage/pg"
	redisstorage "github.com/pocketqube-lab/comms-server/internal/storage/redis"
)

// StationConfig 地面站射频环配置
type StationConfig struct {
	Radio        radio.Params
	AckTimeout   time.Duration
	PollInterval time.Duration
	TXTimeout    time.Duration
}

// Station 地面站射频环。
// 单协程循环：轮询上行队列发射指令，其余时间收取下行帧并归档。
type Station struct {
	cfg     StationConfig
	drv     radio.Driver
	queue   *redisstorage.UplinkQueue
	archive storage.ArchiveRepo

	// 以下三项可为 nil，按部署裁剪
	journal *pg.Journal
	link    *redisstorage.LinkCache
	dedup   *redisstorage.FrameDeduper

	log *zap.Logger
	met *metrics.AppMetrics
}

// StationDeps 组装地面站所需的依赖
type StationDeps struct {
	Driver  radio.Driver
	Queue   *redisstorage.UplinkQueue
	Archive storage.ArchiveRepo
	Journal *pg.Journal
	Link    *redisstorage.LinkCache
	Dedup   *redisstorage.FrameDeduper
	Logger  *zap.Logger
	Metrics *metrics.AppMetrics
}

// NewStation 创建地面站射频环
func NewStation(cfg StationConfig, deps StationDeps) *Station {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.TXTimeout <= 0 {
		cfg.TXTimeout = 10 * time.Second
	}
	return &Station{
		cfg:     cfg,
		drv:     deps.Driver,
		queue:   deps.Queue,
		archive: deps.Archive,
		journal: deps.Journal,
		link:    deps.Link,
		dedup:   deps.Dedup,
		log:     deps.Logger.Named("station"),
		met:     deps.Metrics,
	}
}

// Run 启动收发循环，直到 ctx 取消
func (s *Station) Run(ctx context.Context) error {
	if err := s.drv.Begin(s.cfg.Radio); err != nil {
		return err
	}

	s.log.Info("地面站射频环启动",
		zap.Float64("freq_mhz", s.cfg.Radio.FrequencyMHz),
		zap.Int("sf", s.cfg.Radio.SpreadingFactor),
		zap.Float64("bw_khz", s.cfg.Radio.BandwidthKHz))

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	if err := s.drv.StartReceive(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return s.drv.Close()

		case <-s.drv.Events():
			s.receiveOne(ctx, nil)

		case <-poll.C:
			job, err := s.queue.Dequeue(ctx)
			if err != nil {
				s.log.Warn("上行队列出队失败", zap.Error(err))
				continue
			}
			if job == nil {
				continue
			}
			s.transmitJob(ctx, job)
			if err := s.drv.StartReceive(); err != nil {
				s.log.Warn("恢复接收失败", zap.Error(err))
			}
		}
	}
}

// transmitJob 发射一条上行指令并等待星上确认
func (s *Station) transmitJob(ctx context.Context, job *redisstorage.UplinkJob) {
	pkt := satlink.New(job.Command, job.Payload, job.ECC)
	pkt.Seal(uint32(time.Now().Unix()))

	frame := pkt.Marshal()
	if job.ECC {
		frame = fec.Encode(frame)
	}

	if err := s.queue.MarkProcessing(ctx, job); err != nil {
		s.log.Warn("标记发射中失败", zap.Error(err))
	}

	if err := s.drv.StartTransmit(frame); err != nil {
		s.log.Error("发射失败",
			zap.String("correlation_id", job.CorrelationID),
			zap.String("command", job.CommandName),
			zap.Error(err))
		s.failJob(ctx, job, "transmit: "+err.Error())
		return
	}
	s.waitEvent(ctx, s.cfg.TXTimeout)

	now := time.Now()
	s.met.FramesSent.Inc()
	s.met.BytesSent.Add(float64(len(frame)))
	if err := s.archive.MarkUplinkSent(ctx, job.CorrelationID, now); err != nil {
		s.log.Warn("登记发射时间失败", zap.Error(err))
	}
	s.appendJournal(ctx, pg.DirUplink, int16(job.Command), hex.EncodeToString(frame), true, job.CorrelationID)

	s.log.Info("指令已发射",
		zap.String("correlation_id", job.CorrelationID),
		zap.String("command", job.CommandName),
		zap.Int("retries", job.Retries))

	s.awaitAck(ctx, job)
}

// awaitAck 在确认窗口内收帧，直到拿到对应的 ACK/NACK 或超时
func (s *Station) awaitAck(ctx context.Context, job *redisstorage.UplinkJob) {
	if err := s.drv.StartReceive(); err != nil {
		s.failJob(ctx, job, "receive: "+err.Error())
		return
	}

	timeout := s.cfg.AckTimeout
	if job.TimeoutMS > 0 {
		timeout = time.Duration(job.TimeoutMS) * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			s.log.Warn("确认超时",
				zap.String("correlation_id", job.CorrelationID),
				zap.String("command", job.CommandName))
			s.failJob(ctx, job, "ack timeout")
			return

		case <-s.drv.Events():
			pkt := s.receiveOne(ctx, &job.CorrelationID)
			if pkt == nil {
				continue
			}
			switch {
			case pkt.Command == satlink.TERAck && len(pkt.Payload) >= 1 && pkt.Payload[0] == job.Command:
				if err := s.archive.MarkUplinkAcked(ctx, job.CorrelationID); err != nil {
					s.log.Warn("登记确认失败", zap.Error(err))
				}
				_ = s.queue.MarkSuccess(ctx, job)
				s.log.Info("星上确认", zap.String("correlation_id", job.CorrelationID))
				return

			case pkt.Command == satlink.TERNack && len(pkt.Payload) >= 2 && pkt.Payload[0] == job.Command:
				code := int16(int8(pkt.Payload[1]))
				if err := s.archive.MarkUplinkNacked(ctx, job.CorrelationID, code); err != nil {
					s.log.Warn("登记拒绝失败", zap.Error(err))
				}
				_ = s.queue.MarkSuccess(ctx, job)
				s.log.Warn("星上拒绝",
					zap.String("correlation_id", job.CorrelationID),
					zap.Int16("code", code))
				return

			case pkt.Command == satlink.TERLoraLink && job.Command == satlink.TECLoraPing:
				if err := s.archive.MarkUplinkAcked(ctx, job.CorrelationID); err != nil {
					s.log.Warn("登记确认失败", zap.Error(err))
				}
				_ = s.queue.MarkSuccess(ctx, job)
				return
			}
			// 其它下行帧已在 receiveOne 中归档，继续等待
		}
	}
}

func (s *Station) failJob(ctx context.Context, job *redisstorage.UplinkJob, reason string) {
	if err := s.archive.MarkUplinkFailed(ctx, job.CorrelationID, reason); err != nil {
		s.log.Warn("登记失败状态失败", zap.Error(err))
	}
	if err := s.queue.MarkFailed(ctx, job, reason); err != nil {
		s.log.Warn("重试入队失败", zap.Error(err))
	}
}

// receiveOne 读取并归档一个下行帧；解析失败返回 nil
func (s *Station) receiveOne(ctx context.Context, corrID *string) *satlink.Packet {
	raw, err := s.drv.ReadData()
	if err != nil {
		if !errors.Is(err, radio.ErrNoFrame) {
			s.log.Warn("读帧失败", zap.Error(err))
		}
		return nil
	}

	s.met.FramesReceived.Inc()
	s.met.BytesReceived.Add(float64(len(raw)))

	frame := raw
	if satlink.DataHasECC(raw) {
		decoded, err := fec.Decode(raw)
		if err != nil {
			s.met.ParseTotal.WithLabelValues("fec_error").Inc()
			s.appendJournal(ctx, pg.DirDownlink, -1, hex.EncodeToString(raw), false, "fec decode failed")
			return nil
		}
		frame = decoded
	}

	pkt, err := satlink.Unmarshal(frame)
	if err != nil {
		s.met.ParseTotal.WithLabelValues("error").Inc()
		s.appendJournal(ctx, pg.DirDownlink, -1, hex.EncodeToString(raw), false, err.Error())
		return nil
	}
	s.met.ParseTotal.WithLabelValues("ok").Inc()

	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, pkt.MAC, pkt.TimeUnix)
		if err != nil {
			s.log.Warn("去重查询失败", zap.Error(err))
		} else if seen {
			return pkt
		}
	}

	rssi := s.drv.RSSI()
	snr := s.drv.SNR()
	freqErr := s.drv.FrequencyError()
	s.met.RSSIGauge.Set(float64(rssi))
	s.met.SNRGauge.Set(float64(snr))

	tm := &models.TelemetryFrame{
		Command:       int16(pkt.Command),
		CommandName:   satlink.CommandName(pkt.Command),
		Payload:       append([]byte(nil), pkt.Payload...),
		FrameHex:      hex.EncodeToString(frame),
		SatTimeUnix:   int64(pkt.TimeUnix),
		RSSI:          &rssi,
		SNR:           &snr,
		FreqError:     &freqErr,
		CorrelationID: corrID,
	}
	if err := s.archive.SaveTelemetry(ctx, tm); err != nil {
		s.log.Warn("遥测归档失败", zap.Error(err))
	}
	s.appendJournal(ctx, pg.DirDownlink, int16(pkt.Command), hex.EncodeToString(frame), true, "")

	if s.link != nil {
		st := &redisstorage.LinkStatus{
			RSSI:        rssi,
			SNR:         snr,
			FreqError:   freqErr,
			LastCommand: pkt.Command,
			LastFrameAt: time.Now(),
		}
		if err := s.link.Set(ctx, st); err != nil {
			s.log.Warn("链路缓存更新失败", zap.Error(err))
		}
	}

	s.log.Debug("收到下行帧",
		zap.String("command", satlink.CommandName(pkt.Command)),
		zap.Float32("rssi", rssi),
		zap.Float32("snr", snr))

	return pkt
}

func (s *Station) appendJournal(ctx context.Context, dir int16, command int16, frameHex string, ok bool, note string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, dir, command, frameHex, ok, note); err != nil {
		s.log.Warn("帧流水写入失败", zap.Error(err))
	}
}

func (s *Station) waitEvent(ctx context.Context, timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-s.drv.Events():
	case <-t.C:
	}
}
