package gs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/config"
	"github.com/pocketqube-lab/comms-server/internal/protocol/satlink"
	"github.com/pocketqube-lab/comms-server/internal/storage"
	"github.com/pocketqube-lab/comms-server/internal/storage/models"
	redisstorage "github.com/pocketqube-lab/comms-server/internal/storage/redis"
)

// Uplinker 上行指令受理：登记归档行并投入调度队列
type Uplinker struct {
	queue    *redisstorage.UplinkQueue
	archive  storage.ArchiveRepo
	defaults config.UplinkConfig
	log      *zap.Logger
}

// NewUplinker 创建上行受理器
func NewUplinker(queue *redisstorage.UplinkQueue, archive storage.ArchiveRepo, defaults config.UplinkConfig, logger *zap.Logger) *Uplinker {
	return &Uplinker{
		queue:    queue,
		archive:  archive,
		defaults: defaults,
		log:      logger.Named("uplink"),
	}
}

// SubmitRequest 单条上行指令请求
type SubmitRequest struct {
	Command  byte
	Payload  []byte
	ECC      bool
	Priority int
}

// Submit 受理一条上行指令，返回关联号
func (u *Uplinker) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !satlink.IsTEC(req.Command) {
		return "", fmt.Errorf("unknown telecommand 0x%02x", req.Command)
	}
	if len(req.Payload) > satlink.MaxPayloadLen {
		return "", fmt.Errorf("payload too long: %d bytes", len(req.Payload))
	}

	priority := req.Priority
	if priority <= 0 {
		priority = u.defaults.DefaultPriority
	}

	corrID := uuid.NewString()
	now := time.Now()

	row := &models.UplinkCommand{
		CorrelationID: corrID,
		Command:       int16(req.Command),
		CommandName:   satlink.CommandName(req.Command),
		Payload:       append([]byte(nil), req.Payload...),
		ECC:           req.ECC,
		Priority:      int32(priority),
		Status:        models.UplinkPending,
	}
	if err := u.archive.CreateUplink(ctx, row); err != nil {
		return "", fmt.Errorf("create uplink row: %w", err)
	}

	job := &redisstorage.UplinkJob{
		CorrelationID: corrID,
		Command:       req.Command,
		CommandName:   satlink.CommandName(req.Command),
		Payload:       append([]byte(nil), req.Payload...),
		ECC:           req.ECC,
		Priority:      priority,
		MaxRetry:      u.defaults.MaxRetry,
		CreatedAt:     now,
		UpdatedAt:     now,
		TimeoutMS:     int(u.defaults.AckTimeout / time.Millisecond),
	}
	if err := u.queue.Enqueue(ctx, job); err != nil {
		if ferr := u.archive.MarkUplinkFailed(ctx, corrID, "enqueue: "+err.Error()); ferr != nil {
			u.log.Warn("登记入队失败状态失败", zap.Error(ferr))
		}
		return "", fmt.Errorf("enqueue uplink: %w", err)
	}

	u.log.Info("上行指令已受理",
		zap.String("correlation_id", corrID),
		zap.String("command", satlink.CommandName(req.Command)),
		zap.Int("priority", priority),
		zap.Bool("ecc", req.ECC))

	return corrID, nil
}

// SubmitTLE 将两行根数切片为 5 条 ADCS_TLE 指令依次受理
func (u *Uplinker) SubmitTLE(ctx context.Context, t *TLE) ([]string, error) {
	chunks, err := t.Chunks()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := u.Submit(ctx, SubmitRequest{
			Command:  satlink.TECAdcsTLE,
			Payload:  chunk,
			ECC:      true,
			Priority: 9,
		})
		if err != nil {
			return ids, fmt.Errorf("submit tle chunk %d: %w", chunk[0], err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
