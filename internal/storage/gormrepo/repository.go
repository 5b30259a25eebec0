package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pocketqube-lab/comms-server/internal/storage"
	"github.com/pocketqube-lab/comms-server/internal/storage/models"
)

// Repository 基于 GORM 的 ArchiveRepo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 ArchiveRepo 实例。
func New(db *gorm.DB) storage.ArchiveRepo {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.ArchiveRepo) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// SaveTelemetry 归档一条下行遥测帧。
func (r *Repository) SaveTelemetry(ctx context.Context, frame *models.TelemetryFrame) error {
	return r.db.WithContext(ctx).Create(frame).Error
}

// ListTelemetry 分页返回遥测帧，按接收时间倒序。
func (r *Repository) ListTelemetry(ctx context.Context, command int16, limit, offset int) ([]models.TelemetryFrame, error) {
	var frames []models.TelemetryFrame
	q := r.db.WithContext(ctx).Order("received_at DESC")
	if command >= 0 {
		q = q.Where("command = ?", command)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&frames).Error; err != nil {
		return nil, err
	}
	return frames, nil
}

// LatestTelemetry 返回指定指令码最近的一帧。
func (r *Repository) LatestTelemetry(ctx context.Context, command int16) (*models.TelemetryFrame, error) {
	var frame models.TelemetryFrame
	err := r.db.WithContext(ctx).
		Where("command = ?", command).
		Order("received_at DESC").
		First(&frame).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &frame, err
}

// CreateUplink 登记一条待上行指令。
func (r *Repository) CreateUplink(ctx context.Context, cmd *models.UplinkCommand) error {
	return r.db.WithContext(ctx).Create(cmd).Error
}

// GetUplinkByCorrelation 按关联号查询上行指令。
func (r *Repository) GetUplinkByCorrelation(ctx context.Context, corrID string) (*models.UplinkCommand, error) {
	var cmd models.UplinkCommand
	err := r.db.WithContext(ctx).Where("correlation_id = ?", corrID).First(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &cmd, err
}

// ListUplinks 分页返回上行指令，按创建时间倒序。
func (r *Repository) ListUplinks(ctx context.Context, status int32, limit, offset int) ([]models.UplinkCommand, error) {
	var cmds []models.UplinkCommand
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status >= 0 {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}

// MarkUplinkSent 标记指令已发射并累加重试计数。
func (r *Repository) MarkUplinkSent(ctx context.Context, corrID string, at time.Time) error {
	return r.updateUplink(ctx, corrID, map[string]interface{}{
		"status":      models.UplinkSent,
		"sent_at":     at,
		"retry_count": gorm.Expr("retry_count + 1"),
	})
}

// MarkUplinkAcked 标记指令已被星上确认。
func (r *Repository) MarkUplinkAcked(ctx context.Context, corrID string) error {
	return r.updateUplink(ctx, corrID, map[string]interface{}{
		"status": models.UplinkAcked,
	})
}

// MarkUplinkNacked 标记指令被星上拒绝并记录错误码。
func (r *Repository) MarkUplinkNacked(ctx context.Context, corrID string, code int16) error {
	return r.updateUplink(ctx, corrID, map[string]interface{}{
		"status":    models.UplinkNacked,
		"nack_code": code,
	})
}

// MarkUplinkFailed 标记指令发射失败并记录错误。
func (r *Repository) MarkUplinkFailed(ctx context.Context, corrID string, lastError string) error {
	return r.updateUplink(ctx, corrID, map[string]interface{}{
		"status":     models.UplinkFailed,
		"last_error": lastError,
	})
}

func (r *Repository) updateUplink(ctx context.Context, corrID string, updates map[string]interface{}) error {
	updates["updated_at"] = gorm.Expr("NOW()")

	res := r.db.WithContext(ctx).
		Model(&models.UplinkCommand{}).
		Where("correlation_id = ?", corrID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
