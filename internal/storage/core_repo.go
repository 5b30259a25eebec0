package storage

import (
	"context"
	"time"

	"github.com/pocketqube-lab/comms-server/internal/storage/models"
)

// ArchiveRepo 面向地面站业务的存储抽象。
// 约束：
// - 禁止上层直接写 SQL，统一通过本接口访问
// - 实现需要提供事务封装 WithTx，保证归档路径原子性
// - 接口必须保持 DB-agnostic（面向模型与基础类型）
type ArchiveRepo interface {
	// ---------- 事务 ----------
	// WithTx 在单个事务中执行 fn，fn 内使用 repo 执行的所有写入/读取都在同一事务中。
	// 实现应保证嵌套调用正确复用当前事务。
	WithTx(ctx context.Context, fn func(repo ArchiveRepo) error) error

	// ---------- 遥测归档 ----------
	// SaveTelemetry 归档一条下行遥测帧
	SaveTelemetry(ctx context.Context, frame *models.TelemetryFrame) error
	// ListTelemetry 按指令码倒序分页查询；command < 0 表示不过滤
	ListTelemetry(ctx context.Context, command int16, limit, offset int) ([]models.TelemetryFrame, error)
	// LatestTelemetry 指定指令码最近的一帧
	LatestTelemetry(ctx context.Context, command int16) (*models.TelemetryFrame, error)

	// ---------- 上行指令 ----------
	// CreateUplink 登记一条待上行指令
	CreateUplink(ctx context.Context, cmd *models.UplinkCommand) error
	// GetUplinkByCorrelation 按关联号查询
	GetUplinkByCorrelation(ctx context.Context, corrID string) (*models.UplinkCommand, error)
	// ListUplinks 按状态倒序分页查询；status < 0 表示不过滤
	ListUplinks(ctx context.Context, status int32, limit, offset int) ([]models.UplinkCommand, error)
	// MarkUplinkSent 标记已发射
	MarkUplinkSent(ctx context.Context, corrID string, at time.Time) error
	// MarkUplinkAcked 标记星上确认
	MarkUplinkAcked(ctx context.Context, corrID string) error
	// MarkUplinkNacked 标记星上拒绝并记录错误码
	MarkUplinkNacked(ctx context.Context, corrID string, code int16) error
	// MarkUplinkFailed 标记发射失败并记录错误
	MarkUplinkFailed(ctx context.Context, corrID string, lastError string) error
}
