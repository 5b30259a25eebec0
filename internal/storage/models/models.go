package models

import (
	"time"
)

// 注意：
// - 保持与 db/migrations/full_schema.sql 完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// TelemetryFrame 映射 telemetry_frames 表（下行帧归档）
type TelemetryFrame struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 指令码与助记名
	Command     int16  `gorm:"column:command;not null;index:idx_telemetry_cmd_time,priority:1"`
	CommandName string `gorm:"column:command_name;type:text;not null"`
	// 原始载荷与整帧十六进制
	Payload  []byte `gorm:"column:payload"`
	FrameHex string `gorm:"column:frame_hex;type:text;not null"`
	// 星上时戳（帧头 time_unix 字段）
	SatTimeUnix int64 `gorm:"column:sat_time_unix;not null"`
	// 链路质量，可空
	RSSI      *float32 `gorm:"column:rssi"`
	SNR       *float32 `gorm:"column:snr"`
	FreqError *float32 `gorm:"column:freq_error"`
	// 关联的上行指令，可空
	CorrelationID *string   `gorm:"column:correlation_id;type:text;index"`
	ReceivedAt    time.Time `gorm:"column:received_at;autoCreateTime;index:idx_telemetry_cmd_time,priority:2,sort:desc"`
}

func (TelemetryFrame) TableName() string { return "telemetry_frames" }

// 上行指令状态
const (
	UplinkPending = 0
	UplinkSent    = 1
	UplinkAcked   = 2
	UplinkNacked  = 3
	UplinkFailed  = 4
)

// UplinkCommand 映射 uplink_commands 表（上行指令归档与状态跟踪）
type UplinkCommand struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CorrelationID string `gorm:"column:correlation_id;type:text;not null;uniqueIndex"`
	Command       int16  `gorm:"column:command;not null"`
	CommandName   string `gorm:"column:command_name;type:text;not null"`
	Payload       []byte `gorm:"column:payload"`
	ECC           bool   `gorm:"column:ecc;not null;default:false"`
	Priority      int32  `gorm:"column:priority;not null;default:100"`
	Status        int32  `gorm:"column:status;not null;default:0;index"`
	RetryCount    int32  `gorm:"column:retry_count;not null;default:0"`
	// NACK 带回的错误码，可空
	NackCode  *int16     `gorm:"column:nack_code"`
	LastError *string    `gorm:"column:last_error;type:text"`
	SentAt    *time.Time `gorm:"column:sent_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (UplinkCommand) TableName() string { return "uplink_commands" }
