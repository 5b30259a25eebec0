package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// 帧方向
const (
	DirDownlink int16 = 0
	DirUplink   int16 = 1
)

// JournalEntry 原始帧日志记录
type JournalEntry struct {
	ID        int64
	Direction int16
	Command   int16
	FrameHex  string
	OK        bool
	Note      string
	CreatedAt time.Time
}

// Journal 原始帧收发流水，独立于业务归档表，用于链路排障
type Journal struct {
	Pool *pgxpool.Pool
}

// Append 追加一条帧流水
func (j *Journal) Append(ctx context.Context, direction int16, command int16, frameHex string, ok bool, note string) error {
	const q = `INSERT INTO frame_journal (direction, command, frame_hex, ok, note, created_at)
               VALUES ($1,$2,$3,$4,$5,NOW())`
	_, err := j.Pool.Exec(ctx, q, direction, command, frameHex, ok, note)
	return err
}

// Recent 返回最近的帧流水，按时间倒序
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, direction, command, frame_hex, ok, note, created_at
               FROM frame_journal
               ORDER BY created_at DESC
               LIMIT $1`
	rows, err := j.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Direction, &e.Command, &e.FrameHex, &e.OK, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountSince 统计某时刻以来指定方向的帧数
func (j *Journal) CountSince(ctx context.Context, direction int16, since time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM frame_journal WHERE direction = $1 AND created_at >= $2`
	var n int64
	err := j.Pool.QueryRow(ctx, q, direction, since).Scan(&n)
	return n, err
}
