package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner 执行 Dir 下的向上迁移，文件名形如 0001_init_up.sql，数字前缀即版本号
type Runner struct {
	Dir string
}

type upFile struct {
	version int64
	path    string
}

// Up 按版本号顺序应用未执行过的 *_up.sql，每个文件单独一个事务
func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) error {
	if r.Dir == "" {
		return errors.New("migrations dir is empty")
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	fsys := os.DirFS(r.Dir)
	ups, err := discoverUpFiles(fsys)
	if err != nil {
		return err
	}

	for _, m := range ups {
		if applied[m.version] {
			continue
		}
		if err := r.applyOne(ctx, db, fsys, m); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (r Runner) applyOne(ctx context.Context, db *pgxpool.Pool, fsys fs.FS, m upFile) error {
	content, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, string(content)); err == nil {
		_, err = tx.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1,$2)`, m.version, time.Now())
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func ensureVersionTable(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	return err
}

func appliedVersions(ctx context.Context, db *pgxpool.Pool) (map[int64]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res[v] = true
	}
	return res, rows.Err()
}

func discoverUpFiles(fsys fs.FS) ([]upFile, error) {
	var files []upFile
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if !strings.HasSuffix(name, "_up.sql") {
			return nil
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil
		}
		ver, convErr := strconv.ParseInt(prefix, 10, 64)
		if convErr != nil {
			return nil
		}
		files = append(files, upFile{version: ver, path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
