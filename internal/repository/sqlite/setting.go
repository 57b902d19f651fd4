package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

func (r *SQLiteRepo) GetSetting(ctx context.Context, key string) (string, error) {
	row := r.conn.QueryRow(ctx, `SELECT value FROM configuration WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (r *SQLiteRepo) PutSetting(ctx context.Context, key, value string) error {
	_, err := r.conn.Exec(ctx, `INSERT INTO configuration (key, value, updated) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
		key, value, now())
	return err
}

// IncrSetting adds delta to a numeric counter and returns the new value.
// Missing or non-numeric values count as zero.
func (r *SQLiteRepo) IncrSetting(ctx context.Context, key string, delta int64) (int64, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM configuration WHERE key = ?`, key).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	cur, _ := strconv.ParseInt(raw, 10, 64)
	next := cur + delta

	if _, err := tx.ExecContext(ctx, `INSERT INTO configuration (key, value, updated) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
		key, strconv.FormatInt(next, 10), now()); err != nil {
		return 0, fmt.Errorf("write counter %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}
