package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/talentflow/pkg/repository"
)

// The dedup index is a tri-state flag per fingerprint: absent (no row),
// inflight, done. All state changes below are single statements, so the
// sqlite writer serializes them; MarkProcessing is the compare-and-set gate
// that guarantees at most one concurrent pipeline run per fingerprint.

func (r *SQLiteRepo) ShouldProcess(ctx context.Context, fingerprint string) (bool, error) {
	row := r.conn.QueryRow(ctx, `SELECT state FROM dedup_index WHERE fingerprint = ?`, fingerprint)
	var state string
	if err := row.Scan(&state); err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return false, nil
}

func (r *SQLiteRepo) MarkProcessing(ctx context.Context, fingerprint string) error {
	res, err := r.conn.Exec(ctx, `INSERT INTO dedup_index (fingerprint, state, updated)
		VALUES (?, 'inflight', ?) ON CONFLICT(fingerprint) DO NOTHING`, fingerprint, now())
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if n > 0 {
		return nil
	}

	// lost the insert race or the fingerprint is finished; report which
	row := r.conn.QueryRow(ctx, `SELECT state FROM dedup_index WHERE fingerprint = ?`, fingerprint)
	var state string
	if err := row.Scan(&state); err != nil {
		if err == sql.ErrNoRows {
			// released between statements; let the caller retry on the next sweep
			return repository.ErrAlreadyInFlight
		}
		return fmt.Errorf("mark processing: %w", err)
	}
	if state == "done" {
		return repository.ErrAlreadyDone
	}
	return repository.ErrAlreadyInFlight
}

func (r *SQLiteRepo) MarkDone(ctx context.Context, fingerprint string) error {
	_, err := r.conn.Exec(ctx, `UPDATE dedup_index SET state = 'done', updated = ?
		WHERE fingerprint = ? AND state = 'inflight'`, now(), fingerprint)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Release(ctx context.Context, fingerprint string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM dedup_index WHERE fingerprint = ? AND state = 'inflight'`, fingerprint)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}
