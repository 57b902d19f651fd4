package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/talentflow/pkg/models"
)

func (r *SQLiteRepo) AppendAction(ctx context.Context, a *models.ActionLog) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("action is nil")
	}
	if a.Created == 0 {
		a.Created = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO agent_logs (action, status, fingerprint, lead_id, error, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Action, a.Status, a.Fingerprint, a.LeadID, a.Error, a.Created)
	if err != nil {
		return 0, fmt.Errorf("append action: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) ListActions(ctx context.Context, limit, offset int) ([]models.ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT id, action, status, fingerprint, lead_id, error, created
		FROM agent_logs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ActionLog
	for rows.Next() {
		var a models.ActionLog
		if err := rows.Scan(&a.ID, &a.Action, &a.Status, &a.Fingerprint, &a.LeadID, &a.Error, &a.Created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
