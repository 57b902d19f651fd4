package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

func (r *SQLiteRepo) CreateLead(ctx context.Context, l *models.Lead) error {
	if l == nil {
		return fmt.Errorf("lead is nil")
	}
	if l.ID == "" || l.Fingerprint == "" {
		return fmt.Errorf("lead id and fingerprint are required")
	}
	if l.Status == "" {
		l.Status = models.StatusPending
	}
	if l.Created == 0 {
		l.Created = now()
	}

	_, err := r.conn.Exec(ctx, `INSERT INTO leads (id, fingerprint, response, status, meeting_url, notes, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Fingerprint, l.Response, string(l.Status), l.MeetingURL, l.Notes, l.Created)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return repository.ErrDuplicateLead
		}
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	return r.scanLead(r.conn.QueryRow(ctx, leadColumns+` WHERE id = ?`, id))
}

func (r *SQLiteRepo) GetLeadByFingerprint(ctx context.Context, fingerprint string) (*models.Lead, error) {
	return r.scanLead(r.conn.QueryRow(ctx, leadColumns+` WHERE fingerprint = ?`, fingerprint))
}

const leadColumns = `SELECT id, fingerprint, response, status, meeting_url, notes, created, sent_at, responded_at FROM leads`

func (r *SQLiteRepo) scanLead(row *sql.Row) (*models.Lead, error) {
	var l models.Lead
	var status string
	var sentAt, respondedAt sql.NullInt64
	if err := row.Scan(&l.ID, &l.Fingerprint, &l.Response, &status, &l.MeetingURL, &l.Notes, &l.Created, &sentAt, &respondedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	l.Status = models.LeadStatus(status)
	if sentAt.Valid {
		l.SentAt = &sentAt.Int64
	}
	if respondedAt.Valid {
		l.RespondedAt = &respondedAt.Int64
	}
	return &l, nil
}

func (r *SQLiteRepo) ListLeads(ctx context.Context, status models.LeadStatus, limit, offset int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 50
	}

	q := leadColumns + ` ORDER BY created DESC LIMIT ? OFFSET ?`
	args := []any{limit, offset}
	if status != "" {
		q = leadColumns + ` WHERE status = ? ORDER BY created DESC LIMIT ? OFFSET ?`
		args = []any{string(status), limit, offset}
	}

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		var l models.Lead
		var st string
		var sentAt, respondedAt sql.NullInt64
		if err := rows.Scan(&l.ID, &l.Fingerprint, &l.Response, &st, &l.MeetingURL, &l.Notes, &l.Created, &sentAt, &respondedAt); err != nil {
			return nil, err
		}
		l.Status = models.LeadStatus(st)
		if sentAt.Valid {
			l.SentAt = &sentAt.Int64
		}
		if respondedAt.Valid {
			l.RespondedAt = &respondedAt.Int64
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CountLeadsByStatus(ctx context.Context) (map[models.LeadStatus]int64, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.LeadStatus]int64)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[models.LeadStatus(st)] = n
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateLeadResponse(ctx context.Context, id, response string) error {
	res, err := r.conn.Exec(ctx, `UPDATE leads SET response = ? WHERE id = ?`, response, id)
	if err != nil {
		return fmt.Errorf("update lead response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) SetMeetingURL(ctx context.Context, id, url string) error {
	res, err := r.conn.Exec(ctx, `UPDATE leads SET meeting_url = ? WHERE id = ?`, url, id)
	if err != nil {
		return fmt.Errorf("set meeting url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ApplyTransition updates the cached status and appends one interaction in a
// single transaction. The status update is a compare-and-swap against the
// expected current status; a lost race rolls back with ErrStaleStatus so no
// partial application is ever observable.
func (r *SQLiteRepo) ApplyTransition(ctx context.Context, id string, from, to models.LeadStatus, it *models.Interaction) error {
	if it == nil {
		return fmt.Errorf("interaction is nil")
	}
	if it.Created == 0 {
		it.Created = now()
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE leads SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrStaleStatus
	}

	switch to {
	case models.StatusSent:
		if _, err := tx.ExecContext(ctx, `UPDATE leads SET sent_at = ? WHERE id = ?`, it.Created, id); err != nil {
			return fmt.Errorf("stamp sent_at: %w", err)
		}
	case models.StatusResponded:
		if _, err := tx.ExecContext(ctx, `UPDATE leads SET responded_at = ? WHERE id = ?`, it.Created, id); err != nil {
			return fmt.Errorf("stamp responded_at: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO interactions (lead_id, kind, body, created) VALUES (?, ?, ?, ?)`,
		id, string(it.Kind), it.Body, it.Created); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}

	return tx.Commit()
}

func (r *SQLiteRepo) AppendInteraction(ctx context.Context, it *models.Interaction) (int64, error) {
	if it == nil {
		return 0, fmt.Errorf("interaction is nil")
	}
	if it.Created == 0 {
		it.Created = now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO interactions (lead_id, kind, body, created) VALUES (?, ?, ?, ?)`,
		it.LeadID, string(it.Kind), it.Body, it.Created)
	if err != nil {
		return 0, fmt.Errorf("append interaction: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) ListInteractions(ctx context.Context, leadID string) ([]models.Interaction, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, lead_id, kind, body, created FROM interactions WHERE lead_id = ? ORDER BY id`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var it models.Interaction
		var kind string
		if err := rows.Scan(&it.ID, &it.LeadID, &kind, &it.Body, &it.Created); err != nil {
			return nil, err
		}
		it.Kind = models.InteractionKind(kind)
		out = append(out, it)
	}
	return out, rows.Err()
}
