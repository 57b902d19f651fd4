package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/talentflow/pkg/models"
)

// CreatePosting inserts a posting keyed by fingerprint. Re-ingestion of an
// existing fingerprint is a no-op and returns false.
func (r *SQLiteRepo) CreatePosting(ctx context.Context, p *models.Posting) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("posting is nil")
	}
	if p.Fingerprint == "" {
		return false, fmt.Errorf("posting fingerprint is empty")
	}
	if p.FirstSeen == 0 {
		p.FirstSeen = now()
	}

	res, err := r.conn.Exec(ctx, `INSERT OR IGNORE INTO postings
		(fingerprint, platform, url, title, organization, description, requirements, compensation, location, contact_name, contact_email, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Fingerprint, p.Platform, p.URL, p.Title, p.Organization, p.Description,
		p.Requirements, p.Compensation, p.Location, p.ContactName, p.ContactEmail, p.FirstSeen)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SQLiteRepo) GetPosting(ctx context.Context, fingerprint string) (*models.Posting, error) {
	row := r.conn.QueryRow(ctx, `SELECT fingerprint, platform, url, title, organization, description, requirements, compensation, location, contact_name, contact_email, first_seen
		FROM postings WHERE fingerprint = ?`, fingerprint)
	var p models.Posting
	if err := row.Scan(&p.Fingerprint, &p.Platform, &p.URL, &p.Title, &p.Organization, &p.Description,
		&p.Requirements, &p.Compensation, &p.Location, &p.ContactName, &p.ContactEmail, &p.FirstSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *SQLiteRepo) ListPostings(ctx context.Context, limit, offset int) ([]models.Posting, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.QueryRows(ctx, `SELECT fingerprint, platform, url, title, organization, description, requirements, compensation, location, contact_name, contact_email, first_seen
		FROM postings ORDER BY first_seen DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Posting
	for rows.Next() {
		var p models.Posting
		if err := rows.Scan(&p.Fingerprint, &p.Platform, &p.URL, &p.Title, &p.Organization, &p.Description,
			&p.Requirements, &p.Compensation, &p.Location, &p.ContactName, &p.ContactEmail, &p.FirstSeen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
