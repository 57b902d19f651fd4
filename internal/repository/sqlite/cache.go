package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/talentflow/pkg/models"
)

// Response cache entries are tied to immutable analysis snapshots, so they
// never expire implicitly; InvalidateResponses drops them when an analysis
// is superseded.

func (r *SQLiteRepo) GetResponse(ctx context.Context, fingerprint, profileID string, analysisVersion int64) (*models.GeneratedResponse, error) {
	row := r.conn.QueryRow(ctx, `SELECT response_json FROM response_cache
		WHERE fingerprint = ? AND profile_id = ? AND analysis_version = ?`,
		fingerprint, profileID, analysisVersion)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var resp models.GeneratedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	resp.Cached = true
	return &resp, nil
}

func (r *SQLiteRepo) PutResponse(ctx context.Context, fingerprint, profileID string, analysisVersion int64, resp *models.GeneratedResponse) error {
	if resp == nil {
		return fmt.Errorf("response is nil")
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = r.conn.Exec(ctx, `INSERT OR REPLACE INTO response_cache
		(fingerprint, profile_id, analysis_version, response_json, created)
		VALUES (?, ?, ?, ?, ?)`,
		fingerprint, profileID, analysisVersion, string(b), now())
	return err
}

func (r *SQLiteRepo) InvalidateResponses(ctx context.Context, fingerprint string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM response_cache WHERE fingerprint = ?`, fingerprint)
	return err
}
