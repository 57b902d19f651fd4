package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/talentflow/pkg/models"
)

// CreateAnalysis stores one analysis run, assigning the next version for the
// posting. The insert and the version pick happen in one transaction.
func (r *SQLiteRepo) CreateAnalysis(ctx context.Context, a *models.AnalysisResult) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("analysis is nil")
	}
	if a.Fingerprint == "" {
		return 0, fmt.Errorf("analysis fingerprint is empty")
	}
	if a.Seniority == "" {
		a.Seniority = models.SeniorityUnknown
	}
	if a.Created == 0 {
		a.Created = now()
	}

	resp := mustJSON(a.Responsibilities)
	reqs := mustJSON(a.TechRequirements)
	metrics := mustJSON(a.TargetMetrics)
	grounding := mustJSON(a.GroundingContext)

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM analysis_results WHERE fingerprint = ?`, a.Fingerprint).Scan(&version); err != nil {
		return 0, fmt.Errorf("next analysis version: %w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO analysis_results
		(fingerprint, version, responsibilities, technical_requirements, target_metrics, seniority, grounding_context, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Fingerprint, version, resp, reqs, metrics, string(a.Seniority), grounding, a.Created)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	a.Version = version
	a.ID, _ = res.LastInsertId()
	return a.ID, nil
}

func (r *SQLiteRepo) LatestAnalysis(ctx context.Context, fingerprint string) (*models.AnalysisResult, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, fingerprint, version, responsibilities, technical_requirements, target_metrics, seniority, grounding_context, created
		FROM analysis_results WHERE fingerprint = ? ORDER BY version DESC LIMIT 1`, fingerprint)

	var a models.AnalysisResult
	var resp, reqs, metrics, grounding string
	var seniority string
	if err := row.Scan(&a.ID, &a.Fingerprint, &a.Version, &resp, &reqs, &metrics, &seniority, &grounding, &a.Created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.Seniority = models.NormalizeSeniority(seniority)
	_ = json.Unmarshal([]byte(resp), &a.Responsibilities)
	_ = json.Unmarshal([]byte(reqs), &a.TechRequirements)
	_ = json.Unmarshal([]byte(metrics), &a.TargetMetrics)
	_ = json.Unmarshal([]byte(grounding), &a.GroundingContext)
	return &a, nil
}

func mustJSON(v []string) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
