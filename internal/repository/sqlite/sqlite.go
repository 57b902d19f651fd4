package sqlite

import (
	"log/slog"
	"time"

	"github.com/garnizeh/talentflow/internal/db"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.PostingRepo = (*SQLiteRepo)(nil)
var _ repository.DedupRepo = (*SQLiteRepo)(nil)
var _ repository.AnalysisRepo = (*SQLiteRepo)(nil)
var _ repository.LeadRepo = (*SQLiteRepo)(nil)
var _ repository.ResponseCacheRepo = (*SQLiteRepo)(nil)
var _ repository.ActionLogRepo = (*SQLiteRepo)(nil)
var _ repository.SettingRepo = (*SQLiteRepo)(nil)
var _ repository.OperatorRepo = (*SQLiteRepo)(nil)
var _ repository.SchemaRepo = (*SQLiteRepo)(nil)
var _ repository.TemplateRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

// Aggregate returns the repo wired into every slot of the public aggregate.
func (r *SQLiteRepo) Aggregate() *repository.Repository {
	return &repository.Repository{
		Postings:  r,
		Dedup:     r,
		Analyses:  r,
		Leads:     r,
		Cache:     r,
		Actions:   r,
		Settings:  r,
		Operators: r,
		Schemas:   r,
		Templates: r,
	}
}

func now() int64 {
	return time.Now().UTC().Unix()
}
