package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/talentflow/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

// Store errors shared by implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateLead is returned when a lead already exists for a fingerprint.
	ErrDuplicateLead = errors.New("lead already exists for posting")
	// ErrAlreadyInFlight is returned by MarkProcessing when another pipeline
	// run holds the fingerprint.
	ErrAlreadyInFlight = errors.New("fingerprint already in flight")
	// ErrAlreadyDone is returned by MarkProcessing for a finished fingerprint.
	ErrAlreadyDone = errors.New("fingerprint already processed")
	// ErrStaleStatus is returned when an atomic transition loses a race:
	// the lead's status no longer matches the expected one.
	ErrStaleStatus = errors.New("lead status changed concurrently")
)

type PostingRepo interface {
	// CreatePosting stores a posting. Returns false when the fingerprint is
	// already present; the stored record stays untouched in that case.
	CreatePosting(ctx context.Context, p *models.Posting) (bool, error)
	GetPosting(ctx context.Context, fingerprint string) (*models.Posting, error)
	ListPostings(ctx context.Context, limit, offset int) ([]models.Posting, error)
}

type DedupRepo interface {
	// ShouldProcess reports whether the fingerprint is absent from the index.
	ShouldProcess(ctx context.Context, fingerprint string) (bool, error)
	// MarkProcessing atomically moves absent → inflight. Returns
	// ErrAlreadyInFlight or ErrAlreadyDone when the CAS loses.
	MarkProcessing(ctx context.Context, fingerprint string) error
	// MarkDone moves inflight → done. Done is permanent.
	MarkDone(ctx context.Context, fingerprint string) error
	// Release moves inflight → absent so a later sweep may retry.
	Release(ctx context.Context, fingerprint string) error
}

type AnalysisRepo interface {
	// CreateAnalysis stores a run and assigns the next version for the
	// posting, starting at 1.
	CreateAnalysis(ctx context.Context, a *models.AnalysisResult) (int64, error)
	LatestAnalysis(ctx context.Context, fingerprint string) (*models.AnalysisResult, error)
}

type LeadRepo interface {
	// CreateLead inserts a lead in status pending. Returns ErrDuplicateLead
	// when a lead already exists for the posting.
	CreateLead(ctx context.Context, l *models.Lead) error
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	GetLeadByFingerprint(ctx context.Context, fingerprint string) (*models.Lead, error)
	// ListLeads filters by status when status is non-empty.
	ListLeads(ctx context.Context, status models.LeadStatus, limit, offset int) ([]models.Lead, error)
	CountLeadsByStatus(ctx context.Context) (map[models.LeadStatus]int64, error)
	// UpdateLeadResponse supersedes the generated response after re-analysis.
	UpdateLeadResponse(ctx context.Context, id, response string) error
	SetMeetingURL(ctx context.Context, id, url string) error
	// ApplyTransition updates the cached status from `from` to `to` and
	// appends exactly one interaction, in a single transaction. A failed
	// status compare-and-swap returns ErrStaleStatus and writes nothing.
	ApplyTransition(ctx context.Context, id string, from, to models.LeadStatus, it *models.Interaction) error
	// AppendInteraction records an event that does not change status.
	AppendInteraction(ctx context.Context, it *models.Interaction) (int64, error)
	ListInteractions(ctx context.Context, leadID string) ([]models.Interaction, error)
}

type ResponseCacheRepo interface {
	GetResponse(ctx context.Context, fingerprint, profileID string, analysisVersion int64) (*models.GeneratedResponse, error)
	PutResponse(ctx context.Context, fingerprint, profileID string, analysisVersion int64, r *models.GeneratedResponse) error
	// InvalidateResponses drops all cached responses for a fingerprint,
	// used when an analysis is superseded.
	InvalidateResponses(ctx context.Context, fingerprint string) error
}

type ActionLogRepo interface {
	AppendAction(ctx context.Context, a *models.ActionLog) (int64, error)
	ListActions(ctx context.Context, limit, offset int) ([]models.ActionLog, error)
}

// SettingRepo is the flat key→value configuration table used for operational
// counters (last scan time, cumulative totals), not business logic.
type SettingRepo interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	IncrSetting(ctx context.Context, key string, delta int64) (int64, error)
}

type OperatorRepo interface {
	CreateOperator(ctx context.Context, o *models.Operator) (int64, error)
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	CountOperators(ctx context.Context) (int64, error)
}

type SchemaRepo interface {
	CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error)
	GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error)
	ListSchemas(ctx context.Context) ([]models.Schema, error)
}

type TemplateRepo interface {
	GetTemplate(ctx context.Context, name, version string) (*models.Template, error)
}

// Repository aggregates the individual contracts for consumers that need
// several of them wired together.
type Repository struct {
	Postings  PostingRepo
	Dedup     DedupRepo
	Analyses  AnalysisRepo
	Leads     LeadRepo
	Cache     ResponseCacheRepo
	Actions   ActionLogRepo
	Settings  SettingRepo
	Operators OperatorRepo
	Schemas   SchemaRepo
	Templates TemplateRepo
}
