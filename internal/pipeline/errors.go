package pipeline

import (
	"context"
	"errors"

	"github.com/garnizeh/talentflow/internal/analyzer"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	"github.com/garnizeh/talentflow/internal/orchestrator"
	"github.com/garnizeh/talentflow/pkg/flowise"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// FailureKind classifies a per-posting pipeline failure and decides how
// loudly it is reported.
type FailureKind string

const (
	// FailureTransient covers timeouts, 5xx replies, and the open circuit:
	// the fingerprint is released and a later sweep retries from scratch.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers malformed requests, auth errors, and invalid
	// engine output: fatal for this posting, logged at error level.
	FailurePermanent FailureKind = "permanent"
	// FailureParse means neither strict parsing nor the heuristic got
	// anything out of the posting; it stays ungated for retry.
	FailureParse FailureKind = "parse"
	// FailureIntegrity flags duplicate leads and rejected transitions,
	// logic bugs that must never be swallowed.
	FailureIntegrity FailureKind = "integrity"
)

// ClassifyError maps an error from a pipeline run onto the failure
// taxonomy.
func ClassifyError(err error) FailureKind {
	switch {
	case errors.Is(err, analyzer.ErrUnparsable):
		return FailureParse
	case errors.Is(err, repository.ErrDuplicateLead),
		errors.Is(err, repository.ErrStaleStatus),
		errors.Is(err, lifecycle.ErrInvalidTransition):
		return FailureIntegrity
	case errors.Is(err, flowise.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		flowise.IsTransient(err):
		return FailureTransient
	case errors.Is(err, orchestrator.ErrInvalidOutput):
		return FailurePermanent
	default:
		var se *flowise.StatusError
		if errors.As(err, &se) {
			// 4xx other than 429: auth failures and malformed requests.
			return FailurePermanent
		}
		return FailureTransient
	}
}
