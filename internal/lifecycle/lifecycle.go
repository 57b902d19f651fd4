// Package lifecycle owns the lead state machine. Every status change goes
// through the transition table here and lands in the store as exactly one
// interaction plus the cached status update.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table. It signals a logic or ordering bug in the caller,
// not a retryable condition.
var ErrInvalidTransition = errors.New("invalid lead transition")

// transitions maps every non-terminal status to its allowed successors.
var transitions = map[models.LeadStatus][]models.LeadStatus{
	models.StatusPending:   {models.StatusSent, models.StatusDisqualified},
	models.StatusSent:      {models.StatusResponded, models.StatusDisqualified},
	models.StatusResponded: {models.StatusQualified, models.StatusDisqualified},
	models.StatusQualified: {models.StatusClosed, models.StatusDisqualified},
}

// Allowed reports whether the transition table permits from → to.
func Allowed(from, to models.LeadStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Manager coordinates lead creation and transitions on top of the lead
// repository. It holds no state of its own.
type Manager struct {
	leads  repository.LeadRepo
	logger *slog.Logger
}

func New(leads repository.LeadRepo, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{leads: leads, logger: logger}
}

// CreateLead records a new pending lead for a posting. The lead ID is a
// time-ordered UUIDv7. Returns repository.ErrDuplicateLead when a lead
// already exists for the fingerprint; callers retrying an orchestrator run
// should resolve that to the existing lead via LeadByFingerprint.
func (m *Manager) CreateLead(ctx context.Context, fingerprint, response string) (*models.Lead, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate lead id: %w", err)
	}

	lead := &models.Lead{
		ID:          id.String(),
		Fingerprint: fingerprint,
		Response:    response,
	}
	if err := m.leads.CreateLead(ctx, lead); err != nil {
		return nil, err
	}

	m.logger.Info("lead created", "lead_id", lead.ID, "fingerprint", fingerprint)
	return lead, nil
}

// LeadByFingerprint resolves the existing lead for a posting, used when
// CreateLead reports a duplicate.
func (m *Manager) LeadByFingerprint(ctx context.Context, fingerprint string) (*models.Lead, error) {
	lead, err := m.leads.GetLeadByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, repository.ErrNotFound
	}
	return lead, nil
}

// Transition applies one status change. The interaction and the cached
// status are written in a single transaction; a rejected transition leaves
// both untouched.
func (m *Manager) Transition(ctx context.Context, leadID string, to models.LeadStatus, it *models.Interaction) error {
	lead, err := m.leads.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if lead == nil {
		return repository.ErrNotFound
	}
	if !Allowed(lead.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, lead.Status, to)
	}

	if it == nil {
		it = &models.Interaction{}
	}
	it.LeadID = leadID
	if it.Kind == "" {
		it.Kind = models.InteractionNote
	}

	if err := m.leads.ApplyTransition(ctx, leadID, lead.Status, to, it); err != nil {
		return err
	}

	m.logger.Info("lead transition", "lead_id", leadID, "from", lead.Status, "to", to, "kind", it.Kind)
	return nil
}

// MarkSent applies pending → sent after the dispatch layer confirms the
// outbound send.
func (m *Manager) MarkSent(ctx context.Context, leadID, body string) error {
	return m.Transition(ctx, leadID, models.StatusSent, &models.Interaction{
		Kind: models.InteractionOutboundSend,
		Body: body,
	})
}

// RecordInboundReply applies sent → responded when a recruiter reply comes
// in.
func (m *Manager) RecordInboundReply(ctx context.Context, leadID, body string) error {
	return m.Transition(ctx, leadID, models.StatusResponded, &models.Interaction{
		Kind: models.InteractionInboundReply,
		Body: body,
	})
}

// ScheduleMeeting promotes responded → qualified and stores the booked
// meeting URL on the lead.
func (m *Manager) ScheduleMeeting(ctx context.Context, leadID, meetingURL string) error {
	err := m.Transition(ctx, leadID, models.StatusQualified, &models.Interaction{
		Kind: models.InteractionMeetingScheduled,
		Body: meetingURL,
	})
	if err != nil {
		return err
	}
	if meetingURL != "" {
		if err := m.leads.SetMeetingURL(ctx, leadID, meetingURL); err != nil {
			return fmt.Errorf("store meeting url: %w", err)
		}
	}
	return nil
}

// Close applies qualified → closed with a manual closure outcome.
func (m *Manager) Close(ctx context.Context, leadID, outcome string) error {
	return m.Transition(ctx, leadID, models.StatusClosed, &models.Interaction{
		Kind: models.InteractionClosure,
		Body: outcome,
	})
}

// Disqualify moves any non-terminal lead to the terminal disqualified
// status.
func (m *Manager) Disqualify(ctx context.Context, leadID, reason string) error {
	return m.Transition(ctx, leadID, models.StatusDisqualified, &models.Interaction{
		Kind: models.InteractionDisqualified,
		Body: reason,
	})
}

// AddNote appends a free-text note without touching the lead status.
func (m *Manager) AddNote(ctx context.Context, leadID, note string) error {
	_, err := m.leads.AppendInteraction(ctx, &models.Interaction{
		LeadID: leadID,
		Kind:   models.InteractionNote,
		Body:   note,
	})
	return err
}

// DeriveStatus replays an interaction history and returns the status it
// implies. It is pure and serves as the oracle for the cached status
// column: for any lead, DeriveStatus over its interactions in order must
// equal the stored status.
func DeriveStatus(its []models.Interaction) models.LeadStatus {
	status := models.StatusPending
	for _, it := range its {
		var next models.LeadStatus
		switch it.Kind {
		case models.InteractionOutboundSend:
			next = models.StatusSent
		case models.InteractionInboundReply:
			next = models.StatusResponded
		case models.InteractionMeetingScheduled:
			next = models.StatusQualified
		case models.InteractionClosure:
			next = models.StatusClosed
		case models.InteractionDisqualified:
			next = models.StatusDisqualified
		default:
			continue
		}
		if Allowed(status, next) {
			status = next
		}
	}
	return status
}
