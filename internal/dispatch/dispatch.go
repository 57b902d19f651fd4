// Package dispatch sends generated responses outward and fires operator
// notifications on lifecycle transitions. All outbound attempts go through
// the persistent job queue so failures retry with backoff and exhausted
// attempts land in the dead-letter table.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/talentflow/internal/jobs"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// ResponseSender delivers a proposal to the posting's hiring contact.
// Implementations cover the actual transport (email, platform chat).
type ResponseSender interface {
	Send(ctx context.Context, posting *models.Posting, lead *models.Lead, proposal string) error
}

// Dispatcher owns outbound side effects. It enqueues work and provides the
// job handlers that execute it.
type Dispatcher struct {
	sender   ResponseSender
	leads    repository.LeadRepo
	postings repository.PostingRepo
	mgr      *lifecycle.Manager
	queue    *jobs.Repository
	channels []Channel
	logger   *slog.Logger
}

func New(sender ResponseSender, leads repository.LeadRepo, postings repository.PostingRepo, mgr *lifecycle.Manager, queue *jobs.Repository, channels []Channel, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:   sender,
		leads:    leads,
		postings: postings,
		mgr:      mgr,
		queue:    queue,
		channels: channels,
		logger:   logger,
	}
}

// Handlers returns the job handlers to register with the worker pool.
func (d *Dispatcher) Handlers() map[string]jobs.Handler {
	return map[string]jobs.Handler{
		jobs.TypeDispatchSend: d.handleSend,
		jobs.TypeNotify:       d.handleNotify,
	}
}

type sendPayload struct {
	LeadID string `json:"lead_id"`
}

type notifyPayload struct {
	Event   string `json:"event"`
	LeadID  string `json:"lead_id"`
	Channel string `json:"channel"`
}

// EnqueueSend queues delivery of a lead's proposal.
func (d *Dispatcher) EnqueueSend(ctx context.Context, leadID string) error {
	b, err := json.Marshal(sendPayload{LeadID: leadID})
	if err != nil {
		return err
	}
	_, err = d.queue.Enqueue(ctx, &jobs.Job{Type: jobs.TypeDispatchSend, Payload: b, Priority: 1})
	return err
}

// EnqueueNotify queues one notification job per configured channel, so a
// failing channel retries on its own without blocking the others.
func (d *Dispatcher) EnqueueNotify(ctx context.Context, event, leadID string) error {
	for _, ch := range d.channels {
		b, err := json.Marshal(notifyPayload{Event: event, LeadID: leadID, Channel: ch.Name()})
		if err != nil {
			return err
		}
		if _, err := d.queue.Enqueue(ctx, &jobs.Job{Type: jobs.TypeNotify, Payload: b, Priority: 5}); err != nil {
			return err
		}
	}
	return nil
}

// handleSend delivers the proposal and applies pending → sent only after
// the transport confirmed. A lead that already left pending is a finished
// job, not an error: the send happened on an earlier attempt. Transport
// success is recorded as a dispatch_confirmed interaction before the
// transition is attempted, so a retry after a failed transition finds the
// confirmation and never hands the proposal to the transport twice.
func (d *Dispatcher) handleSend(ctx context.Context, j *jobs.Job) error {
	var p sendPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("decode send payload: %w", err)
	}

	lead, err := d.leads.GetLead(ctx, p.LeadID)
	if err != nil {
		return err
	}
	if lead == nil {
		d.logger.Warn("dispatch job for missing lead", "lead_id", p.LeadID)
		return nil
	}
	if lead.Status != models.StatusPending {
		return nil
	}

	confirmed, err := d.sendConfirmed(ctx, lead.ID)
	if err != nil {
		return err
	}
	if !confirmed {
		posting, err := d.postings.GetPosting(ctx, lead.Fingerprint)
		if err != nil {
			return err
		}
		if posting == nil {
			return fmt.Errorf("posting %s not found for lead %s", lead.Fingerprint, lead.ID)
		}

		if err := d.sender.Send(ctx, posting, lead, lead.Response); err != nil {
			return fmt.Errorf("send proposal: %w", err)
		}
		if _, err := d.leads.AppendInteraction(ctx, &models.Interaction{
			LeadID: lead.ID,
			Kind:   models.InteractionDispatchConfirmed,
		}); err != nil {
			return fmt.Errorf("record send confirmation: %w", err)
		}
	}

	if err := d.mgr.MarkSent(ctx, lead.ID, lead.Response); err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) || errors.Is(err, repository.ErrStaleStatus) {
			// a concurrent attempt already recorded the send
			return nil
		}
		return err
	}

	d.logger.Info("proposal dispatched", "lead_id", lead.ID, "fingerprint", lead.Fingerprint)
	return nil
}

// sendConfirmed reports whether an earlier attempt already handed this
// lead's proposal to the transport.
func (d *Dispatcher) sendConfirmed(ctx context.Context, leadID string) (bool, error) {
	its, err := d.leads.ListInteractions(ctx, leadID)
	if err != nil {
		return false, err
	}
	for _, it := range its {
		if it.Kind == models.InteractionDispatchConfirmed {
			return true, nil
		}
	}
	return false, nil
}

// handleNotify delivers one event to one channel.
func (d *Dispatcher) handleNotify(ctx context.Context, j *jobs.Job) error {
	var p notifyPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("decode notify payload: %w", err)
	}

	var ch Channel
	for _, c := range d.channels {
		if c.Name() == p.Channel {
			ch = c
			break
		}
	}
	if ch == nil {
		d.logger.Warn("notification for unconfigured channel", "channel", p.Channel)
		return nil
	}

	lead, err := d.leads.GetLead(ctx, p.LeadID)
	if err != nil {
		return err
	}
	if lead == nil {
		d.logger.Warn("notification for missing lead", "lead_id", p.LeadID)
		return nil
	}

	posting, err := d.postings.GetPosting(ctx, lead.Fingerprint)
	if err != nil {
		return err
	}

	if err := ch.Notify(ctx, p.Event, lead, posting); err != nil {
		return fmt.Errorf("notify %s via %s: %w", p.Event, p.Channel, err)
	}
	return nil
}
