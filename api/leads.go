package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/garnizeh/talentflow/internal/dispatch"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// Notifier queues operator notifications for lifecycle events.
// *dispatch.Dispatcher satisfies it.
type Notifier interface {
	EnqueueNotify(ctx context.Context, event, leadID string) error
}

type LeadsHandler struct {
	leads    repository.LeadRepo
	mgr      *lifecycle.Manager
	notifier Notifier
}

func NewLeadsHandler(lr repository.LeadRepo, mgr *lifecycle.Manager, notifier Notifier) *LeadsHandler {
	return &LeadsHandler{leads: lr, mgr: mgr, notifier: notifier}
}

func (h *LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.LeadStatus(r.URL.Query().Get("status"))
	limit, offset := pagination(r)

	rows, err := h.leads.ListLeads(r.Context(), status, limit, offset)
	if err != nil {
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.Lead{}
	}

	writeJSON(w, map[string]any{
		"limit":  limit,
		"offset": offset,
		"items":  rows,
	}, http.StatusOK)
}

func (h *LeadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	lead, err := h.leads.GetLead(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to load lead", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	its, err := h.leads.ListInteractions(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to load interactions", http.StatusInternalServerError)
		return
	}
	if its == nil {
		its = []models.Interaction{}
	}

	writeJSON(w, map[string]any{
		"lead":         lead,
		"interactions": its,
	}, http.StatusOK)
}

type leadActionRequest struct {
	Body       string `json:"body,omitempty"`
	MeetingURL string `json:"meeting_url,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Note       string `json:"note,omitempty"`
}

// Reply records an inbound recruiter reply, moves the lead to responded,
// and queues a recruiter_responded notification.
func (h *LeadsHandler) Reply(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, dispatch.EventRecruiterResponded, func(id string, req leadActionRequest) error {
		if strings.TrimSpace(req.Body) == "" {
			return errBadRequest("body is required")
		}
		return h.mgr.RecordInboundReply(r.Context(), id, req.Body)
	})
}

// Qualify records a scheduled meeting, moves the lead to qualified, and
// queues a meeting_scheduled notification.
func (h *LeadsHandler) Qualify(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, dispatch.EventMeetingScheduled, func(id string, req leadActionRequest) error {
		return h.mgr.ScheduleMeeting(r.Context(), id, req.MeetingURL)
	})
}

func (h *LeadsHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "", func(id string, req leadActionRequest) error {
		return h.mgr.Close(r.Context(), id, req.Outcome)
	})
}

func (h *LeadsHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "", func(id string, req leadActionRequest) error {
		return h.mgr.Disqualify(r.Context(), id, req.Reason)
	})
}

func (h *LeadsHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "", func(id string, req leadActionRequest) error {
		if strings.TrimSpace(req.Note) == "" {
			return errBadRequest("note is required")
		}
		return h.mgr.AddNote(r.Context(), id, req.Note)
	})
}

type badRequestError string

func errBadRequest(msg string) error { return badRequestError(msg) }

func (e badRequestError) Error() string { return string(e) }

// act decodes the request, runs the action, and maps domain errors onto
// HTTP statuses: unknown lead is 404, a rejected transition is 409. When the
// action succeeds and names an event, the operator notification is queued.
func (h *LeadsHandler) act(w http.ResponseWriter, r *http.Request, event string, fn func(id string, req leadActionRequest) error) {
	id := mux.Vars(r)["id"]

	var req leadActionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}

	err := fn(id, req)
	if err != nil {
		var bad badRequestError
		switch {
		case errors.As(err, &bad):
			http.Error(w, bad.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, repository.ErrStaleStatus):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "action failed", http.StatusInternalServerError)
		}
		return
	}

	if event != "" && h.notifier != nil {
		if err := h.notifier.EnqueueNotify(r.Context(), event, id); err != nil {
			// the transition is already committed; losing the
			// notification is not worth failing the request over
			logger.Error("failed to queue notification", "event", event, "lead_id", id, "error", err)
		}
	}

	lead, err := h.leads.GetLead(r.Context(), id)
	if err != nil || lead == nil {
		http.Error(w, "failed to load lead", http.StatusInternalServerError)
		return
	}
	writeJSON(w, lead, http.StatusOK)
}
