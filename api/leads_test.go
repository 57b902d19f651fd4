package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/garnizeh/talentflow/internal/dispatch"
	"github.com/garnizeh/talentflow/pkg/models"
)

func TestLeadListAndGet(t *testing.T) {
	env := newEnv(t)
	lead := env.seedLead(t, "fp-list")

	rec := env.do(t, "GET", "/v1/leads", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Items []models.Lead `json:"items"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != lead.ID {
		t.Fatalf("unexpected list: %+v", list.Items)
	}

	rec = env.do(t, "GET", "/v1/leads/"+lead.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got struct {
		Lead         models.Lead          `json:"lead"`
		Interactions []models.Interaction `json:"interactions"`
	}
	decodeJSON(t, rec, &got)
	if got.Lead.ID != lead.ID || got.Lead.Status != models.StatusPending {
		t.Fatalf("unexpected lead: %+v", got.Lead)
	}

	if rec := env.do(t, "GET", "/v1/leads/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing lead status = %d, want 404", rec.Code)
	}
}

func TestLeadListFiltersByStatus(t *testing.T) {
	env := newEnv(t)
	lead := env.seedLead(t, "fp-filter")
	env.seedLead(t, "fp-filter-2")
	if err := env.mgr.MarkSent(context.Background(), lead.ID, "sent body"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	rec := env.do(t, "GET", "/v1/leads?status=sent", nil)
	var list struct {
		Items []models.Lead `json:"items"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != lead.ID {
		t.Fatalf("status filter broken: %+v", list.Items)
	}
}

func TestLeadReplyFlow(t *testing.T) {
	env := newEnv(t)
	lead := env.seedLead(t, "fp-reply")
	if err := env.mgr.MarkSent(context.Background(), lead.ID, "sent body"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	rec := env.do(t, "POST", "/v1/leads/"+lead.ID+"/reply", map[string]string{"body": "Sounds interesting"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reply status = %d: %s", rec.Code, rec.Body.String())
	}
	var got models.Lead
	decodeJSON(t, rec, &got)
	if got.Status != models.StatusResponded {
		t.Fatalf("status = %s, want responded", got.Status)
	}

	// Empty body is rejected before touching the lead.
	rec = env.do(t, "POST", "/v1/leads/"+lead.ID+"/reply", map[string]string{"body": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty reply status = %d, want 400", rec.Code)
	}
}

func TestLeadActionsQueueNotifications(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	lead := env.seedLead(t, "fp-notify-api")
	if err := env.mgr.MarkSent(ctx, lead.ID, "sent body"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	rec := env.do(t, "POST", "/v1/leads/"+lead.ID+"/reply", map[string]string{"body": "Let's talk"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reply status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := env.notifyJobs(t, dispatch.EventRecruiterResponded); n != 1 {
		t.Fatalf("recruiter_responded jobs = %d, want 1", n)
	}

	rec = env.do(t, "POST", "/v1/leads/"+lead.ID+"/qualify", map[string]string{"meeting_url": "https://calendly.test/studio/intro"})
	if rec.Code != http.StatusOK {
		t.Fatalf("qualify status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := env.notifyJobs(t, dispatch.EventMeetingScheduled); n != 1 {
		t.Fatalf("meeting_scheduled jobs = %d, want 1", n)
	}

	// a rejected transition must not queue anything
	rec = env.do(t, "POST", "/v1/leads/"+lead.ID+"/reply", map[string]string{"body": "again"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second reply status = %d, want 409", rec.Code)
	}
	if n := env.notifyJobs(t, dispatch.EventRecruiterResponded); n != 1 {
		t.Fatalf("rejected transition queued a notification: %d jobs", n)
	}
}

func TestLeadInvalidTransitionConflicts(t *testing.T) {
	env := newEnv(t)
	lead := env.seedLead(t, "fp-conflict")

	// pending → responded skips sent.
	rec := env.do(t, "POST", "/v1/leads/"+lead.ID+"/reply", map[string]string{"body": "hi"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition status = %d, want 409", rec.Code)
	}
}

func TestLeadQualifyCloseDisqualify(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	lead := env.seedLead(t, "fp-qualify")
	if err := env.mgr.MarkSent(ctx, lead.ID, "sent"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := env.mgr.RecordInboundReply(ctx, lead.ID, "reply"); err != nil {
		t.Fatalf("reply: %v", err)
	}

	rec := env.do(t, "POST", "/v1/leads/"+lead.ID+"/qualify", map[string]string{"meeting_url": "https://calendly.test/studio/intro"})
	if rec.Code != http.StatusOK {
		t.Fatalf("qualify status = %d: %s", rec.Code, rec.Body.String())
	}
	var got models.Lead
	decodeJSON(t, rec, &got)
	if got.Status != models.StatusQualified || got.MeetingURL == "" {
		t.Fatalf("unexpected lead after qualify: %+v", got)
	}

	rec = env.do(t, "POST", "/v1/leads/"+lead.ID+"/close", map[string]string{"outcome": "won"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d", rec.Code)
	}
	decodeJSON(t, rec, &got)
	if got.Status != models.StatusClosed {
		t.Fatalf("status = %s, want closed", got.Status)
	}

	// Terminal leads reject further actions.
	rec = env.do(t, "POST", "/v1/leads/"+lead.ID+"/disqualify", map[string]string{"reason": "late"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("disqualify after close status = %d, want 409", rec.Code)
	}

	other := env.seedLead(t, "fp-disqualify")
	rec = env.do(t, "POST", "/v1/leads/"+other.ID+"/disqualify", map[string]string{"reason": "spam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("disqualify status = %d", rec.Code)
	}
	decodeJSON(t, rec, &got)
	if got.Status != models.StatusDisqualified {
		t.Fatalf("status = %s, want disqualified", got.Status)
	}
}

func TestLeadNotes(t *testing.T) {
	env := newEnv(t)
	lead := env.seedLead(t, "fp-notes")

	rec := env.do(t, "POST", "/v1/leads/"+lead.ID+"/notes", map[string]string{"note": "followed up on skype"})
	if rec.Code != http.StatusOK {
		t.Fatalf("note status = %d", rec.Code)
	}
	var got models.Lead
	decodeJSON(t, rec, &got)
	if got.Status != models.StatusPending {
		t.Fatalf("note must not change status, got %s", got.Status)
	}

	rec = env.do(t, "GET", "/v1/leads/"+lead.ID, nil)
	var full struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	decodeJSON(t, rec, &full)
	if len(full.Interactions) != 1 || full.Interactions[0].Kind != models.InteractionNote {
		t.Fatalf("unexpected interactions: %+v", full.Interactions)
	}
}
