package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	dbembed "github.com/garnizeh/talentflow/db"
	dbpkg "github.com/garnizeh/talentflow/internal/db"
	"github.com/garnizeh/talentflow/internal/dispatch"
	"github.com/garnizeh/talentflow/internal/jobs"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	sqlite "github.com/garnizeh/talentflow/internal/repository/sqlite"
	"github.com/garnizeh/talentflow/pkg/models"
)

type fakeSender struct {
	err   error
	calls int32
}

func (f *fakeSender) Send(_ context.Context, _ *models.Posting, _ *models.Lead, _ string) error {
	atomic.AddInt32(&f.calls, 1)
	return f.err
}

type fakeChannel struct {
	name   string
	err    error
	events []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Notify(_ context.Context, event string, _ *models.Lead, _ *models.Posting) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type harness struct {
	db    *dbpkg.DB
	repo  *sqlite.SQLiteRepo
	queue *jobs.Repository
	mgr   *lifecycle.Manager
}

// forceDue makes scheduled retries immediately claimable.
func (h *harness) forceDue(t *testing.T) {
	t.Helper()
	if _, err := h.db.Exec(context.Background(), `UPDATE jobs SET next_try_at = 0 WHERE status = 'retry'`); err != nil {
		t.Fatalf("force due: %v", err)
	}
}

func setup(t *testing.T, sender dispatch.ResponseSender, channels []dispatch.Channel) (*dispatch.Dispatcher, *harness) {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	d, err := dbpkg.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbembed.Migrations, dbembed.SeedFiles); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := sqlite.New(d, nil)
	queue := jobs.NewRepository(d)
	mgr := lifecycle.New(repo, nil)
	disp := dispatch.New(sender, repo, repo, mgr, queue, channels, nil)
	return disp, &harness{db: d, repo: repo, queue: queue, mgr: mgr}
}

func seedLead(t *testing.T, h *harness, fp string) *models.Lead {
	t.Helper()
	ctx := context.Background()
	_, err := h.repo.CreatePosting(ctx, &models.Posting{
		Fingerprint:  fp,
		Platform:     "djinni",
		URL:          "https://djinni.co/jobs/" + fp,
		Title:        "Go Developer",
		Organization: "Acme",
		ContactEmail: "recruiter@acme.test",
	})
	if err != nil {
		t.Fatalf("create posting: %v", err)
	}
	lead, err := h.mgr.CreateLead(ctx, fp, "proposal body")
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return lead
}

// runQueued drains the queue synchronously through the dispatcher handlers.
func runQueued(t *testing.T, h *harness, disp *dispatch.Dispatcher) {
	t.Helper()
	ctx := context.Background()
	handlers := disp.Handlers()
	for {
		j, err := h.queue.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if j == nil {
			return
		}
		handler := handlers[j.Type]
		if handler == nil {
			t.Fatalf("no handler for %s", j.Type)
		}
		if err := handler(ctx, j); err != nil {
			j.Attempts++
			j.LastError = err.Error()
			j.Status = "retry"
			next := time.Now().Add(jobs.BackoffDuration(j.Attempts))
			j.NextTryAt = &next
			if err := h.queue.UpdateJob(ctx, j); err != nil {
				t.Fatalf("update: %v", err)
			}
			continue
		}
		j.Status = "done"
		if err := h.queue.UpdateJob(ctx, j); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
}

func TestSendConfirmedThenTransition(t *testing.T) {
	sender := &fakeSender{}
	disp, h := setup(t, sender, nil)
	lead := seedLead(t, h, "fp-send")
	ctx := context.Background()

	if err := disp.EnqueueSend(ctx, lead.ID); err != nil {
		t.Fatalf("enqueue send: %v", err)
	}
	runQueued(t, h, disp)

	got, err := h.repo.GetLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if got.Status != models.StatusSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if atomic.LoadInt32(&sender.calls) != 1 {
		t.Fatalf("expected one send, got %d", sender.calls)
	}
}

func TestSendFailureNoTransition(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	disp, h := setup(t, sender, nil)
	lead := seedLead(t, h, "fp-fail")
	ctx := context.Background()

	if err := disp.EnqueueSend(ctx, lead.ID); err != nil {
		t.Fatalf("enqueue send: %v", err)
	}
	runQueued(t, h, disp)

	got, err := h.repo.GetLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("transition applied on unconfirmed delivery: %s", got.Status)
	}

	// retry succeeds and applies the transition exactly once
	sender.err = nil
	h.forceDue(t)
	runQueued(t, h, disp)
	got, err = h.repo.GetLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if got.Status != models.StatusSent {
		t.Fatalf("expected sent after retry, got %s", got.Status)
	}
	its, err := h.repo.ListInteractions(ctx, lead.ID)
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	var sends int
	for _, it := range its {
		if it.Kind == models.InteractionOutboundSend {
			sends++
		}
	}
	if sends != 1 {
		t.Fatalf("expected exactly one outbound interaction, got %d", sends)
	}
}

func TestSendRetryAfterConfirmationDoesNotResend(t *testing.T) {
	sender := &fakeSender{}
	disp, h := setup(t, sender, nil)
	lead := seedLead(t, h, "fp-confirm")
	ctx := context.Background()

	// an earlier attempt delivered the proposal and recorded the
	// confirmation, but crashed before the status transition landed
	if _, err := h.repo.AppendInteraction(ctx, &models.Interaction{
		LeadID: lead.ID,
		Kind:   models.InteractionDispatchConfirmed,
	}); err != nil {
		t.Fatalf("append confirmation: %v", err)
	}

	if err := disp.EnqueueSend(ctx, lead.ID); err != nil {
		t.Fatalf("enqueue send: %v", err)
	}
	runQueued(t, h, disp)

	if atomic.LoadInt32(&sender.calls) != 0 {
		t.Fatalf("confirmed delivery was repeated: %d calls", sender.calls)
	}
	got, err := h.repo.GetLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if got.Status != models.StatusSent {
		t.Fatalf("expected sent after resumed attempt, got %s", got.Status)
	}
}

func TestSendIdempotentWhenAlreadySent(t *testing.T) {
	sender := &fakeSender{}
	disp, h := setup(t, sender, nil)
	lead := seedLead(t, h, "fp-idem")
	ctx := context.Background()

	// two send jobs for the same lead
	if err := disp.EnqueueSend(ctx, lead.ID); err != nil {
		t.Fatalf("enqueue send: %v", err)
	}
	if err := disp.EnqueueSend(ctx, lead.ID); err != nil {
		t.Fatalf("enqueue send: %v", err)
	}
	runQueued(t, h, disp)

	if atomic.LoadInt32(&sender.calls) != 1 {
		t.Fatalf("duplicate job re-sent the proposal: %d calls", sender.calls)
	}
}

func TestNotifyFanOutIndependentFailures(t *testing.T) {
	good := &fakeChannel{name: "log"}
	bad := &fakeChannel{name: "slack", err: errors.New("webhook down")}
	disp, h := setup(t, &fakeSender{}, []dispatch.Channel{bad, good})
	lead := seedLead(t, h, "fp-notify")
	ctx := context.Background()

	if err := disp.EnqueueNotify(ctx, dispatch.EventLeadCreated, lead.ID); err != nil {
		t.Fatalf("enqueue notify: %v", err)
	}

	// drain the queue; the failing channel must not block the healthy one
	runQueued(t, h, disp)

	if len(good.events) != 1 || good.events[0] != dispatch.EventLeadCreated {
		t.Fatalf("healthy channel blocked by failing one: %#v", good.events)
	}

	counts, err := h.queue.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["retry"] != 1 {
		t.Fatalf("failing channel should be scheduled for retry: %v", counts)
	}
}

func TestSlackChannelPostsWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := &dispatch.SlackChannel{WebhookURL: srv.URL, Client: srv.Client()}
	lead := &models.Lead{ID: "lead-x", Status: models.StatusPending}
	posting := &models.Posting{Title: "Go Developer", Organization: "Acme", URL: "https://djinni.co/jobs/1"}

	if err := ch.Notify(context.Background(), dispatch.EventLeadCreated, lead, posting); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["text"] == "" || !contains(got["text"], "Go Developer") {
		t.Fatalf("unexpected webhook text: %q", got["text"])
	}
}

func TestMeetingLinker(t *testing.T) {
	linker := &dispatch.MeetingLinker{BaseURL: "https://calendly.com/studio/30min"}
	posting := &models.Posting{ContactName: "Jane Doe", ContactEmail: "jane@acme.test"}

	link := linker.Link(posting)
	if !contains(link, "calendly.com") || !contains(link, "email=jane%40acme.test") {
		t.Fatalf("unexpected link: %q", link)
	}

	empty := &dispatch.MeetingLinker{}
	if got := empty.Link(posting); got != "" {
		t.Fatalf("unconfigured linker must degrade to empty link, got %q", got)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
