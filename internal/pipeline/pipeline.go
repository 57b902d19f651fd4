package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/talentflow/internal/dispatch"
	"github.com/garnizeh/talentflow/internal/ingest"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

const (
	// DefaultWorkers bounds how many postings are processed concurrently
	// within a sweep.
	DefaultWorkers = 4
	// DefaultPostingBudget caps the wall-clock time one posting may spend
	// in the pipeline, engine calls included.
	DefaultPostingBudget = 3 * time.Minute
	// DefaultSourceTimeout caps one source fetch. A slow platform must not
	// stall the whole sweep.
	DefaultSourceTimeout = 2 * time.Minute
)

// Analyzer extracts structured analysis from a posting.
type Analyzer interface {
	Analyze(ctx context.Context, posting *models.Posting) (*models.AnalysisResult, error)
}

// Generator produces the outreach response for an analyzed posting.
type Generator interface {
	Generate(ctx context.Context, posting *models.Posting, analysis *models.AnalysisResult, profile *models.Profile) (*models.GeneratedResponse, error)
}

// Notifier queues the outbound send and the operator notifications for a
// lead. *dispatch.Dispatcher satisfies it.
type Notifier interface {
	EnqueueSend(ctx context.Context, leadID string) error
	EnqueueNotify(ctx context.Context, event, leadID string) error
}

// Options tunes a Pipeline. Zero values pick the defaults above.
type Options struct {
	Workers       int
	PostingBudget time.Duration
	SourceTimeout time.Duration
}

// SweepStats summarizes one sweep across all sources.
type SweepStats struct {
	Fetched   int `json:"fetched"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Pipeline drives a posting from raw fetch to a pending lead with queued
// dispatch. Every step is guarded by the fingerprint dedup index so the
// same posting is analyzed at most once per successful run.
type Pipeline struct {
	repo     *repository.Repository
	analyzer Analyzer
	gen      Generator
	mgr      *lifecycle.Manager
	notifier Notifier
	linker   *dispatch.MeetingLinker
	profile  *models.Profile
	sources  []ingest.Source
	opts     Options
	logger   *slog.Logger
}

func New(repo *repository.Repository, an Analyzer, gen Generator, mgr *lifecycle.Manager, notifier Notifier, linker *dispatch.MeetingLinker, profile *models.Profile, sources []ingest.Source, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.PostingBudget <= 0 {
		opts.PostingBudget = DefaultPostingBudget
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	return &Pipeline{
		repo:     repo,
		analyzer: an,
		gen:      gen,
		mgr:      mgr,
		notifier: notifier,
		linker:   linker,
		profile:  profile,
		sources:  sources,
		opts:     opts,
		logger:   logger,
	}
}

// Sweep fetches every configured source, then runs the per-posting pipeline
// over the fetched postings with bounded parallelism. Source failures are
// logged and skipped; they never abort the sweep. A dedup store failure
// does abort it: without the index no posting can be claimed safely, so
// grinding through the rest would only repeat the same error.
func (p *Pipeline) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	raws := p.fetchAll(ctx)
	stats.Fetched = len(raws)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		abort error
		sem   = make(chan struct{}, p.opts.Workers)
	)
	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		mu.Lock()
		stop := abort != nil
		mu.Unlock()
		if stop {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(raw ingest.RawPosting) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := p.process(ctx, raw)
			mu.Lock()
			if err != nil && abort == nil && ctx.Err() == nil {
				abort = err
			}
			switch outcome {
			case outcomeProcessed:
				stats.Processed++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeFailed:
				stats.Failed++
			}
			mu.Unlock()
		}(raw)
	}
	wg.Wait()

	if abort != nil {
		p.logger.Error("sweep aborted, dedup store unavailable", "error", abort)
		return stats, fmt.Errorf("dedup store unavailable: %w", abort)
	}
	p.recordSweep(ctx, stats)
	return stats, ctx.Err()
}

func (p *Pipeline) fetchAll(ctx context.Context) []ingest.RawPosting {
	var (
		mu   sync.Mutex
		raws []ingest.RawPosting
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range p.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, p.opts.SourceTimeout)
			defer cancel()

			batch, err := src.Fetch(fctx)
			if err != nil {
				p.logger.Error("source fetch failed", "source", src.Name(), "error", err)
				return nil
			}
			mu.Lock()
			raws = append(raws, batch...)
			mu.Unlock()
			p.logger.Info("source fetched", "source", src.Name(), "postings", len(batch))
			return nil
		})
	}
	g.Wait()
	return raws
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

// process runs one raw posting through the whole pipeline: normalize,
// claim the fingerprint, analyze, generate, create the lead, and queue
// dispatch. The fingerprint is released on failure so a later sweep can
// retry from scratch; it is marked done only after the lead exists and
// dispatch is queued. A non-nil error means the dedup store itself is
// unavailable and the sweep must stop.
func (p *Pipeline) process(ctx context.Context, raw ingest.RawPosting) (outcome, error) {
	posting, err := ingest.Normalize(raw)
	if err != nil {
		p.logger.Warn("posting rejected", "source", raw.Platform, "url", raw.URL, "error", err)
		return outcomeSkipped, nil
	}

	if err := p.repo.Dedup.MarkProcessing(ctx, posting.Fingerprint); err != nil {
		if errors.Is(err, repository.ErrAlreadyDone) || errors.Is(err, repository.ErrAlreadyInFlight) {
			return outcomeSkipped, nil
		}
		p.logger.Error("dedup claim failed", "fingerprint", posting.Fingerprint, "error", err)
		return outcomeFailed, err
	}

	pctx, cancel := context.WithTimeout(ctx, p.opts.PostingBudget)
	defer cancel()

	if err := p.run(pctx, posting); err != nil {
		p.fail(ctx, posting, err)
		return outcomeFailed, nil
	}
	if err := p.repo.Dedup.MarkDone(ctx, posting.Fingerprint); err != nil {
		p.logger.Error("dedup finalize failed", "fingerprint", posting.Fingerprint, "error", err)
	}
	p.audit(ctx, "pipeline_run", "ok", posting.Fingerprint, "", nil)
	return outcomeProcessed, nil
}

// run executes the pipeline steps for a claimed posting.
func (p *Pipeline) run(ctx context.Context, posting *models.Posting) error {
	if _, err := p.repo.Postings.CreatePosting(ctx, posting); err != nil {
		return fmt.Errorf("store posting: %w", err)
	}

	analysis, err := p.analyzer.Analyze(ctx, posting)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if _, err := p.repo.Analyses.CreateAnalysis(ctx, analysis); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	resp, err := p.gen.Generate(ctx, posting, analysis, p.profile)
	if err != nil {
		return fmt.Errorf("generate response: %w", err)
	}

	lead, err := p.mgr.CreateLead(ctx, posting.Fingerprint, resp.Proposal)
	if err != nil {
		if !errors.Is(err, repository.ErrDuplicateLead) {
			return fmt.Errorf("create lead: %w", err)
		}
		// A lead survived a previous partially failed run. Reuse it and
		// supersede its response with the fresh one.
		lead, err = p.mgr.LeadByFingerprint(ctx, posting.Fingerprint)
		if err != nil {
			return fmt.Errorf("resolve existing lead: %w", err)
		}
		if lead.Status == models.StatusPending {
			if err := p.repo.Leads.UpdateLeadResponse(ctx, lead.ID, resp.Proposal); err != nil {
				return fmt.Errorf("supersede lead response: %w", err)
			}
		}
	}

	if p.linker != nil && lead.MeetingURL == "" {
		if link := p.linker.Link(posting); link != "" {
			if err := p.repo.Leads.SetMeetingURL(ctx, lead.ID, link); err != nil {
				return fmt.Errorf("set meeting link: %w", err)
			}
		}
	}

	if err := p.notifier.EnqueueSend(ctx, lead.ID); err != nil {
		return fmt.Errorf("queue send: %w", err)
	}
	if err := p.notifier.EnqueueNotify(ctx, dispatch.EventLeadCreated, lead.ID); err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}

	p.logger.Info("lead created",
		"lead_id", lead.ID,
		"fingerprint", posting.Fingerprint,
		"seniority", analysis.Seniority,
		"cached_response", resp.Cached)
	return nil
}

// fail classifies the error, releases the fingerprint, and records the
// failure. Release uses a fresh context so cancellation of the run does not
// leave the fingerprint stuck inflight.
func (p *Pipeline) fail(ctx context.Context, posting *models.Posting, err error) {
	kind := ClassifyError(err)

	rctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if rerr := p.repo.Dedup.Release(rctx, posting.Fingerprint); rerr != nil {
		p.logger.Error("fingerprint release failed", "fingerprint", posting.Fingerprint, "error", rerr)
	}

	switch kind {
	case FailureIntegrity:
		p.logger.Error("pipeline integrity failure", "fingerprint", posting.Fingerprint, "error", err)
	case FailurePermanent:
		p.logger.Error("pipeline permanent failure", "fingerprint", posting.Fingerprint, "error", err)
	case FailureParse:
		p.logger.Warn("posting unparsable", "fingerprint", posting.Fingerprint, "error", err)
	default:
		p.logger.Warn("pipeline transient failure", "fingerprint", posting.Fingerprint, "error", err)
	}

	p.audit(rctx, "pipeline_run", string(kind), posting.Fingerprint, "", err)
	if _, serr := p.repo.Settings.IncrSetting(rctx, "stats_failures_"+string(kind), 1); serr != nil {
		p.logger.Warn("failure counter update failed", "error", serr)
	}
}

// Reanalyze re-runs analysis and generation for a stored posting,
// invalidating the cached response first so the new analysis version
// produces a fresh one. Used by the management API.
func (p *Pipeline) Reanalyze(ctx context.Context, fingerprint string) (*models.AnalysisResult, error) {
	posting, err := p.repo.Postings.GetPosting(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if posting == nil {
		return nil, repository.ErrNotFound
	}

	analysis, err := p.analyzer.Analyze(ctx, posting)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if _, err := p.repo.Analyses.CreateAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	if err := p.repo.Cache.InvalidateResponses(ctx, fingerprint); err != nil {
		return nil, fmt.Errorf("invalidate cached responses: %w", err)
	}

	resp, err := p.gen.Generate(ctx, posting, analysis, p.profile)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}
	lead, err := p.mgr.LeadByFingerprint(ctx, fingerprint)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if lead != nil && lead.Status == models.StatusPending {
		if err := p.repo.Leads.UpdateLeadResponse(ctx, lead.ID, resp.Proposal); err != nil {
			return nil, fmt.Errorf("supersede lead response: %w", err)
		}
	}

	p.audit(ctx, "reanalyze", "ok", fingerprint, "", nil)
	return analysis, nil
}

func (p *Pipeline) recordSweep(ctx context.Context, stats SweepStats) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	set := func(key, value string) {
		if err := p.repo.Settings.PutSetting(ctx, key, value); err != nil {
			p.logger.Warn("sweep stat update failed", "key", key, "error", err)
		}
	}
	set("last_scan", time.Now().UTC().Format(time.RFC3339))
	set("last_scan_fetched", fmt.Sprintf("%d", stats.Fetched))
	if _, err := p.repo.Settings.IncrSetting(ctx, "stats_postings_processed", int64(stats.Processed)); err != nil {
		p.logger.Warn("sweep stat update failed", "key", "stats_postings_processed", "error", err)
	}
	p.logger.Info("sweep finished",
		"fetched", stats.Fetched,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
}

func (p *Pipeline) audit(ctx context.Context, action, status, fingerprint, leadID string, err error) {
	entry := &models.ActionLog{
		Action:      action,
		Status:      status,
		Fingerprint: fingerprint,
		LeadID:      leadID,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if _, aerr := p.repo.Actions.AppendAction(ctx, entry); aerr != nil {
		p.logger.Warn("action log append failed", "action", action, "error", aerr)
	}
}
