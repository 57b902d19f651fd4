// Package orchestrator builds the response-generation request from a
// posting's analysis and an outreach profile, invokes the prediction
// engine, validates the reply, and caches it so one (posting, profile,
// analysis version) triple never hits the engine twice.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garnizeh/talentflow/internal/analyzer"
	"github.com/garnizeh/talentflow/pkg/flowise"
	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// ErrInvalidOutput means the engine reply had no usable proposal text.
var ErrInvalidOutput = errors.New("engine output invalid")

// Engine is the prediction call the orchestrator depends on.
// *flowise.Client satisfies it.
type Engine interface {
	Predict(ctx context.Context, flowID string, input any) (flowise.PredictResult, error)
}

// Options tunes the orchestrator.
type Options struct {
	// FlowID is the chatflow used for response generation.
	FlowID string
	// TemplateVersion selects the prompt template, default v1.
	TemplateVersion string
	// Timeout bounds one engine call.
	Timeout time.Duration
}

// Orchestrator generates outreach responses.
type Orchestrator struct {
	engine Engine
	opts   Options
	cache  repository.ResponseCacheRepo
	loader *analyzer.Loader
	tmpl   *models.Template
	logger *slog.Logger
}

func New(ctx context.Context, engine Engine, opts Options, cache repository.ResponseCacheRepo, sr repository.SchemaRepo, tr repository.TemplateRepo, logger *slog.Logger) (*Orchestrator, error) {
	if opts.TemplateVersion == "" {
		opts.TemplateVersion = "v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		return nil, fmt.Errorf("response cache repo is required")
	}
	if sr == nil {
		return nil, fmt.Errorf("schema repo is required")
	}
	if tr == nil {
		return nil, fmt.Errorf("template repo is required")
	}

	loader, err := analyzer.NewLoader(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}

	tpl, err := tr.GetTemplate(ctx, "response", opts.TemplateVersion)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || tpl.TemplateTxt == "" {
		return nil, fmt.Errorf("template response:%s not found", opts.TemplateVersion)
	}

	return &Orchestrator{engine: engine, opts: opts, cache: cache, loader: loader, tmpl: tpl, logger: logger}, nil
}

// Generate returns the outreach response for a (posting, analysis,
// profile) triple. A cached response for the same triple is returned
// without touching the engine.
func (o *Orchestrator) Generate(ctx context.Context, posting *models.Posting, analysis *models.AnalysisResult, profile *models.Profile) (*models.GeneratedResponse, error) {
	cached, err := o.cache.GetResponse(ctx, posting.Fingerprint, profile.ID, analysis.Version)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if cached != nil {
		o.logger.Debug("response cache hit",
			"fingerprint", posting.Fingerprint, "profile_id", profile.ID, "analysis_version", analysis.Version)
		return cached, nil
	}

	prompt, err := analyzer.RenderTemplate(o.tmpl.TemplateTxt, map[string]any{
		"Profile":   profile,
		"Posting":   posting,
		"Analysis":  analysis,
		"Grounding": analysis.GroundingContext,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctxReq, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	out, err := o.engine.Predict(ctxReq, o.opts.FlowID, prompt)
	if err != nil {
		return nil, fmt.Errorf("engine predict: %w", err)
	}

	resp, err := o.parse(ctxReq, out.Text)
	if err != nil {
		return nil, err
	}

	if err := o.cache.PutResponse(ctx, posting.Fingerprint, profile.ID, analysis.Version, resp); err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	o.logger.Info("response generated",
		"fingerprint", posting.Fingerprint, "profile_id", profile.ID, "analysis_version", analysis.Version)
	return resp, nil
}

// Invalidate drops cached responses for a posting, used when its analysis
// is superseded by an explicit re-analysis.
func (o *Orchestrator) Invalidate(ctx context.Context, fingerprint string) error {
	return o.cache.InvalidateResponses(ctx, fingerprint)
}

// ReloadSchemas re-reads validation schemas from the repository.
func (o *Orchestrator) ReloadSchemas(ctx context.Context) error {
	return o.loader.Reload(ctx)
}

// parse accepts structured JSON preferred, plain text as fallback. An
// empty proposal either way is ErrInvalidOutput.
func (o *Orchestrator) parse(ctx context.Context, s string) (*models.GeneratedResponse, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidOutput)
	}

	j := extractJSON(text)
	if j == "" {
		// plain-text fallback: the whole reply is the proposal
		return &models.GeneratedResponse{Proposal: text}, nil
	}

	resp, err := o.parseStructured(ctx, j)
	if err == nil {
		return resp, nil
	}
	if j == text {
		// the reply was the JSON object itself, so a bad one is a
		// genuinely invalid engine output
		return nil, err
	}
	// braces embedded in surrounding prose: the reply is free text
	return &models.GeneratedResponse{Proposal: text}, nil
}

func (o *Orchestrator) parseStructured(ctx context.Context, j string) (*models.GeneratedResponse, error) {
	var resp models.GeneratedResponse
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	schemaVer := "response_v1"
	if o.tmpl.SchemaVer != nil && *o.tmpl.SchemaVer != "" {
		schemaVer = *o.tmpl.SchemaVer
	}
	if schema, ok := o.loader.GetSchema(schemaVer); ok && schema != nil {
		verrs, err := schema.ValidateBytes(ctx, []byte(j))
		if err != nil {
			return nil, fmt.Errorf("%w: schema validate: %v", ErrInvalidOutput, err)
		}
		if len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOutput, verrs[0].Message)
		}
	}

	if strings.TrimSpace(resp.Proposal) == "" {
		return nil, fmt.Errorf("%w: empty proposal text", ErrInvalidOutput)
	}
	return &resp, nil
}

func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
