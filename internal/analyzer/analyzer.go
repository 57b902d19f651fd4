// Package analyzer extracts structured signals from raw postings. The
// heavy lifting is delegated to the prediction engine; a keyword heuristic
// over the posting text serves as fallback when the engine output cannot
// be parsed.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garnizeh/talentflow/internal/retrieval"
	"github.com/garnizeh/talentflow/pkg/flowise"
	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// ErrUnparsable means neither strict parsing nor the text heuristic could
// extract anything from the posting. The posting stays ungated for a later
// retry.
var ErrUnparsable = errors.New("analysis output unparsable")

// Engine is the prediction call the analyzer depends on. *flowise.Client
// satisfies it.
type Engine interface {
	Predict(ctx context.Context, flowID string, input any) (flowise.PredictResult, error)
}

// Options tunes the analyzer.
type Options struct {
	// FlowID is the chatflow used for posting analysis.
	FlowID string
	// TemplateVersion selects the prompt template, default v1.
	TemplateVersion string
	// Timeout bounds one engine call.
	Timeout time.Duration
}

// Analyzer turns a posting into an AnalysisResult.
type Analyzer struct {
	engine Engine
	opts   Options
	loader *Loader
	tmpl   *models.Template
	index  *retrieval.Index
	logger *slog.Logger
}

// New creates an analyzer. The prompt template and validation schemas are
// loaded from the repository up front; a missing template is a startup
// error, not a per-posting one. The retrieval index may be nil.
func New(ctx context.Context, engine Engine, opts Options, sr repository.SchemaRepo, tr repository.TemplateRepo, index *retrieval.Index, logger *slog.Logger) (*Analyzer, error) {
	if opts.TemplateVersion == "" {
		opts.TemplateVersion = "v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	if sr == nil {
		return nil, fmt.Errorf("schema repo is required")
	}
	if tr == nil {
		return nil, fmt.Errorf("template repo is required")
	}

	loader, err := NewLoader(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}

	tpl, err := tr.GetTemplate(ctx, "analysis", opts.TemplateVersion)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || tpl.TemplateTxt == "" {
		return nil, fmt.Errorf("template analysis:%s not found", opts.TemplateVersion)
	}

	return &Analyzer{engine: engine, opts: opts, loader: loader, tmpl: tpl, index: index, logger: logger}, nil
}

// ReloadSchemas re-reads validation schemas from the repository.
func (a *Analyzer) ReloadSchemas(ctx context.Context) error {
	return a.loader.Reload(ctx)
}

// engineAnalysis is the structured shape the engine is asked to return.
type engineAnalysis struct {
	Responsibilities      []string `json:"responsibilities"`
	TechnicalRequirements []string `json:"technical_requirements"`
	TargetMetrics         []string `json:"target_metrics"`
	Seniority             string   `json:"seniority"`
}

// Analyze renders the analysis prompt, calls the engine, and parses the
// output: strict JSON first, keyword heuristic over the posting text on
// parse failure. The result is not persisted here.
func (a *Analyzer) Analyze(ctx context.Context, posting *models.Posting) (*models.AnalysisResult, error) {
	prompt, err := RenderTemplate(a.tmpl.TemplateTxt, map[string]any{"Posting": posting})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctxReq, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	out, err := a.engine.Predict(ctxReq, a.opts.FlowID, prompt)
	if err != nil {
		return nil, fmt.Errorf("engine predict: %w", err)
	}

	parsed, perr := a.parseStrict(ctxReq, out.Text)
	if perr != nil {
		a.logger.Warn("strict analysis parse failed, using heuristic",
			"fingerprint", posting.Fingerprint, "error", perr)
		parsed = heuristicAnalysis(posting)
		if len(parsed.Responsibilities)+len(parsed.TechnicalRequirements)+len(parsed.TargetMetrics) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrUnparsable, perr)
		}
	}

	result := &models.AnalysisResult{
		Fingerprint:      posting.Fingerprint,
		Responsibilities: parsed.Responsibilities,
		TechRequirements: parsed.TechnicalRequirements,
		TargetMetrics:    parsed.TargetMetrics,
		Seniority:        models.NormalizeSeniority(parsed.Seniority),
	}

	result.GroundingContext = a.ground(ctx, result.TechRequirements)
	return result, nil
}

// parseStrict extracts the JSON object from the engine output, unmarshals
// it, and validates it against the analysis schema.
func (a *Analyzer) parseStrict(ctx context.Context, s string) (*engineAnalysis, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty response")
	}

	j := extractJSON(s)
	if j == "" {
		return nil, errors.New("no JSON object found in response")
	}

	var r engineAnalysis
	if err := json.Unmarshal([]byte(j), &r); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	schemaVer := "analysis_v1"
	if a.tmpl.SchemaVer != nil && *a.tmpl.SchemaVer != "" {
		schemaVer = *a.tmpl.SchemaVer
	}
	schema, ok := a.loader.GetSchema(schemaVer)
	if !ok || schema == nil {
		return nil, fmt.Errorf("no schema found for version %s", schemaVer)
	}

	verrs, err := schema.ValidateBytes(ctx, []byte(j))
	if err != nil {
		return nil, fmt.Errorf("schema validate error: %w", err)
	}
	if len(verrs) > 0 {
		var sb strings.Builder
		for _, v := range verrs {
			sb.WriteString(v.Message)
			sb.WriteString("; ")
		}
		return nil, fmt.Errorf("response does not match schema: %s", sb.String())
	}

	return &r, nil
}

// ground queries the portfolio index for the top matches on the extracted
// requirements. Retrieval is best effort: a failure degrades to no
// grounding context.
func (a *Analyzer) ground(ctx context.Context, techReqs []string) []string {
	if a.index == nil || len(techReqs) == 0 {
		return nil
	}

	matches, err := a.index.TopK(ctx, strings.Join(techReqs, ", "))
	if err != nil {
		a.logger.Warn("portfolio retrieval failed, continuing without grounding", "error", err)
		return nil
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Item.Title+": "+m.Item.Text)
	}
	return out
}

// extractJSON returns the substring from the first '{' to the last '}' in the input.
// This is a pragmatic approach to handle model outputs that wrap JSON in text or markdown.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
