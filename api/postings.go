package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// Reanalyzer re-runs analysis for a stored posting. Implemented by the
// pipeline.
type Reanalyzer interface {
	Reanalyze(ctx context.Context, fingerprint string) (*models.AnalysisResult, error)
}

type PostingsHandler struct {
	postings repository.PostingRepo
	analyses repository.AnalysisRepo
	rean     Reanalyzer
}

func NewPostingsHandler(pr repository.PostingRepo, ar repository.AnalysisRepo, rean Reanalyzer) *PostingsHandler {
	return &PostingsHandler{postings: pr, analyses: ar, rean: rean}
}

func (h *PostingsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	rows, err := h.postings.ListPostings(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "failed to list postings", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.Posting{}
	}

	writeJSON(w, map[string]any{
		"limit":  limit,
		"offset": offset,
		"items":  rows,
	}, http.StatusOK)
}

func (h *PostingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	fp := mux.Vars(r)["fingerprint"]

	posting, err := h.postings.GetPosting(r.Context(), fp)
	if err != nil {
		http.Error(w, "failed to load posting", http.StatusInternalServerError)
		return
	}
	if posting == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	analysis, err := h.analyses.LatestAnalysis(r.Context(), fp)
	if err != nil {
		http.Error(w, "failed to load analysis", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"posting":  posting,
		"analysis": analysis,
	}, http.StatusOK)
}

// Reanalyze runs a fresh analysis for the posting, invalidating the
// cached response so the next generation uses the new version.
func (h *PostingsHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	fp := mux.Vars(r)["fingerprint"]

	analysis, err := h.rean.Reanalyze(r.Context(), fp)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		logger.Error("reanalyze failed", "fingerprint", fp, "error", err)
		http.Error(w, "reanalysis failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, analysis, http.StatusOK)
}
