package api

import (
	"net/http"

	"github.com/garnizeh/talentflow/internal/jobs"
	"github.com/garnizeh/talentflow/pkg/models"
	"github.com/garnizeh/talentflow/pkg/repository"
)

type StatsHandler struct {
	leads    repository.LeadRepo
	settings repository.SettingRepo
	actions  repository.ActionLogRepo
	queue    *jobs.Repository
}

func NewStatsHandler(lr repository.LeadRepo, sr repository.SettingRepo, ar repository.ActionLogRepo, queue *jobs.Repository) *StatsHandler {
	return &StatsHandler{leads: lr, settings: sr, actions: ar, queue: queue}
}

// Stats reports lead counts by status, queue depths, and the sweep
// counters kept in the configuration table.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leadCounts, err := h.leads.CountLeadsByStatus(ctx)
	if err != nil {
		http.Error(w, "failed to count leads", http.StatusInternalServerError)
		return
	}
	if leadCounts == nil {
		leadCounts = map[models.LeadStatus]int64{}
	}

	jobCounts, err := h.queue.Counts(ctx)
	if err != nil {
		http.Error(w, "failed to count jobs", http.StatusInternalServerError)
		return
	}

	counters := map[string]string{}
	for _, key := range []string{
		"last_scan",
		"last_scan_fetched",
		"stats_postings_processed",
		"stats_failures_transient",
		"stats_failures_permanent",
		"stats_failures_parse",
		"stats_failures_integrity",
	} {
		v, err := h.settings.GetSetting(ctx, key)
		if err != nil {
			http.Error(w, "failed to read counters", http.StatusInternalServerError)
			return
		}
		if v != "" {
			counters[key] = v
		}
	}

	writeJSON(w, map[string]any{
		"leads":    leadCounts,
		"jobs":     jobCounts,
		"counters": counters,
	}, http.StatusOK)
}

// Actions lists the append-only action log, newest first.
func (h *StatsHandler) Actions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	rows, err := h.actions.ListActions(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "failed to list actions", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.ActionLog{}
	}

	writeJSON(w, map[string]any{
		"limit":  limit,
		"offset": offset,
		"items":  rows,
	}, http.StatusOK)
}
