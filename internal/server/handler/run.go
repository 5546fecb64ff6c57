package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// RunHandler serves historical run records from the store. It is only
// registered when Postgres is wired in.
type RunHandler struct {
	runs    domain.RunStore
	journal domain.JournalStore
	logger  *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(runs domain.RunStore, journal domain.JournalStore, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runs:    runs,
		journal: journal,
		logger:  logger.With(slog.String("handler", "run")),
	}
}

// ListRuns returns recorded runs, newest first.
// GET /api/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns one run plus its closed-position journal.
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	journal, err := h.journal.ListByRun(r.Context(), id, domain.ListOpts{})
	if err != nil {
		h.logger.WarnContext(r.Context(), "load journal failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
	}
	if journal == nil {
		journal = []domain.ClosedPosition{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":     run,
		"journal": journal,
	})
}
