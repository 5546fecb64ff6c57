package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/sim"
)

// maxSaveSize bounds uploaded save files.
const maxSaveSize = 4 << 20

// SessionHandler exposes the session lifecycle: current state, reset,
// clock advancement, and encrypted save import/export.
type SessionHandler struct {
	svc          *sim.Service
	savePassword string
	logger       *slog.Logger
}

// NewSessionHandler creates a SessionHandler. savePassword protects exported
// save files; requests may override it with their own password.
func NewSessionHandler(svc *sim.Service, savePassword string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		svc:          svc,
		savePassword: savePassword,
		logger:       logger.With(slog.String("handler", "session")),
	}
}

// GetSession returns the live portfolio snapshot and replay progress.
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	current, total := h.svc.Progress()

	body := map[string]any{
		"portfolio":    h.svc.Snapshot(),
		"currentIndex": current,
		"totalCandles": total,
	}
	if run, ok := h.svc.Run(); ok {
		body["runId"] = run.ID
		body["datasetKey"] = run.DatasetKey
		body["status"] = string(run.Status)
	}
	writeJSON(w, http.StatusOK, body)
}

// ResetSession restarts the simulation from the first candle under a fresh
// recorded run.
// POST /api/session/reset
func (h *SessionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.StartRun(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reset failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runId":     run.ID,
		"portfolio": h.svc.Snapshot(),
	})
}

// Tick advances the session clock. The body may carry {"count": n}; the
// default is one candle.
// POST /api/session/tick
func (h *SessionHandler) Tick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > 1000 {
		req.Count = 1000
	}

	ticks, err := h.svc.Advance(r.Context(), req.Count)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoSession):
			writeError(w, http.StatusConflict, "no active session; reset first")
		case errors.Is(err, domain.ErrEndOfDataset):
			writeError(w, http.StatusConflict, "dataset exhausted")
		default:
			h.logger.ErrorContext(r.Context(), "tick failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to advance session")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticks":     ticks,
		"portfolio": h.svc.Snapshot(),
	})
}

// ExportSave streams the encrypted session save file.
// GET /api/session/save
func (h *SessionHandler) ExportSave(w http.ResponseWriter, r *http.Request) {
	password := r.URL.Query().Get("password")
	if password == "" {
		password = h.savePassword
	}
	if password == "" {
		writeError(w, http.StatusBadRequest, "a save password is required")
		return
	}

	blob, err := h.svc.ExportSave(password)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "export failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to export save")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="session.mdsave"`)
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

// ImportSave restores a previously exported session.
// POST /api/session/save
func (h *SessionHandler) ImportSave(w http.ResponseWriter, r *http.Request) {
	password := r.URL.Query().Get("password")
	if password == "" {
		password = h.savePassword
	}
	if password == "" {
		writeError(w, http.StatusBadRequest, "a save password is required")
		return
	}

	blob, err := io.ReadAll(io.LimitReader(r.Body, maxSaveSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read save file")
		return
	}

	if err := h.svc.ImportSave(r.Context(), blob, password); err != nil {
		if errors.Is(err, domain.ErrBadSaveFile) {
			writeError(w, http.StatusBadRequest, "save file is corrupt or the password is wrong")
			return
		}
		h.logger.ErrorContext(r.Context(), "import failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to import save")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"portfolio": h.svc.Snapshot(),
	})
}
