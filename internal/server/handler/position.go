package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/sim"
)

// PositionHandler exposes position commands and queries.
type PositionHandler struct {
	svc    *sim.Service
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(svc *sim.Service, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "position")),
	}
}

// ListPositions returns the open positions in the current snapshot.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	state := h.svc.Snapshot()
	positions := state.Positions
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"exposure":  state.TotalExposure,
		"equity":    state.Equity,
	})
}

// History returns this session's closed positions, newest last.
// GET /api/positions/history
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	state := h.svc.Snapshot()
	closed := state.ClosedPositions
	if closed == nil {
		closed = []domain.ClosedPosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"closedPositions":  closed,
		"totalRealizedPnl": state.TotalRealizedPnL,
	})
}

// OpenPosition opens a long or short position.
// POST /api/positions/open
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction    string  `json:"direction"`
		SizeFraction float64 `json:"sizeFraction"`
		Leverage     float64 `json:"leverage"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var dir domain.Direction
	switch strings.ToLower(req.Direction) {
	case "long":
		dir = domain.DirectionLong
	case "short":
		dir = domain.DirectionShort
	default:
		writeError(w, http.StatusBadRequest, `direction must be "long" or "short"`)
		return
	}
	if req.SizeFraction <= 0 || req.SizeFraction > 1 {
		writeError(w, http.StatusBadRequest, "sizeFraction must be in (0, 1]")
		return
	}

	state, id := h.svc.OpenPosition(r.Context(), dir, req.SizeFraction, req.Leverage)
	if id == "" {
		// The engine treats unfundable opens as no-ops; report it plainly.
		writeJSON(w, http.StatusOK, map[string]any{
			"opened":    false,
			"portfolio": state,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"opened":     true,
		"positionId": id,
		"portfolio":  state,
	})
}

// ClosePosition closes one position by id.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id is required")
		return
	}

	state, closed := h.svc.ClosePosition(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"closed":    closed,
		"portfolio": state,
	})
}

// CloseAll closes every open position at the current price.
// POST /api/positions/close-all
func (h *PositionHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	state, n := h.svc.CloseAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"closedCount": n,
		"portfolio":   state,
	})
}
