package handler

import (
	"log/slog"
	"net/http"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/hedge"
	"github.com/jchenlabs/marketdrive/internal/sim"
)

// HedgeHandler exposes hedge activation and status.
type HedgeHandler struct {
	svc    *sim.Service
	logger *slog.Logger
}

// NewHedgeHandler creates a HedgeHandler.
func NewHedgeHandler(svc *sim.Service, logger *slog.Logger) *HedgeHandler {
	return &HedgeHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "hedge")),
	}
}

// ListHedges returns the active hedges plus cooldown and capacity state.
// GET /api/hedges
func (h *HedgeHandler) ListHedges(w http.ResponseWriter, r *http.Request) {
	state := h.svc.Snapshot()
	active := state.Hedges.ActiveHedges
	if active == nil {
		active = []domain.HedgeState{}
	}

	types := make([]map[string]any, 0, 4)
	for _, t := range hedge.Types() {
		spec, _ := hedge.SpecFor(t)
		types = append(types, map[string]any{
			"type":        string(t),
			"label":       spec.Label,
			"beta":        spec.Beta,
			"cost":        spec.Cost,
			"duration":    spec.Duration,
			"cooldown":    spec.Cooldown,
			"unlockLevel": spec.UnlockLevel,
			"unlocked":    state.Hedges.PlayerLevel >= spec.UnlockLevel,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activeHedges": active,
		"cooldown":     state.Hedges.HedgeCooldown,
		"maxHedges":    state.Hedges.MaxHedges,
		"playerLevel":  state.Hedges.PlayerLevel,
		"lastMessage":  state.Hedges.LastMessage,
		"types":        types,
	})
}

// ActivateHedge attempts to open a hedge of the requested type. Rejections
// return 200 with activated=false; they are ordinary game outcomes, not
// errors.
// POST /api/hedges
func (h *HedgeHandler) ActivateHedge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res, state := h.svc.ActivateHedge(r.Context(), domain.HedgeType(req.Type))
	body := map[string]any{
		"activated": res.Activated,
		"message":   res.Message,
		"portfolio": state,
	}
	if res.Activated {
		body["hedge"] = res.Hedge
		body["costPaid"] = res.CostPaid
	} else {
		body["reason"] = string(res.Reason)
	}
	writeJSON(w, http.StatusOK, body)
}
