package handler

import (
	"log/slog"
	"net/http"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/sim"
)

// MarketHandler serves the tick feed and current indicator readings.
type MarketHandler struct {
	svc    *sim.Service
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *sim.Service, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "market")),
	}
}

// ListTicks returns the session's tick records from ?since= onward (default
// everything). Clients poll this as a fallback when the WebSocket is down.
// GET /api/ticks
func (h *MarketHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	since := queryInt(r, "since", -1)
	ticks := h.svc.Ticks(since)
	if ticks == nil {
		ticks = []domain.BacktestTick{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticks": ticks,
	})
}

// Indicators returns the indicator set at the current candle.
// GET /api/indicators
func (h *MarketHandler) Indicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.IndicatorsNow())
}
