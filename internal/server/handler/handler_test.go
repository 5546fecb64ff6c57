package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flatCandles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Date:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			TrueRange: 2,
			Index:     i,
		}
	}
	return out
}

// newTestMux builds a mux with the same route shapes the server registers,
// backed by a real in-memory service.
func newTestMux(t *testing.T, n int) (*http.ServeMux, *sim.Service) {
	t.Helper()
	engine, err := sim.NewEngine(flatCandles(n), sim.Config{InitialCapital: 10_000}, testLogger())
	require.NoError(t, err)
	svc := sim.NewService(engine, "data/test.json", sim.Deps{}, testLogger())

	session := NewSessionHandler(svc, "", testLogger())
	positions := NewPositionHandler(svc, testLogger())
	hedges := NewHedgeHandler(svc, testLogger())
	market := NewMarketHandler(svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", session.GetSession)
	mux.HandleFunc("POST /api/session/reset", session.ResetSession)
	mux.HandleFunc("POST /api/session/tick", session.Tick)
	mux.HandleFunc("GET /api/session/save", session.ExportSave)
	mux.HandleFunc("POST /api/session/save", session.ImportSave)
	mux.HandleFunc("GET /api/positions", positions.ListPositions)
	mux.HandleFunc("GET /api/positions/history", positions.History)
	mux.HandleFunc("POST /api/positions/open", positions.OpenPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", positions.ClosePosition)
	mux.HandleFunc("POST /api/positions/close-all", positions.CloseAll)
	mux.HandleFunc("GET /api/hedges", hedges.ListHedges)
	mux.HandleFunc("POST /api/hedges", hedges.ActivateHedge)
	mux.HandleFunc("GET /api/ticks", market.ListTicks)
	mux.HandleFunc("GET /api/indicators", market.Indicators)
	return mux, svc
}

func do(t *testing.T, mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGetSessionReportsProgress(t *testing.T) {
	mux, svc := newTestMux(t, 5)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)

	w := do(t, mux, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(-1), body["currentIndex"])
	assert.Equal(t, float64(5), body["totalCandles"])
	assert.NotEmpty(t, body["runId"])
	assert.Equal(t, "active", body["status"])
}

func TestTickWithoutSessionConflicts(t *testing.T) {
	mux, _ := newTestMux(t, 5)

	w := do(t, mux, http.MethodPost, "/api/session/tick", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResetThenTick(t *testing.T) {
	mux, _ := newTestMux(t, 5)

	w := do(t, mux, http.MethodPost, "/api/session/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["runId"])

	w = do(t, mux, http.MethodPost, "/api/session/tick", map[string]any{"count": 3})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["ticks"], 3)

	// Exhaust the dataset; the next tick conflicts.
	w = do(t, mux, http.MethodPost, "/api/session/tick", map[string]any{"count": 5})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, mux, http.MethodPost, "/api/session/tick", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOpenPositionValidation(t *testing.T) {
	mux, svc := newTestMux(t, 5)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad direction", map[string]any{"direction": "sideways", "sizeFraction": 0.5}},
		{"zero size", map[string]any{"direction": "long", "sizeFraction": 0}},
		{"oversized", map[string]any{"direction": "long", "sizeFraction": 1.5}},
		{"unknown field", map[string]any{"direction": "long", "sizeFraction": 0.5, "stop": 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, "/api/positions/open", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestOpenCloseLifecycleOverHTTP(t *testing.T) {
	mux, svc := newTestMux(t, 5)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)

	w := do(t, mux, http.MethodPost, "/api/positions/open",
		map[string]any{"direction": "long", "sizeFraction": 1.0})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["opened"])
	id, _ := body["positionId"].(string)
	require.NotEmpty(t, id)

	// All cash is reserved; a second open degrades to a no-op.
	w = do(t, mux, http.MethodPost, "/api/positions/open",
		map[string]any{"direction": "short", "sizeFraction": 0.5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["opened"])

	w = do(t, mux, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["positions"], 1)

	w = do(t, mux, http.MethodPost, "/api/positions/"+id+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["closed"])

	// Idempotent close.
	w = do(t, mux, http.MethodPost, "/api/positions/"+id+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["closed"])

	w = do(t, mux, http.MethodGet, "/api/positions/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["closedPositions"], 1)
}

func TestCloseAllOverHTTP(t *testing.T) {
	mux, svc := newTestMux(t, 5)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)

	for _, dir := range []string{"long", "short"} {
		w := do(t, mux, http.MethodPost, "/api/positions/open",
			map[string]any{"direction": dir, "sizeFraction": 0.25})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, mux, http.MethodPost, "/api/positions/close-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["closedCount"])
}

func TestHedgeEndpoints(t *testing.T) {
	mux, svc := newTestMux(t, 8)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)

	w := do(t, mux, http.MethodGet, "/api/hedges", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["types"], 4)
	assert.Equal(t, float64(0), body["cooldown"])

	// No position to protect: still 200, activated=false.
	w = do(t, mux, http.MethodPost, "/api/hedges", map[string]any{"type": "basic"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["activated"])
	assert.Equal(t, "no_position", body["reason"])

	w = do(t, mux, http.MethodPost, "/api/positions/open",
		map[string]any{"direction": "long", "sizeFraction": 0.5})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, mux, http.MethodPost, "/api/hedges", map[string]any{"type": "basic"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["activated"])
	assert.NotNil(t, body["hedge"])

	w = do(t, mux, http.MethodGet, "/api/hedges", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["activeHedges"], 1)
}

func TestTicksAndIndicators(t *testing.T) {
	mux, svc := newTestMux(t, 5)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)
	_, err = svc.Advance(t.Context(), 3)
	require.NoError(t, err)

	w := do(t, mux, http.MethodGet, "/api/ticks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["ticks"], 3)

	w = do(t, mux, http.MethodGet, "/api/ticks?since=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["ticks"], 1)

	w = do(t, mux, http.MethodGet, "/api/indicators", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ind domain.IndicatorSet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ind))
	assert.NotEmpty(t, ind.Regime)
}

func TestSaveExportImportOverHTTP(t *testing.T) {
	mux, svc := newTestMux(t, 6)
	_, err := svc.StartRun(t.Context())
	require.NoError(t, err)
	_, err = svc.Advance(t.Context(), 2)
	require.NoError(t, err)

	// Password required when none is configured.
	w := do(t, mux, http.MethodGet, "/api/session/save", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, mux, http.MethodGet, "/api/session/save?password=pw", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "session.mdsave")
	blob := w.Body.Bytes()

	_, err = svc.Advance(t.Context(), 2)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/session/save?password=pw", bytes.NewReader(blob))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	current, _ := svc.Progress()
	assert.Equal(t, 1, current)

	// Wrong password is a client error.
	req = httptest.NewRequest(http.MethodPost, "/api/session/save?password=nope", bytes.NewReader(blob))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, strings.ToLower(rec.Body.String()), "password")
}
