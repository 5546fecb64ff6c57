package sim

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeCandles(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Date:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			TrueRange: 2,
			Index:     i,
		}
	}
	return out
}

func flatCandles(n int) []domain.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100
	}
	return makeCandles(closes...)
}

func newTestEngine(t *testing.T, candles []domain.Candle) *Engine {
	t.Helper()
	e, err := NewEngine(candles, Config{InitialCapital: 10_000}, testLogger())
	require.NoError(t, err)
	return e
}

func TestNewEngineRejectsEmptyDataset(t *testing.T) {
	_, err := NewEngine(nil, Config{}, testLogger())
	assert.ErrorIs(t, err, domain.ErrDatasetEmpty)
}

func TestProcessNextTickWalksTheSeries(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110, 121))

	assert.Equal(t, -1, e.CurrentIndex())
	assert.Equal(t, 3, e.CandleCount())
	assert.False(t, e.Done())

	for i := 0; i < 3; i++ {
		tick, err := e.ProcessNextTick()
		require.NoError(t, err)
		assert.Equal(t, i, tick.Index)
		assert.Equal(t, i, e.CurrentIndex())
	}

	assert.True(t, e.Done())
	_, err := e.ProcessNextTick()
	assert.ErrorIs(t, err, domain.ErrEndOfDataset)
}

func TestAdvanceReturnsPartialBatchAtEnd(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110, 121))

	ticks, err := e.Advance(10)
	require.NoError(t, err)
	assert.Len(t, ticks, 3)

	_, err = e.Advance(1)
	assert.ErrorIs(t, err, domain.ErrEndOfDataset)
}

func TestTickRecordsEquityAndRoadHeight(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110))

	id := e.OpenLong(0.5, 1)
	require.NotEmpty(t, id)

	tick, err := e.ProcessNextTick()
	require.NoError(t, err)
	assert.InDelta(t, 10_000, tick.PortfolioValue, 1e-9)
	assert.InDelta(t, 0, tick.AccumulatedReturn, 1e-9)

	tick, err = e.ProcessNextTick()
	require.NoError(t, err)
	assert.InDelta(t, 10_500, tick.PortfolioValue, 1e-9)
	assert.InDelta(t, 5, tick.AccumulatedReturn, 1e-9)
	assert.InDelta(t, 50, tick.RoadHeight, 1e-9)

	state := e.Snapshot()
	assert.InDelta(t, 10_500, state.Equity, 1e-9)
	assert.InDelta(t, 500, state.TotalUnrealizedPnL, 1e-9)
}

func TestOpenUsesDefaultLeverage(t *testing.T) {
	e, err := NewEngine(flatCandles(3), Config{InitialCapital: 10_000, DefaultLeverage: 2}, testLogger())
	require.NoError(t, err)

	id := e.OpenLong(0.5, 0)
	require.NotEmpty(t, id)
	pos, ok := e.Snapshot().FindPosition(id)
	require.True(t, ok)
	assert.Equal(t, 2.0, pos.Leverage)
}

func TestClosePositionByID(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110, 121))
	id := e.OpenLong(0.5, 1)
	require.NotEmpty(t, id)

	_, err := e.Advance(2)
	require.NoError(t, err)

	assert.False(t, e.ClosePositionByID("unknown"))
	assert.True(t, e.ClosePositionByID(id))
	assert.False(t, e.ClosePositionByID(id))

	state := e.Snapshot()
	assert.Empty(t, state.Positions)
	require.Len(t, state.ClosedPositions, 1)
	assert.InDelta(t, 500, state.ClosedPositions[0].RealizedPnL, 1e-9)
	assert.InDelta(t, 10_500, state.Cash, 1e-9)
}

func TestActivateHedgeBooksShortAndPaysCost(t *testing.T) {
	e := newTestEngine(t, flatCandles(8))

	require.NotEmpty(t, e.OpenLong(0.5, 1))
	res := e.ActivateHedge(domain.HedgeBasic)
	require.True(t, res.Activated)

	state := e.Snapshot()
	require.Len(t, state.Positions, 2)
	require.Len(t, state.Hedges.ActiveHedges, 1)

	// Protecting $5000 with beta 0.70 shorts $3500 at a $17.50 cost; the cost
	// is the only equity the activation burns.
	assert.InDelta(t, 3_500, state.Hedges.ActiveHedges[0].HedgeSize, 1e-9)
	assert.InDelta(t, 10_000-17.5, state.Equity, 1e-9)
	assert.InDelta(t, 10_000-5_000-3_517.5, state.Cash, 1e-9)
}

func TestActivateHedgeEmptyTypeIsBasic(t *testing.T) {
	e := newTestEngine(t, flatCandles(8))
	require.NotEmpty(t, e.OpenLong(0.5, 1))

	res := e.ActivateHedge("")
	require.True(t, res.Activated)
	assert.Equal(t, domain.HedgeBasic, res.Hedge.Type)
}

func TestActivateHedgeWithoutPositionRejected(t *testing.T) {
	e := newTestEngine(t, flatCandles(8))

	res := e.ActivateHedge(domain.HedgeBasic)
	assert.False(t, res.Activated)
	assert.Equal(t, domain.HedgeRejectNoPosition, res.Reason)
}

func TestHedgeExpiryClosesBackingPosition(t *testing.T) {
	e := newTestEngine(t, flatCandles(8))

	require.NotEmpty(t, e.OpenLong(0.5, 1))
	res := e.ActivateHedge(domain.HedgeBasic)
	require.True(t, res.Activated)

	// Basic hedges live five candles.
	_, err := e.Advance(5)
	require.NoError(t, err)

	state := e.Snapshot()
	assert.Empty(t, state.Hedges.ActiveHedges)
	assert.Equal(t, 5, state.Hedges.HedgeCooldown)

	require.Len(t, state.Positions, 1)
	assert.False(t, state.Positions[0].IsHedge)
	require.Len(t, state.ClosedPositions, 1)
	assert.True(t, state.ClosedPositions[0].IsHedge)

	// Flat prices: the hedge realizes zero, so only the cost is gone.
	assert.InDelta(t, 10_000-17.5, state.Equity, 1e-9)

	expiries := e.DrainHedgeExpiries()
	require.Len(t, expiries, 1)
	assert.Equal(t, state.ClosedPositions[0].ID, expiries[0].PositionID)
	assert.Empty(t, e.DrainHedgeExpiries(), "drain clears the buffer")
}

func TestCloseAllDropsHedgesWithoutCooldown(t *testing.T) {
	e := newTestEngine(t, flatCandles(8))

	require.NotEmpty(t, e.OpenLong(0.5, 1))
	require.True(t, e.ActivateHedge(domain.HedgeBasic).Activated)

	n := e.CloseAllPositions()
	assert.Equal(t, 2, n)

	state := e.Snapshot()
	assert.Empty(t, state.Positions)
	assert.Empty(t, state.Hedges.ActiveHedges)
	assert.Equal(t, 0, state.Hedges.HedgeCooldown)
	assert.Len(t, state.ClosedPositions, 2)
}

func TestTicksSinceIndex(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110, 121, 133))
	_, err := e.Advance(4)
	require.NoError(t, err)

	assert.Len(t, e.Ticks(-1), 4)
	assert.Len(t, e.Ticks(1), 2)
	assert.Empty(t, e.Ticks(3))
}

func TestResetRewindsToFreshPortfolio(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110, 121))
	require.NotEmpty(t, e.OpenLong(0.5, 1))
	_, err := e.Advance(3)
	require.NoError(t, err)

	e.Reset()

	assert.Equal(t, -1, e.CurrentIndex())
	assert.False(t, e.Done())
	assert.Empty(t, e.Ticks(-1))

	state := e.Snapshot()
	assert.Equal(t, 10_000.0, state.Cash)
	assert.Empty(t, state.Positions)
	assert.Empty(t, state.ClosedPositions)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110, 121, 133, 146))
	_, err := e.Advance(2)
	require.NoError(t, err)
	id := e.OpenLong(0.5, 1)
	require.NotEmpty(t, id)

	save := e.Export("data/candles.json")
	assert.Equal(t, 1, save.Version)
	assert.Equal(t, 2, save.Cursor)
	savedEquity := save.Portfolio.Equity

	// Play past the save point and discard the position.
	_, err = e.Advance(2)
	require.NoError(t, err)
	require.True(t, e.ClosePositionByID(id))

	require.NoError(t, e.Restore(save))

	assert.Equal(t, 1, e.CurrentIndex())
	state := e.Snapshot()
	assert.InDelta(t, savedEquity, state.Equity, 1e-9)
	require.Len(t, state.Positions, 1)
	assert.Equal(t, id, state.Positions[0].ID)
	assert.Empty(t, e.Ticks(-1))
}

func TestRestoreRejectsBadSaves(t *testing.T) {
	e := newTestEngine(t, makeCandles(100, 110))

	assert.Error(t, e.Restore(SaveState{Version: 99, Cursor: 0}))
	assert.Error(t, e.Restore(SaveState{Version: 1, Cursor: -1}))
	assert.Error(t, e.Restore(SaveState{Version: 1, Cursor: 3}))
}
