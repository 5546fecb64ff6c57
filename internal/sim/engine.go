// Package sim hosts the simulation engine: the single-timeline orchestrator
// that replays preprocessed candles through the ledger and hedge subsystem
// and builds the per-tick records consumed by the rendering client.
package sim

import (
	"log/slog"
	"math"

	"github.com/jchenlabs/marketdrive/internal/domain"
	"github.com/jchenlabs/marketdrive/internal/hedge"
	"github.com/jchenlabs/marketdrive/internal/ledger"
	"github.com/jchenlabs/marketdrive/internal/market"
)

// Config carries the engine tunables. Zero values fall back to the documented
// defaults.
type Config struct {
	InitialCapital         float64
	MaxLeverage            float64
	DefaultLeverage        float64
	MaxHedges              int
	PlayerLevel            int
	HedgeCostReduction     float64
	HedgeCooldownReduction int
}

func (c Config) withDefaults() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = 10_000
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = ledger.DefaultMaxLeverage
	}
	if c.DefaultLeverage <= 0 {
		c.DefaultLeverage = 1
	}
	if c.MaxHedges <= 0 {
		c.MaxHedges = 2
	}
	if c.PlayerLevel <= 0 {
		c.PlayerLevel = 1
	}
	return c
}

// Engine replays one candle series against one portfolio. It is strictly
// sequential: ticks advance in increasing index order, one at a time, because
// peak-equity and max-drawdown monotonicity and holding-period arithmetic
// depend on ordered replay. The engine itself is not goroutine-safe; the
// service layer serializes access.
type Engine struct {
	cfg     Config
	candles []domain.Candle
	state   domain.PortfolioState
	cursor  int // index of the next candle to process
	ticks   []domain.BacktestTick
	expired []hedge.Expiry // hedge expiries not yet drained by the service
	logger  *slog.Logger
}

// NewEngine creates an engine over the given candle series.
func NewEngine(candles []domain.Candle, cfg Config, logger *slog.Logger) (*Engine, error) {
	if len(candles) == 0 {
		return nil, domain.ErrDatasetEmpty
	}
	e := &Engine{
		cfg:     cfg.withDefaults(),
		candles: candles,
		logger:  logger.With(slog.String("component", "engine")),
	}
	e.Reset()
	return e, nil
}

// Reset rewinds the engine to tick zero with a fresh portfolio.
func (e *Engine) Reset() {
	e.state = domain.NewPortfolio(e.cfg.InitialCapital, domain.SkillState{
		MaxHedges:              e.cfg.MaxHedges,
		PlayerLevel:            e.cfg.PlayerLevel,
		HedgeCostReduction:     e.cfg.HedgeCostReduction,
		HedgeCooldownReduction: e.cfg.HedgeCooldownReduction,
	})
	e.cursor = 0
	e.ticks = e.ticks[:0]
	e.expired = nil
}

// Done reports whether the whole series has been processed.
func (e *Engine) Done() bool {
	return e.cursor >= len(e.candles)
}

// CurrentIndex returns the index of the last processed candle, or -1 before
// the first tick.
func (e *Engine) CurrentIndex() int {
	return e.cursor - 1
}

// CandleCount returns the dataset length.
func (e *Engine) CandleCount() int {
	return len(e.candles)
}

// currentCandle is the pricing context for player commands: the last
// processed candle, or the first candle before any tick has run.
func (e *Engine) currentCandle() domain.Candle {
	if e.cursor == 0 {
		return e.candles[0]
	}
	return e.candles[e.cursor-1]
}

// ProcessNextTick advances the simulation by exactly one candle: mark all
// positions to market, recompute aggregates, expire due hedges (closing
// their backing positions), and assemble the tick record. It returns
// domain.ErrEndOfDataset once the series is exhausted.
func (e *Engine) ProcessNextTick() (domain.BacktestTick, error) {
	if e.Done() {
		return domain.BacktestTick{}, domain.ErrEndOfDataset
	}
	c := e.candles[e.cursor]
	e.cursor++

	lcfg := ledger.Config{MaxLeverage: e.cfg.MaxLeverage}
	state := ledger.Recompute(e.state, c.Close, lcfg)

	skill, res := hedge.ProcessTick(state.Hedges, c.Index, func(positionID string) float64 {
		if pos, ok := state.FindPosition(positionID); ok {
			return pos.UnrealizedPnL
		}
		return 0
	})
	state.Hedges = skill

	for _, exp := range res.Expired {
		state = ledger.Close(state, exp.PositionID, c.Close, c.Index)
		e.logger.Debug("hedge expired",
			slog.String("type", string(exp.Type)),
			slog.String("position_id", exp.PositionID),
			slog.Bool("was_useful", exp.WasUseful),
			slog.Int("tick", c.Index),
		)
	}
	if len(res.Expired) > 0 {
		state = ledger.Recompute(state, c.Close, lcfg)
		e.expired = append(e.expired, res.Expired...)
	}

	e.state = state

	ind := market.Indicators(e.candles, c.Index)
	tick := domain.BacktestTick{
		Index:             c.Index,
		Timestamp:         c.Date,
		Price:             c.Close,
		PortfolioValue:    state.Equity,
		AccumulatedReturn: state.AccumulatedReturnPct,
		RoadHeight:        state.AccumulatedReturnPct * domain.RoadHeightScale,
		Indicators:        ind,
		Regime:            ind.Regime,
	}
	e.ticks = append(e.ticks, tick)
	return tick, nil
}

// Advance processes up to n ticks sequentially and returns the produced
// records. Fast playback may skip several candles in one call; they are
// still replayed strictly in order. Hitting the end of the dataset is not an
// error when at least one tick was produced.
func (e *Engine) Advance(n int) ([]domain.BacktestTick, error) {
	if n <= 0 {
		n = 1
	}
	out := make([]domain.BacktestTick, 0, n)
	for i := 0; i < n; i++ {
		tick, err := e.ProcessNextTick()
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		out = append(out, tick)
	}
	return out, nil
}

// OpenLong opens a long position sized as a fraction of current cash.
// Returns the new position id, or "" when the request degraded to a no-op.
func (e *Engine) OpenLong(sizeFraction, leverage float64) string {
	return e.open(domain.DirectionLong, sizeFraction, leverage)
}

// OpenShort opens a short position sized as a fraction of current cash.
func (e *Engine) OpenShort(sizeFraction, leverage float64) string {
	return e.open(domain.DirectionShort, sizeFraction, leverage)
}

func (e *Engine) open(dir domain.Direction, sizeFraction, leverage float64) string {
	if leverage <= 0 {
		leverage = e.cfg.DefaultLeverage
	}
	c := e.currentCandle()
	state, id := ledger.Open(e.state, ledger.OpenRequest{
		Direction:    dir,
		SizeFraction: sizeFraction,
		Price:        c.Close,
		TickIndex:    c.Index,
		Timestamp:    c.Date,
		Leverage:     leverage,
	})
	if id == "" {
		return ""
	}
	e.state = ledger.Recompute(state, c.Close, ledger.Config{MaxLeverage: e.cfg.MaxLeverage})
	return id
}

// ClosePositionByID closes one position at the current price. Unknown ids
// are silent no-ops; the bool reports whether anything changed.
func (e *Engine) ClosePositionByID(id string) bool {
	c := e.currentCandle()
	before := len(e.state.Positions)
	state := ledger.Close(e.state, id, c.Close, c.Index)
	if len(state.Positions) == before {
		return false
	}
	e.state = ledger.Recompute(state, c.Close, ledger.Config{MaxLeverage: e.cfg.MaxLeverage})
	return true
}

// CloseAllPositions closes every open position (hedges included) at the
// current price and returns how many were closed.
func (e *Engine) CloseAllPositions() int {
	c := e.currentCandle()
	n := len(e.state.Positions)
	if n == 0 {
		return 0
	}
	state := ledger.CloseAll(e.state, c.Close, c.Index)
	// Hedges whose backing positions were force-closed no longer protect
	// anything; drop them without arming the cooldown.
	skill := state.Hedges.Clone()
	skill.ActiveHedges = skill.ActiveHedges[:0]
	state.Hedges = skill
	e.state = ledger.Recompute(state, c.Close, ledger.Config{MaxLeverage: e.cfg.MaxLeverage})
	return n
}

// ActivateHedge attempts to activate a hedge of the given type against the
// combined notional of the open non-hedge positions. An empty type selects
// the basic hedge. On success the ledger books the synthetic short and pays
// the activation cost.
func (e *Engine) ActivateHedge(t domain.HedgeType) hedge.Result {
	if t == "" {
		t = domain.HedgeBasic
	}
	c := e.currentCandle()

	var protected float64
	for _, pos := range e.state.Positions {
		if !pos.IsHedge {
			protected += math.Abs(pos.SizeInDollars)
		}
	}

	skill, res := hedge.Activate(e.state.Hedges, hedge.Request{
		Type:           t,
		Price:          c.Close,
		PositionValue:  protected,
		PortfolioValue: e.state.Equity,
		TickIndex:      c.Index,
		Timestamp:      c.Date,
	})

	state := e.state.Clone()
	state.Hedges = skill
	if res.Activated {
		state = ledger.OpenHedge(state, res.Position, res.CostPaid)
	}
	e.state = ledger.Recompute(state, c.Close, ledger.Config{MaxLeverage: e.cfg.MaxLeverage})
	return res
}

// DrainHedgeExpiries returns the hedge expiries recorded since the last call
// and clears the buffer.
func (e *Engine) DrainHedgeExpiries() []hedge.Expiry {
	out := e.expired
	e.expired = nil
	return out
}

// Snapshot returns a deep copy of the current portfolio state.
func (e *Engine) Snapshot() domain.PortfolioState {
	return e.state.Clone()
}

// Ticks returns the tick records with index greater than sinceIndex.
func (e *Engine) Ticks(sinceIndex int) []domain.BacktestTick {
	out := make([]domain.BacktestTick, 0, len(e.ticks))
	for _, t := range e.ticks {
		if t.Index > sinceIndex {
			out = append(out, t)
		}
	}
	return out
}

// CurrentIndicators returns the indicator set at the last processed candle.
func (e *Engine) CurrentIndicators() domain.IndicatorSet {
	return market.Indicators(e.candles, e.CurrentIndex())
}
