// Package ledger implements the position ledger: pure transforms over
// domain.PortfolioState values for opening, closing, and mark-to-market
// revaluation of leveraged positions. Every function returns a new state;
// callers serialize command application per run.
package ledger

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

const (
	// DefaultMaxLeverage is the configured leverage ceiling used for margin
	// usage when no override is supplied.
	DefaultMaxLeverage = 3.0

	// lossAversionMultiplier amplifies stress while the portfolio carries an
	// aggregate unrealized loss. Losses weigh about 2.25x gains in human risk
	// perception; this is a fixed design constant.
	lossAversionMultiplier = 2.25

	exposureStressWeight = 0.3
	drawdownStressWeight = 2.0
)

// Config carries the ledger's tunables.
type Config struct {
	MaxLeverage float64
}

func (c Config) maxLeverage() float64 {
	if c.MaxLeverage > 0 {
		return c.MaxLeverage
	}
	return DefaultMaxLeverage
}

// OpenRequest describes a position to open. SizeFraction is a fraction of
// current cash, not of total equity.
type OpenRequest struct {
	Direction    domain.Direction
	SizeFraction float64
	Price        float64
	TickIndex    int
	Timestamp    time.Time
	Leverage     float64
}

// Open reserves sizeFraction of current cash as margin and appends a new
// position. Requests that resolve to a non-positive position value, or carry
// a non-positive price, are silent no-ops: the state is returned unchanged
// with an empty id. Callers that need to warn the user detect the no-op by
// the empty id.
func Open(p domain.PortfolioState, req OpenRequest) (domain.PortfolioState, string) {
	positionValue := p.Cash * req.SizeFraction
	if positionValue <= 0 || req.Price <= 0 {
		return p, ""
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	out := p.Clone()
	pos := domain.Position{
		ID:            uuid.NewString(),
		Direction:     req.Direction,
		EntryPrice:    req.Price,
		EntryIndex:    req.TickIndex,
		EntryTime:     req.Timestamp,
		Size:          req.SizeFraction,
		SizeInDollars: positionValue,
		CurrentPrice:  req.Price,
		Leverage:      leverage,
		Instrument:    domain.InstrumentAsset,
	}

	out.Cash -= positionValue
	out.Positions = append(out.Positions, pos)
	out.TotalExposure += req.SizeFraction
	return out, pos.ID
}

// OpenHedge appends an already-constructed hedge position, reserving its
// notional as margin and paying the activation cost out of cash. The hedge
// subsystem builds the position and decides whether activation is allowed;
// the ledger only moves money.
func OpenHedge(p domain.PortfolioState, pos domain.Position, costPaid float64) domain.PortfolioState {
	out := p.Clone()
	out.Cash -= pos.SizeInDollars + costPaid
	out.Positions = append(out.Positions, pos)
	out.TotalExposure += pos.Size
	return out
}

// Close marks the target position to market at price, realizes its P&L, and
// returns margin plus P&L to cash. Closing an unknown id is a silent no-op:
// callers may rely on idempotent close semantics.
func Close(p domain.PortfolioState, positionID string, price float64, tickIndex int) domain.PortfolioState {
	idx := -1
	for i, pos := range p.Positions {
		if pos.ID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p
	}

	out := p.Clone()
	pos := domain.MarkToMarket(out.Positions[idx], price)
	realized := pos.UnrealizedPnL

	closed := domain.ClosedPosition{
		Position:           pos,
		ExitPrice:          price,
		ExitIndex:          tickIndex,
		RealizedPnL:        realized,
		RealizedPnLPercent: pos.UnrealizedPnLPercent,
		HoldingPeriod:      tickIndex - pos.EntryIndex,
	}

	out.Cash += pos.SizeInDollars + realized
	out.TotalRealizedPnL += realized
	out.TotalExposure -= pos.Size
	out.Positions = append(out.Positions[:idx], out.Positions[idx+1:]...)
	out.ClosedPositions = append(out.ClosedPositions, closed)
	return out
}

// CloseAll folds Close over a snapshot of the currently open position ids so
// that removal during iteration cannot skip entries.
func CloseAll(p domain.PortfolioState, price float64, tickIndex int) domain.PortfolioState {
	ids := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		ids[i] = pos.ID
	}
	out := p
	for _, id := range ids {
		out = Close(out, id, price, tickIndex)
	}
	return out
}

// Recompute marks every open position to market at price and rebuilds all
// aggregate fields. The order matters: unrealized P&L and exposure feed
// equity, equity feeds peak and drawdown, drawdown feeds recovery and stress.
func Recompute(p domain.PortfolioState, price float64, cfg Config) domain.PortfolioState {
	out := p.Clone()

	var unrealized, exposure, notional float64
	for i, pos := range out.Positions {
		marked := domain.MarkToMarket(pos, price)
		out.Positions[i] = marked
		unrealized += marked.UnrealizedPnL
		exposure += marked.Size
		notional += marked.SizeInDollars
	}

	out.TotalUnrealizedPnL = unrealized
	out.TotalExposure = exposure
	out.Equity = out.Cash + notional + unrealized

	out.AccumulatedReturnUSD = out.Equity - out.InitialCapital
	if out.InitialCapital > 0 {
		out.AccumulatedReturnPct = out.AccumulatedReturnUSD / out.InitialCapital * 100
	}

	if out.Equity > out.PeakEquity {
		out.PeakEquity = out.Equity
	}

	if out.PeakEquity > 0 {
		out.Drawdown = (out.PeakEquity - out.Equity) / out.PeakEquity
	} else {
		out.Drawdown = 0
	}
	if out.Drawdown > out.MaxDrawdown {
		out.MaxDrawdown = out.Drawdown
	}

	out.RecoveryNeeded = recoveryNeeded(out.Drawdown)

	out.RawStress = math.Min(1, exposure*exposureStressWeight+out.Drawdown*drawdownStressWeight)
	if unrealized < 0 {
		out.StressLevel = math.Min(1, out.RawStress*lossAversionMultiplier)
	} else {
		out.StressLevel = out.RawStress
	}

	out.MarginUsage = exposure / cfg.maxLeverage()
	return out
}

// recoveryNeeded is the exact recovery law: a loss of fraction d requires a
// gain of d/(1-d) to regain the peak. It diverges as d approaches 1, so a
// total loss reports an effectively unbounded requirement.
func recoveryNeeded(drawdown float64) float64 {
	if drawdown <= 0 {
		return 0
	}
	if drawdown >= 1 {
		return math.MaxFloat64
	}
	return drawdown / (1 - drawdown) * 100
}
