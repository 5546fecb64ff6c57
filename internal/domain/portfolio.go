package domain

// PortfolioState is the aggregate root of the simulation. Every ledger and
// hedge operation is a pure transform producing a new PortfolioState value;
// nothing mutates a state in place. Invariants maintained by the ledger:
//
//	equity       = cash + sum(sizeInDollars) + sum(unrealizedPnL) over open positions
//	peakEquity   = max(peakEquity, equity) each tick (non-decreasing)
//	drawdown     = (peakEquity - equity) / peakEquity when peakEquity > 0
//	maxDrawdown  = max(maxDrawdown, drawdown) (non-decreasing)
//	totalExposure = sum(position.size), recomputed each tick, never drifted
type PortfolioState struct {
	InitialCapital       float64          `json:"initialCapital"`
	Cash                 float64          `json:"cash"`
	Equity               float64          `json:"equity"`
	Positions            []Position       `json:"positions"`       // insertion order preserved for the UI
	ClosedPositions      []ClosedPosition `json:"closedPositions"` // append-only
	TotalExposure        float64          `json:"totalExposure"`
	TotalUnrealizedPnL   float64          `json:"totalUnrealizedPnL"`
	TotalRealizedPnL     float64          `json:"totalRealizedPnL"`
	AccumulatedReturnPct float64          `json:"accumulatedReturn"`
	AccumulatedReturnUSD float64          `json:"accumulatedReturnUsd"`
	PeakEquity           float64          `json:"peakEquity"`
	Drawdown             float64          `json:"drawdown"` // current, fraction of peak
	MaxDrawdown          float64          `json:"maxDrawdown"`
	RecoveryNeeded       float64          `json:"recoveryNeeded"` // percent gain needed to regain the peak
	MarginUsage          float64          `json:"marginUsage"`
	StressLevel          float64          `json:"stressLevel"`
	RawStress            float64          `json:"rawStress"`
	Hedges               SkillState       `json:"hedges"`
}

// NewPortfolio returns a fresh portfolio funded with initialCapital and the
// given hedge governance state.
func NewPortfolio(initialCapital float64, skill SkillState) PortfolioState {
	return PortfolioState{
		InitialCapital: initialCapital,
		Cash:           initialCapital,
		Equity:         initialCapital,
		PeakEquity:     initialCapital,
		Hedges:         skill,
	}
}

// FindPosition returns the open position with the given id, or false when no
// such position exists.
func (p PortfolioState) FindPosition(id string) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.ID == id {
			return pos, true
		}
	}
	return Position{}, false
}

// Clone returns a deep copy of the state. Ledger transforms clone before
// touching any slice so callers can hold on to prior states for replay.
func (p PortfolioState) Clone() PortfolioState {
	out := p
	out.Positions = append([]Position(nil), p.Positions...)
	out.ClosedPositions = append([]ClosedPosition(nil), p.ClosedPositions...)
	out.Hedges = p.Hedges.Clone()
	return out
}
