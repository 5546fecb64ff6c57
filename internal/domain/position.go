package domain

import "time"

// Direction is the side of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Instrument identifies what a position is exposed to. Player positions trade
// the asset itself; hedge positions short a synthetic index.
type Instrument string

const (
	InstrumentAsset Instrument = "asset"
	InstrumentIndex Instrument = "index"
)

// Position is one open leveraged directional exposure. SizeInDollars is fixed
// at entry; only CurrentPrice and the unrealized P&L fields are recomputed as
// the price moves.
type Position struct {
	ID                   string     `json:"id"`
	Direction            Direction  `json:"direction"`
	EntryPrice           float64    `json:"entryPrice"`
	EntryIndex           int        `json:"entryIndex"`
	EntryTime            time.Time  `json:"entryTime"`
	Size                 float64    `json:"size"`          // fraction of capital committed, 0-1
	SizeInDollars        float64    `json:"sizeInDollars"` // dollar value fixed at entry
	CurrentPrice         float64    `json:"currentPrice"`
	UnrealizedPnL        float64    `json:"unrealizedPnL"`
	UnrealizedPnLPercent float64    `json:"unrealizedPnLPercent"`
	Leverage             float64    `json:"leverage"`
	Instrument           Instrument `json:"instrument"`
	IsHedge              bool       `json:"isHedge"`
	Beta                 float64    `json:"beta,omitempty"`             // hedge sizing factor, set for hedge positions
	HedgesPositionID     string     `json:"hedgesPositionId,omitempty"` // lookup-only back-reference, not an ownership link
}

// ClosedPosition is the immutable historical record of a closed position.
type ClosedPosition struct {
	Position
	ExitPrice          float64 `json:"exitPrice"`
	ExitIndex          int     `json:"exitIndex"`
	RealizedPnL        float64 `json:"realizedPnL"`
	RealizedPnLPercent float64 `json:"realizedPnLPercent"`
	HoldingPeriod      int     `json:"holdingPeriod"` // ticks held
}

// MarkToMarket returns a copy of p revalued at currentPrice. It is a pure
// function: leveraged percentage move first, dollar P&L derived from the
// fixed entry notional. EntryPrice is validated to be positive at open time.
func MarkToMarket(p Position, currentPrice float64) Position {
	priceDiffPct := (currentPrice - p.EntryPrice) / p.EntryPrice

	p.CurrentPrice = currentPrice
	p.UnrealizedPnLPercent = priceDiffPct * 100 * p.Direction.Sign() * p.Leverage
	p.UnrealizedPnL = p.SizeInDollars * p.UnrealizedPnLPercent / 100
	return p
}
