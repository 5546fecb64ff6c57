package domain

import "time"

// RoadHeightScale converts accumulated return (percent) into the terrain
// height scalar consumed by the rendering collaborator.
const RoadHeightScale = 10.0

// BacktestTick is the immutable per-tick snapshot handed to the rendering
// collaborator. It is pure aggregation over the portfolio and indicator
// state; RoadHeight is the only unit conversion it performs.
type BacktestTick struct {
	Index             int          `json:"index"`
	Timestamp         time.Time    `json:"timestamp"`
	Price             float64      `json:"price"`
	PortfolioValue    float64      `json:"portfolioValue"` // equity
	AccumulatedReturn float64      `json:"accumulatedReturn"`
	RoadHeight        float64      `json:"roadHeight"` // accumulatedReturn * RoadHeightScale
	Indicators        IndicatorSet `json:"indicators"`
	Regime            Regime       `json:"regime"`
}
