// Package domain defines the core types of the market simulation engine:
// candles, positions, the portfolio aggregate, hedge state, per-tick records,
// and the store/cache interfaces implemented by the infrastructure packages.
package domain

import "time"

// Candle is one preprocessed OHLCV bar. The base derivations (daily return,
// intraday volatility, true range, rolling volatility) are computed by the
// upstream data pipeline; the engine never derives them itself.
type Candle struct {
	Date               time.Time `json:"date"`
	Open               float64   `json:"open"`
	High               float64   `json:"high"`
	Low                float64   `json:"low"`
	Close              float64   `json:"close"`
	Volume             float64   `json:"volume"`
	DailyReturn        float64   `json:"dailyReturn"`
	IntradayVolatility float64   `json:"intradayVolatility"`
	TrueRange          float64   `json:"trueRange"`
	RollingVolatility  float64   `json:"rollingVolatility"`
	Index              int       `json:"index"`
}
