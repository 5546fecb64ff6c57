// Package market derives the indicator set and regime classification the
// engine attaches to every tick. All functions are pure over the candle
// history; the base derivations (true range, rolling volatility) arrive
// precomputed on the candles themselves.
package market

import (
	"github.com/jchenlabs/marketdrive/internal/domain"
)

const (
	rsiLookback   = 14
	trendLookback = 20
)

// Indicators computes the derived market context at the given candle index.
// An out-of-range index returns neutral defaults (RSI 50, CHOP regime).
func Indicators(candles []domain.Candle, index int) domain.IndicatorSet {
	if index < 0 || index >= len(candles) {
		return domain.NeutralIndicators()
	}

	out := domain.IndicatorSet{
		RSI:        rsi(candles, index),
		ATR:        atr(candles, index),
		Volatility: candles[index].RollingVolatility,
		Trend:      trend(candles, index),
		Drawdown:   drawdownFromHigh(candles, index),
	}
	out.Regime = classify(out)
	return out
}

// rsi is the Wilder-style relative strength index over a lookback of
// min(14, index+1) candles. A period with no losses saturates RS at 100.
func rsi(candles []domain.Candle, index int) float64 {
	lookback := min(rsiLookback, index+1)
	start := index - lookback + 1

	var gains, losses float64
	n := 0
	for i := start + 1; i <= index; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
		n++
	}
	if n == 0 {
		return 50
	}

	avgGain := gains / float64(n)
	avgLoss := losses / float64(n)

	rs := 100.0
	if avgLoss > 0 {
		rs = avgGain / avgLoss
	}
	return 100 - 100/(1+rs)
}

// atr is the mean true range over the RSI lookback window.
func atr(candles []domain.Candle, index int) float64 {
	lookback := min(rsiLookback, index+1)
	start := index - lookback + 1

	var sum float64
	for i := start; i <= index; i++ {
		sum += candles[i].TrueRange
	}
	return sum / float64(lookback)
}

// trend is the percent distance of the close from its 20-candle moving
// average (shorter early in the series).
func trend(candles []domain.Candle, index int) float64 {
	lookback := min(trendLookback, index+1)
	start := index - lookback + 1

	var sum float64
	for i := start; i <= index; i++ {
		sum += candles[i].Close
	}
	ma := sum / float64(lookback)
	if ma == 0 {
		return 0
	}
	return (candles[index].Close - ma) / ma * 100
}

// drawdownFromHigh is the percent decline of the close from the highest high
// seen so far in the series.
func drawdownFromHigh(candles []domain.Candle, index int) float64 {
	var maxHigh float64
	for i := 0; i <= index; i++ {
		if candles[i].High > maxHigh {
			maxHigh = candles[i].High
		}
	}
	if maxHigh == 0 {
		return 0
	}
	return (maxHigh - candles[index].Close) / maxHigh * 100
}

// classify maps the indicator set onto a regime. The check order is
// significant: directional regimes win over CRASH, CRASH wins over RECOVERY,
// and CHOP is the fallback.
func classify(ind domain.IndicatorSet) domain.Regime {
	switch {
	case ind.Trend > 5 && ind.RSI > 50:
		return domain.RegimeBull
	case ind.Trend < -5 && ind.RSI < 50:
		return domain.RegimeBear
	case ind.Drawdown > 20:
		return domain.RegimeCrash
	case ind.Trend > 0 && ind.Drawdown > 10:
		return domain.RegimeRecovery
	default:
		return domain.RegimeChop
	}
}
