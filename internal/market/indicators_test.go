package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

func candle(index int, close, high, low, trueRange float64) domain.Candle {
	return domain.Candle{
		Date:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, index),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		TrueRange: trueRange,
		Index:     index,
	}
}

func TestIndicatorsOutOfRange(t *testing.T) {
	candles := []domain.Candle{candle(0, 100, 101, 99, 2)}

	assert.Equal(t, domain.NeutralIndicators(), Indicators(candles, -1))
	assert.Equal(t, domain.NeutralIndicators(), Indicators(candles, 1))
	assert.Equal(t, domain.NeutralIndicators(), Indicators(nil, 0))
}

func TestRSIFirstCandleIsNeutral(t *testing.T) {
	candles := []domain.Candle{candle(0, 100, 101, 99, 2)}
	assert.InDelta(t, 50, rsi(candles, 0), 1e-9)
}

func TestRSINoLossesSaturates(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 100, 101, 99, 2),
		candle(1, 105, 106, 104, 2),
		candle(2, 110, 111, 109, 2),
	}
	// avgLoss 0 pins RS at 100: RSI = 100 - 100/101.
	assert.InDelta(t, 100-100.0/101.0, rsi(candles, 2), 1e-9)
}

func TestRSIMixedMoves(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 100, 101, 99, 2),
		candle(1, 110, 111, 109, 2),
		candle(2, 105, 106, 104, 2),
	}
	// avgGain 5, avgLoss 2.5, RS 2, RSI 66.67.
	assert.InDelta(t, 100-100.0/3.0, rsi(candles, 2), 1e-9)
}

func TestATRIsMeanTrueRange(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 100, 102, 98, 4),
		candle(1, 101, 103, 99, 2),
		candle(2, 102, 104, 100, 3),
	}
	assert.InDelta(t, 3, atr(candles, 2), 1e-9)
	assert.InDelta(t, 4, atr(candles, 0), 1e-9)
}

func TestTrendFromMovingAverage(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 100, 101, 99, 2),
		candle(1, 110, 111, 109, 2),
		candle(2, 105, 106, 104, 2),
	}
	// MA over all three is 105; the close sits exactly on it.
	assert.InDelta(t, 0, trend(candles, 2), 1e-9)

	// A single candle is always on its own average.
	assert.InDelta(t, 0, trend(candles, 0), 1e-9)
}

func TestDrawdownFromRunningHigh(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 118, 120, 116, 4),
		candle(1, 112, 115, 110, 5),
		candle(2, 105, 110, 103, 7),
	}
	// Running high is 120; close 105 is a 12.5% decline.
	assert.InDelta(t, 12.5, drawdownFromHigh(candles, 2), 1e-9)
	assert.InDelta(t, (120.0-118.0)/120.0*100, drawdownFromHigh(candles, 0), 1e-9)
}

func TestClassifyRegimeOrder(t *testing.T) {
	tests := []struct {
		name string
		ind  domain.IndicatorSet
		want domain.Regime
	}{
		{"bull", domain.IndicatorSet{Trend: 6, RSI: 60}, domain.RegimeBull},
		{"bear", domain.IndicatorSet{Trend: -6, RSI: 40}, domain.RegimeBear},
		{"crash when bear disagrees with rsi", domain.IndicatorSet{Trend: -6, RSI: 60, Drawdown: 25}, domain.RegimeCrash},
		{"crash when bull disagrees with rsi", domain.IndicatorSet{Trend: 6, RSI: 40, Drawdown: 25}, domain.RegimeCrash},
		{"recovery", domain.IndicatorSet{Trend: 1, RSI: 50, Drawdown: 15}, domain.RegimeRecovery},
		{"chop flat", domain.IndicatorSet{Trend: 0, RSI: 50}, domain.RegimeChop},
		{"chop shallow pullback", domain.IndicatorSet{Trend: 2, RSI: 50, Drawdown: 5}, domain.RegimeChop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.ind))
		})
	}
}

func TestIndicatorsAssemblesRegime(t *testing.T) {
	candles := []domain.Candle{
		candle(0, 118, 120, 116, 4),
		candle(1, 110, 114, 108, 6),
		candle(2, 90, 105, 88, 17),
	}
	ind := Indicators(candles, 2)

	// Close 90 against a running high of 120 is a 25% drawdown; the trend is
	// negative but RSI sits below 50, so BEAR wins over CRASH.
	assert.InDelta(t, 25, ind.Drawdown, 1e-9)
	assert.Less(t, ind.Trend, -5.0)
	assert.Less(t, ind.RSI, 50.0)
	assert.Equal(t, domain.RegimeBear, ind.Regime)
}
