package domain

// Regime classifies the market condition at a given candle.
type Regime string

const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeCrash    Regime = "CRASH"
	RegimeRecovery Regime = "RECOVERY"
	RegimeChop     Regime = "CHOP"
)

// IndicatorSet is the derived market context at one candle. The ledger uses
// it for hedge beta context; the rendering collaborator consumes it directly.
type IndicatorSet struct {
	RSI        float64 `json:"rsi"`
	ATR        float64 `json:"atr"`
	Volatility float64 `json:"volatility"`
	Trend      float64 `json:"trend"`    // percent distance from MA20
	Drawdown   float64 `json:"drawdown"` // percent decline from the running high
	Regime     Regime  `json:"regime"`
}

// NeutralIndicators is the defaults returned for an out-of-range index.
func NeutralIndicators() IndicatorSet {
	return IndicatorSet{RSI: 50, Regime: RegimeChop}
}
