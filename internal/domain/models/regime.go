package models

type RegimeType string

const (
	RegimeTrendingBullish RegimeType = "trending_bullish"
	RegimeTrendingBearish RegimeType = "trending_bearish"
	RegimeRangingTight    RegimeType = "ranging_tight"
	RegimeRangingVolatile RegimeType = "ranging_volatile"
	RegimeShockUp         RegimeType = "shock_up"
	RegimeShockDown       RegimeType = "shock_down"
	RegimeBreakout        RegimeType = "breakout"
	RegimeConsolidation   RegimeType = "consolidation"
)

var AllRegimes = []RegimeType{
	RegimeTrendingBullish, RegimeTrendingBearish, RegimeRangingTight, RegimeRangingVolatile,
	RegimeShockUp, RegimeShockDown, RegimeBreakout, RegimeConsolidation,
}

// RegimeState is the per-cycle market classification.
type RegimeState struct {
	Type          RegimeType `json:"type"`
	Strength      float64    `json:"strength"`
	Confidence    float64    `json:"confidence"`
	Volatility    float64    `json:"volatility"`
	Momentum      float64    `json:"momentum"`
	TrendStrength float64    `json:"trend_strength"`
}

// Bias is the direction implied by the regime, hold when it has none.
func (r RegimeState) Bias() Direction {
	switch r.Type {
	case RegimeTrendingBullish, RegimeShockUp:
		return DirectionBuy
	case RegimeTrendingBearish, RegimeShockDown:
		return DirectionSell
	case RegimeBreakout:
		if r.Momentum > 0 {
			return DirectionBuy
		}
		if r.Momentum < 0 {
			return DirectionSell
		}
	}
	return DirectionHold
}
