// Package regime classifies a candle window into one of eight market regimes.
package regime

import (
	"math"

	"SignalFusion/internal/domain/models"
	"SignalFusion/pkg/config"
)

// Detector is a pure function of its config and the window it is given.
type Detector struct {
	cfg config.RegimeConfig
}

func NewDetector(cfg config.RegimeConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Features are the scalars the decision table works on.
type Features struct {
	Momentum      float64 // percent
	Volatility    float64 // stdev of simple returns
	TrendStrength float64 // percent move implied by the regression line
	BreakoutUp    bool
	BreakoutDown  bool
}

// Detect classifies candles, ordered oldest first.
func (d *Detector) Detect(candles []models.Candle) models.RegimeState {
	if len(candles) < d.cfg.MinBars || len(candles) < 2*d.cfg.Lookback {
		return models.RegimeState{Type: models.RegimeRangingTight, Strength: 0.5, Confidence: 0.5}
	}
	f := d.Features(candles)
	typ, conf := d.classify(f)
	return models.RegimeState{
		Type:          typ,
		Strength:      clamp(math.Abs(f.TrendStrength)/2+math.Abs(f.Momentum)/4, 0, 1),
		Confidence:    conf,
		Volatility:    f.Volatility,
		Momentum:      f.Momentum,
		TrendStrength: f.TrendStrength,
	}
}

func (d *Detector) classify(f Features) (models.RegimeType, float64) {
	c := d.cfg
	switch {
	case f.Volatility > c.ShockVolatility && math.Abs(f.Momentum) > c.ShockMomentum:
		if f.Momentum > 0 {
			return models.RegimeShockUp, 0.8
		}
		return models.RegimeShockDown, 0.8
	case (f.BreakoutUp || f.BreakoutDown) && math.Abs(f.Momentum) > c.BreakoutMomentum:
		return models.RegimeBreakout, 0.7
	case math.Abs(f.TrendStrength) > c.TrendStrength && f.Volatility < c.TrendVolatility:
		if f.TrendStrength > 0 {
			return models.RegimeTrendingBullish, 0.75
		}
		return models.RegimeTrendingBearish, 0.75
	case math.Abs(f.TrendStrength) < c.RangeTrend && f.Volatility < c.RangeVolatility:
		return models.RegimeRangingTight, 0.7
	case math.Abs(f.TrendStrength) < c.RangeTrend:
		return models.RegimeRangingVolatile, 0.65
	default:
		return models.RegimeConsolidation, 0.6
	}
}

// Features computes momentum, volatility, trend strength and breakout flags.
func (d *Detector) Features(candles []models.Candle) Features {
	closes := models.Closes(candles)
	n := len(closes)
	lb := d.cfg.Lookback

	recent := mean(closes[n-lb:])
	prior := mean(closes[n-2*lb : n-lb])
	var f Features
	if prior != 0 {
		f.Momentum = (recent - prior) / prior * 100
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] != 0 {
			returns = append(returns, closes[i]/closes[i-1]-1)
		}
	}
	f.Volatility = stdev(returns)

	if avg := mean(closes); avg != 0 {
		f.TrendStrength = slope(closes) * float64(n-1) / avg * 100
	}

	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range candles[:n-1] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	last := closes[n-1]
	f.BreakoutUp = last > hi
	f.BreakoutDown = last < lo
	return f
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// slope of the least-squares line through (i, ys[i]).
func slope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	xm := (n - 1) / 2
	ym := mean(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xm
		num += dx * (y - ym)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
