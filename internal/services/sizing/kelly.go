// Package sizing turns an accepted probability into a bounded position fraction.
package sizing

import (
	"math"

	"SignalFusion/pkg/config"
)

type Kelly struct {
	cfg config.SizingConfig
}

func NewKelly(cfg config.SizingConfig) *Kelly {
	return &Kelly{cfg: cfg}
}

// FullKelly is (p·b - (1-p)) / b, unbounded.
func FullKelly(p, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return (p*b - (1 - p)) / b
}

// Size returns the scaled and clamped fraction and its percentage. A non-positive b
// falls back to the configured default reward/risk.
func (k *Kelly) Size(p, b float64) (fraction, pct float64) {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		b = k.cfg.DefaultRewardRisk
	}
	f := FullKelly(p, b) * k.cfg.KellyFraction
	if math.IsNaN(f) {
		f = 0
	}
	f = math.Max(0, math.Min(k.cfg.KellyCeiling, f))
	return f, f * 100
}
