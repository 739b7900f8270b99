package models

import (
	"math"
	"time"
)

// AdaptiveThresholds are the acceptance limits re-tuned from outcomes.
type AdaptiveThresholds struct {
	EntropyMin             float64   `json:"entropy_min" yaml:"entropy_min"`
	EntropyMax             float64   `json:"entropy_max" yaml:"entropy_max"`
	EntropyCurrent         float64   `json:"entropy_current" yaml:"entropy_current"`
	ProbabilityBuyFloor    float64   `json:"probability_buy_floor" yaml:"probability_buy_floor"`
	ProbabilitySellCeiling float64   `json:"probability_sell_ceiling" yaml:"probability_sell_ceiling"`
	ConfluenceMin          float64   `json:"confluence_min" yaml:"confluence_min"`
	ConfluenceMax          float64   `json:"confluence_max" yaml:"confluence_max"`
	ConfluenceAdaptive     float64   `json:"confluence_adaptive" yaml:"confluence_adaptive"`
	EdgeMin                float64   `json:"edge_min" yaml:"edge_min"`
	EdgeMax                float64   `json:"edge_max" yaml:"edge_max"`
	EdgeAdaptive           float64   `json:"edge_adaptive" yaml:"edge_adaptive"`
	Version                int64     `json:"version" yaml:"-"`
	UpdatedAt              time.Time `json:"updated_at" yaml:"-"`
}

func DefaultThresholds() AdaptiveThresholds {
	return AdaptiveThresholds{
		EntropyMin:             0.5,
		EntropyMax:             0.9,
		EntropyCurrent:         0.75,
		ProbabilityBuyFloor:    0.55,
		ProbabilitySellCeiling: 0.45,
		ConfluenceMin:          0.40,
		ConfluenceMax:          0.80,
		ConfluenceAdaptive:     0.55,
		EdgeMin:                0.00005,
		EdgeMax:                0.005,
		EdgeAdaptive:           0.00005,
	}
}

// Clamp returns a copy with every adaptive value inside its bounds.
func (t AdaptiveThresholds) Clamp() AdaptiveThresholds {
	t.EntropyMin, t.EntropyMax = ordered(t.EntropyMin, t.EntropyMax)
	t.ConfluenceMin, t.ConfluenceMax = ordered(t.ConfluenceMin, t.ConfluenceMax)
	t.EdgeMin, t.EdgeMax = ordered(t.EdgeMin, t.EdgeMax)

	t.EntropyCurrent = clampTo(t.EntropyCurrent, t.EntropyMin, t.EntropyMax)
	t.ConfluenceAdaptive = clampTo(t.ConfluenceAdaptive, t.ConfluenceMin, t.ConfluenceMax)
	t.EdgeAdaptive = clampTo(t.EdgeAdaptive, t.EdgeMin, t.EdgeMax)
	t.ProbabilityBuyFloor = clampTo(t.ProbabilityBuyFloor, 0.5, 1)
	t.ProbabilitySellCeiling = clampTo(t.ProbabilitySellCeiling, 0, 0.5)
	return t
}

func ordered(lo, hi float64) (float64, float64) {
	if lo > hi {
		return hi, lo
	}
	return lo, hi
}

func clampTo(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
