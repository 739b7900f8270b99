package models

import (
	"math"
	"time"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionBuy, DirectionSell, DirectionHold:
		return true
	}
	return false
}

// ModuleType groups producers for correlation and regime lookups.
type ModuleType string

const (
	ModuleTechnical      ModuleType = "technical"
	ModuleFundamental    ModuleType = "fundamental"
	ModuleSentiment      ModuleType = "sentiment"
	ModuleMultiTimeframe ModuleType = "multi_timeframe"
	ModulePattern        ModuleType = "pattern"
	ModuleStrategy       ModuleType = "strategy"
	ModuleIntermarket    ModuleType = "intermarket"
	ModuleNews           ModuleType = "news"
	ModuleVolume         ModuleType = "volume"
	ModuleFibonacci      ModuleType = "fibonacci"
)

// AllModuleTypes lists the known module types in a fixed order.
var AllModuleTypes = []ModuleType{
	ModuleTechnical, ModuleFundamental, ModuleSentiment, ModuleMultiTimeframe, ModulePattern,
	ModuleStrategy, ModuleIntermarket, ModuleNews, ModuleVolume, ModuleFibonacci,
}

// StandardSignal is one module's opinion for one analysis cycle.
// Probability is the probability of an up move.
type StandardSignal struct {
	ModuleID        string             `json:"module_id"`
	ModuleType      ModuleType         `json:"module_type"`
	Pair            string             `json:"pair"`
	Timeframe       string             `json:"timeframe"`
	Direction       Direction          `json:"direction"`
	Probability     float64            `json:"probability"`
	Confidence      float64            `json:"confidence"`
	Strength        float64            `json:"strength"`
	Entry           float64            `json:"entry"`
	StopLoss        float64            `json:"stop_loss"`
	TakeProfit      float64            `json:"take_profit"`
	RiskRewardRatio float64            `json:"risk_reward_ratio"`
	Factors         []string           `json:"factors,omitempty"`
	ValidityMinutes int                `json:"validity_minutes"`
	Timestamp       time.Time          `json:"timestamp"`
	Extras          map[string]float64 `json:"extras,omitempty"`
	Fallback        bool               `json:"fallback,omitempty"`
}

// Weight is the fusion weight of the signal.
func (s StandardSignal) Weight() float64 {
	return s.Strength * s.Confidence
}

// Usable reports whether the signal can enter fusion.
func (s StandardSignal) Usable() bool {
	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return false
	}
	w := s.Weight()
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 || s.Strength <= 0 {
		return false
	}
	p := s.Probability
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0 && p <= 1
}

// Expired reports whether the validity window has passed at now.
func (s StandardSignal) Expired(now time.Time) bool {
	if s.ValidityMinutes <= 0 || s.Timestamp.IsZero() {
		return false
	}
	return now.After(s.Timestamp.Add(time.Duration(s.ValidityMinutes) * time.Minute))
}
