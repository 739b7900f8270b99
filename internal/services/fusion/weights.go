package fusion

import (
	"math"

	"SignalFusion/internal/domain/models"
	"SignalFusion/pkg/config"
)

// BaseWeight is the flat prior weight of a module type.
func BaseWeight(cfg config.FusionConfig, t models.ModuleType) float64 {
	if t == models.ModuleMultiTimeframe {
		return cfg.MTFBaseWeight
	}
	return cfg.BaseWeight
}

// HistoricalWeight blends a module's track record into its weight. Modules without
// enough observations keep the flat base weight.
func HistoricalWeight(cfg config.FusionConfig, t models.ModuleType, rel *models.ModuleReliability) float64 {
	base := BaseWeight(cfg, t)
	if rel == nil || rel.TotalObservations < cfg.MinObservations {
		return base
	}
	sharpe := math.Max(cfg.SharpeFloor, math.Min(cfg.SharpeCap, rel.SharpeLike))
	blend := cfg.WinRateCoef*rel.WinRate + cfg.SharpeCoef*sharpe/cfg.SharpeCap + cfg.ReliabilityCoef*rel.Reliability
	return base * blend
}

// HistoricalMultiplier is HistoricalWeight relative to the default base weight, so an
// unobserved module scales its evidence by exactly 1.
func HistoricalMultiplier(cfg config.FusionConfig, t models.ModuleType, rel *models.ModuleReliability) float64 {
	return HistoricalWeight(cfg, t, rel) / cfg.BaseWeight
}

// RegimeMultiplier looks up the module x regime table; unknown entries are neutral.
func RegimeMultiplier(table map[string]map[string]float64, t models.ModuleType, r models.RegimeType) float64 {
	row, ok := table[string(t)]
	if !ok {
		return 1
	}
	m, ok := row[string(r)]
	if !ok {
		return 1
	}
	return m
}
