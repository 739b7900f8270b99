// Package diagnostics aggregates per-producer status and explains decisions.
package diagnostics

import (
	"SignalFusion/internal/domain/models"
)

// Summarize builds the cycle diagnostics from producer reports and the raw signals
// they returned (before fusion filtering).
func Summarize(reports []models.ProducerReport, raw []models.StandardSignal, dropped int) *models.Diagnostics {
	d := &models.Diagnostics{Producers: reports, DroppedSignals: dropped}

	if len(reports) > 0 {
		var quality float64
		active := 0
		for _, r := range reports {
			if r.Status == models.StatusActive {
				active++
				quality += r.Quality
			}
		}
		d.OverallDataQuality = quality / float64(len(reports))
		d.FactorDiversity = float64(active) / float64(len(reports))
	}

	var buy, sell int
	for _, s := range raw {
		switch s.Direction {
		case models.DirectionBuy:
			buy++
		case models.DirectionSell:
			sell++
		}
	}
	if buy+sell > 0 {
		d.SignalConsistency = float64(max(buy, sell)) / float64(buy+sell)
	}

	d.ReliabilityIndex = 0.4*d.OverallDataQuality + 0.3*d.FactorDiversity + 0.3*d.SignalConsistency
	return d
}

// ModuleQuality is the mean confidence of the signals a producer returned.
func ModuleQuality(status models.ProducerStatus, signals []models.StandardSignal) float64 {
	if status != models.StatusActive || len(signals) == 0 {
		return 0
	}
	var s float64
	for _, sig := range signals {
		s += sig.Confidence
	}
	return s / float64(len(signals))
}
