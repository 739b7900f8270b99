// Package gate decides whether a fused result is actionable.
package gate

import (
	"math"

	"SignalFusion/internal/domain/models"
	"SignalFusion/internal/services/fusion"
	"SignalFusion/pkg/config"
)

// Verdict is the gate outcome. Rejection is nil on acceptance.
type Verdict struct {
	Accepted           bool
	Forced             bool
	Rejection          *models.RejectionInfo
	NetEdge            float64
	RequiredConfluence float64
}

type Gate struct {
	cfg config.GateConfig
}

func New(cfg config.GateConfig) *Gate {
	return &Gate{cfg: cfg}
}

// NetEdge is the expected value of taking the trade in the fused direction after costs.
func NetEdge(p, expectedReturn, expectedLoss, cost float64) float64 {
	return p*expectedReturn - (1-p)*expectedLoss - cost
}

// RequiredConfluence is the stricter of the adaptive threshold and the regime floor.
func (g *Gate) RequiredConfluence(t models.AdaptiveThresholds, regime models.RegimeType) float64 {
	return math.Max(t.ConfluenceAdaptive, g.cfg.MinConsensus[string(regime)])
}

// Evaluate checks entropy, probability, edge and confluence in that order and stops
// at the first failure.
func (g *Gate) Evaluate(res fusion.Result, t models.AdaptiveThresholds, regime models.RegimeType) Verdict {
	v := Verdict{
		NetEdge:            NetEdge(res.DirectionalProbability(), g.cfg.ExpectedReturn, g.cfg.ExpectedLoss, g.cfg.TransactionCost),
		RequiredConfluence: g.RequiredConfluence(t, regime),
	}
	v.Rejection = g.check(res, t, v)
	v.Accepted = v.Rejection == nil
	if !v.Accepted && g.cfg.ForceAccept && res.Direction != models.DirectionHold {
		v.Accepted = true
		v.Forced = true
	}
	return v
}

func (g *Gate) check(res fusion.Result, t models.AdaptiveThresholds, v Verdict) *models.RejectionInfo {
	if res.Entropy > t.EntropyCurrent || res.Direction == models.DirectionHold {
		return &models.RejectionInfo{
			Category:          models.RejectHighEntropy,
			Variant:           models.VariantEntropy,
			RequiredThreshold: t.EntropyCurrent,
			ActualValue:       res.Entropy,
		}
	}
	if res.Direction == models.DirectionBuy && res.Probability < t.ProbabilityBuyFloor {
		return &models.RejectionInfo{
			Category:          models.RejectInsufficientConfluence,
			Variant:           models.VariantProbability,
			RequiredThreshold: t.ProbabilityBuyFloor,
			ActualValue:       res.Probability,
		}
	}
	if res.Direction == models.DirectionSell && res.Probability > t.ProbabilitySellCeiling {
		return &models.RejectionInfo{
			Category:          models.RejectInsufficientConfluence,
			Variant:           models.VariantProbability,
			RequiredThreshold: t.ProbabilitySellCeiling,
			ActualValue:       res.Probability,
		}
	}
	if v.NetEdge <= t.EdgeAdaptive {
		return &models.RejectionInfo{
			Category:          models.RejectPoorEdge,
			Variant:           models.VariantEdge,
			RequiredThreshold: t.EdgeAdaptive,
			ActualValue:       v.NetEdge,
		}
	}
	if res.ConfluenceScore < v.RequiredConfluence {
		return &models.RejectionInfo{
			Category:          models.RejectInsufficientConfluence,
			Variant:           models.VariantConfluence,
			RequiredThreshold: v.RequiredConfluence,
			ActualValue:       res.ConfluenceScore,
		}
	}
	return nil
}
