package models

import "time"

type RejectionCategory string

const (
	RejectHighEntropy            RejectionCategory = "high_entropy"
	RejectInsufficientConfluence RejectionCategory = "insufficient_confluence"
	RejectPoorEdge               RejectionCategory = "poor_edge"
)

// RejectionVariant tells apart the two insufficient_confluence checks.
type RejectionVariant string

const (
	VariantEntropy     RejectionVariant = "entropy"
	VariantProbability RejectionVariant = "probability"
	VariantEdge        RejectionVariant = "edge"
	VariantConfluence  RejectionVariant = "confluence"
)

type RejectionInfo struct {
	Category          RejectionCategory `json:"category"`
	Variant           RejectionVariant  `json:"variant"`
	RequiredThreshold float64           `json:"required_threshold"`
	ActualValue       float64           `json:"actual_value"`
}

type MTFAlignment string

const (
	AlignmentNone        MTFAlignment = "none"
	AlignmentPerfect     MTFAlignment = "perfect"
	AlignmentStrong      MTFAlignment = "strong"
	AlignmentMixed       MTFAlignment = "mixed"
	AlignmentConflicting MTFAlignment = "conflicting"
)

type QualityMetrics struct {
	DiversityIndex float64      `json:"diversity_index"`
	ConsensusLevel float64      `json:"consensus_level"`
	SignalQuality  float64      `json:"signal_quality"`
	MTFAlignment   MTFAlignment `json:"mtf_alignment"`
}

// ModuleContribution is one module's share of the fused evidence.
type ModuleContribution struct {
	ModuleType       ModuleType `json:"module_type"`
	Signals          int        `json:"signals"`
	LogOdds          float64    `json:"log_odds"`
	Weight           float64    `json:"weight"`
	HistoricalWeight float64    `json:"historical_weight"`
	RegimeMultiplier float64    `json:"regime_multiplier"`
	Share            float64    `json:"share"`
}

// FusedDecision is the outcome of one analysis cycle.
type FusedDecision struct {
	ID                  string                        `json:"id"`
	Pair                string                        `json:"pair"`
	Timeframe           string                        `json:"timeframe"`
	Direction           Direction                     `json:"direction"`
	FusedProbability    float64                       `json:"fused_probability"`
	Entropy             float64                       `json:"entropy"`
	Confidence          float64                       `json:"confidence"`
	Strength            float64                       `json:"strength"`
	Entry               float64                       `json:"entry"`
	StopLoss            float64                       `json:"stop_loss"`
	TakeProfit          float64                       `json:"take_profit"`
	RiskRewardRatio     float64                       `json:"risk_reward_ratio"`
	NetEdge             float64                       `json:"net_edge"`
	ConfluenceScore     float64                       `json:"confluence_score"`
	KellyFraction       float64                       `json:"kelly_fraction"`
	PositionSizePct     float64                       `json:"position_size_pct"`
	ModuleContributions map[string]ModuleContribution `json:"module_contributions"`
	QualityMetrics      QualityMetrics                `json:"quality_metrics"`
	Regime              RegimeState                   `json:"regime"`
	Rejection           *RejectionInfo                `json:"rejection,omitempty"`
	Reasoning           string                        `json:"reasoning"`
	Warnings            []string                      `json:"warnings"`
	Diagnostics         *Diagnostics                  `json:"diagnostics,omitempty"`
	CreatedAt           time.Time                     `json:"created_at"`
}

func (d FusedDecision) Accepted() bool {
	return d.Rejection == nil && d.Direction != DirectionHold
}

// AuditRecord is the flat per-cycle record kept for offline analysis.
type AuditRecord struct {
	DecisionID       string    `json:"decision_id"`
	Pair             string    `json:"pair"`
	Timeframe        string    `json:"timeframe"`
	Outcome          string    `json:"outcome"`
	Direction        Direction `json:"direction"`
	FactorCount      int       `json:"factor_count"`
	FusedProbability float64   `json:"fused_probability"`
	Entropy          float64   `json:"entropy"`
	ConfluenceScore  float64   `json:"confluence_score"`
	NetEdge          float64   `json:"net_edge"`
	SignalQuality    float64   `json:"signal_quality"`
	PositionSizePct  float64   `json:"position_size_pct"`
	Regime           string    `json:"regime"`
	CreatedAt        time.Time `json:"created_at"`
}

const OutcomeAccepted = "accepted"

// NewAuditRecord flattens a decision.
func NewAuditRecord(d FusedDecision, factorCount int) AuditRecord {
	outcome := OutcomeAccepted
	if d.Rejection != nil {
		outcome = string(d.Rejection.Category)
	}
	return AuditRecord{
		DecisionID:       d.ID,
		Pair:             d.Pair,
		Timeframe:        d.Timeframe,
		Outcome:          outcome,
		Direction:        d.Direction,
		FactorCount:      factorCount,
		FusedProbability: d.FusedProbability,
		Entropy:          d.Entropy,
		ConfluenceScore:  d.ConfluenceScore,
		NetEdge:          d.NetEdge,
		SignalQuality:    d.QualityMetrics.SignalQuality,
		PositionSizePct:  d.PositionSizePct,
		Regime:           string(d.Regime.Type),
		CreatedAt:        d.CreatedAt,
	}
}
