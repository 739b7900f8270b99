package models

import "time"

// ModuleReliability is the persisted track record of one module.
type ModuleReliability struct {
	ModuleID          string    `json:"module_id"`
	WinRate           float64   `json:"win_rate"`
	AverageReturn     float64   `json:"average_return"`
	ReturnVariance    float64   `json:"return_variance"`
	SharpeLike        float64   `json:"sharpe_like"`
	MaxDrawdown       float64   `json:"max_drawdown"`
	Reliability       float64   `json:"reliability"`
	TotalObservations int       `json:"total_observations"`
	LastUpdated       time.Time `json:"last_updated"`
	Version           int64     `json:"version"`
	// RecentDecisions holds the last applied decision ids, oldest first, so a
	// redelivered outcome is not counted twice.
	RecentDecisions []string `json:"recent_decisions,omitempty"`
}

// MaxRecentDecisions bounds RecentDecisions.
const MaxRecentDecisions = 256

// Applied reports whether an outcome for decisionID was already counted.
func (r ModuleReliability) Applied(decisionID string) bool {
	if decisionID == "" {
		return false
	}
	for _, id := range r.RecentDecisions {
		if id == decisionID {
			return true
		}
	}
	return false
}

// NewModuleReliability is the record created on the first observation.
func NewModuleReliability(moduleID string) ModuleReliability {
	return ModuleReliability{
		ModuleID:    moduleID,
		WinRate:     0.5,
		Reliability: 0.5,
	}
}

// TradeOutcome is a realized result attributed to one module.
type TradeOutcome struct {
	DecisionID string    `json:"decision_id,omitempty"`
	ModuleID   string    `json:"module_id" validate:"required"`
	Success    bool      `json:"success"`
	Return     float64   `json:"return"`
	ClosedAt   time.Time `json:"closed_at"`
}
