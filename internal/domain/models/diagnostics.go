package models

import "time"

type ProducerStatus string

const (
	StatusActive           ProducerStatus = "active"
	StatusInactive         ProducerStatus = "inactive"
	StatusError            ProducerStatus = "error"
	StatusInsufficientData ProducerStatus = "insufficient_data"
)

// ProducerReport is what one producer did during a cycle.
type ProducerReport struct {
	ModuleID    string         `json:"module_id"`
	ModuleType  ModuleType     `json:"module_type"`
	Status      ProducerStatus `json:"status"`
	SignalCount int            `json:"signal_count"`
	Quality     float64        `json:"quality"`
	Latency     time.Duration  `json:"latency"`
	Error       string         `json:"error,omitempty"`
	Fallback    bool           `json:"fallback,omitempty"`
}

type Explanation struct {
	Summary     string   `json:"summary"`
	Cause       string   `json:"cause"`
	Threshold   float64  `json:"threshold"`
	Observed    float64  `json:"observed"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type Diagnostics struct {
	Producers          []ProducerReport `json:"producers"`
	OverallDataQuality float64          `json:"overall_data_quality"`
	FactorDiversity    float64          `json:"factor_diversity"`
	SignalConsistency  float64          `json:"signal_consistency"`
	ReliabilityIndex   float64          `json:"reliability_index"`
	DroppedSignals     int              `json:"dropped_signals"`
	Degraded           bool             `json:"degraded"`
	Explanation        Explanation      `json:"explanation"`
}
