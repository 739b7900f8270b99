package models

// Requests for the decision HTTP endpoints.

type DecisionRequest struct {
	Pair      string `query:"pair" json:"pair" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Bars      int    `query:"bars" json:"bars" default:"200" validate:"gte=20,lte=5000"`
}

type ReliabilityRequest struct {
	ModuleID string `query:"module_id" json:"module_id"`
}

type OutcomeRequest struct {
	Outcomes []TradeOutcome `json:"outcomes" validate:"required,min=1,dive"`
}
