package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/internal/services/feedback"
	pkgkafka "SignalFusion/pkg/kafka"
)

// OutcomeHandler consumes closed-trade outcomes from Kafka and feeds the reliability updater.
type OutcomeHandler struct {
	topic   string
	updater *feedback.Updater
	metrics domrepo.Metrics
}

func NewOutcomeHandler(topic string, updater *feedback.Updater, metrics domrepo.Metrics) *OutcomeHandler {
	return &OutcomeHandler{topic: topic, updater: updater, metrics: metrics}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

// Handle accepts one outcome object or an array of them.
func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var outcomes []models.TradeOutcome
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &outcomes); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode outcomes: %w", err)
		}
	} else {
		var o models.TradeOutcome
		if err := json.Unmarshal(trimmed, &o); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	if _, err := h.updater.RecordBatch(ctx, outcomes); err != nil {
		h.metrics.RecordError("consumer_outcome")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)
