package service

import (
	"context"
	"errors"

	"SignalFusion/internal/domain/models"
)

// ErrInsufficientData is returned by producers that cannot work with the window they got.
var ErrInsufficientData = errors.New("insufficient data")

// Producer is an opaque module that turns candles into signals.
type Producer interface {
	ID() string
	Type() models.ModuleType
	Analyze(ctx context.Context, candles []models.Candle, pair, timeframe string) ([]models.StandardSignal, error)
}
