package repository

import (
	"context"
	"errors"
	"time"

	"SignalFusion/internal/domain/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// FeatureStore provides read-only access to candles.
type FeatureStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// ThresholdStore persists the adaptive thresholds. Writes are compare-and-set
// on Version: the caller passes the version it read, the store bumps it.
type ThresholdStore interface {
	GetThresholds(ctx context.Context) (models.AdaptiveThresholds, error)
	SwapThresholds(ctx context.Context, expectedVersion int64, t models.AdaptiveThresholds) (models.AdaptiveThresholds, error)
}

// ReliabilityStore persists per-module reliability with the same CAS contract.
type ReliabilityStore interface {
	GetReliability(ctx context.Context, moduleID string) (models.ModuleReliability, error)
	ListReliability(ctx context.Context) (map[string]models.ModuleReliability, error)
	SwapReliability(ctx context.Context, expectedVersion int64, r models.ModuleReliability) (models.ModuleReliability, error)
}

type StateStore interface {
	ThresholdStore
	ReliabilityStore
	Close() error
}

// Locker hands out a short exclusive lease, used so one retuner runs at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// AuditSink stores one record per cycle.
type AuditSink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
	Close() error
}

// DecisionPublisher fans finished decisions out to downstream consumers.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, d models.FusedDecision) error
}

type Metrics interface {
	RecordDecision(pair, direction, outcome string)
	RecordProducer(moduleID, status string, seconds float64)
	RecordDroppedSignals(n int)
	RecordStoreConflict(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordThresholds(entropy, confluence, edge float64)
}
