// Package feedback folds realized outcomes back into module reliability and
// periodically re-tunes the acceptance thresholds.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	applogger "SignalFusion/pkg/logger"
)

// ApplyOutcome returns r updated with one realized outcome.
func ApplyOutcome(r models.ModuleReliability, o models.TradeOutcome, now time.Time) models.ModuleReliability {
	n := float64(r.TotalObservations)
	success := 0.0
	if o.Success {
		success = 1
	}

	r.WinRate = (r.WinRate*n + success) / (n + 1)

	alpha := math.Min(0.1, 2/(n+1))
	delta := o.Return - r.AverageReturn
	r.AverageReturn += alpha * delta
	r.ReturnVariance = (1 - alpha) * (r.ReturnVariance + alpha*delta*delta)
	if sd := math.Sqrt(r.ReturnVariance); sd > 0 {
		r.SharpeLike = r.AverageReturn / sd
	} else {
		r.SharpeLike = 0
	}

	if o.Return < 0 {
		r.MaxDrawdown = math.Max(r.MaxDrawdown, math.Abs(o.Return))
	}

	bonus := 0.0
	if r.SharpeLike > 0 {
		bonus = 0.3
	}
	r.Reliability = math.Max(0.1, math.Min(1, 0.6*r.WinRate+0.3*bonus+0.1))
	r.TotalObservations++
	r.LastUpdated = now
	if o.DecisionID != "" {
		// fresh slice: r is a copy that may share its backing array with the stored record
		recent := r.RecentDecisions
		if len(recent) >= models.MaxRecentDecisions {
			recent = recent[len(recent)-models.MaxRecentDecisions+1:]
		}
		r.RecentDecisions = append(append(make([]string, 0, len(recent)+1), recent...), o.DecisionID)
	}
	return r
}

// Updater applies outcomes to the reliability store with compare-and-set retries.
type Updater struct {
	store      domrepo.ReliabilityStore
	metrics    domrepo.Metrics
	log        *applogger.Logger
	maxRetries int
	now        func() time.Time
}

func NewUpdater(store domrepo.ReliabilityStore, metrics domrepo.Metrics, log *applogger.Logger, maxRetries int) *Updater {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Updater{store: store, metrics: metrics, log: log, maxRetries: maxRetries, now: time.Now}
}

// Record applies one outcome. Concurrent writers on the same module never lose an update:
// a version conflict re-reads and re-applies. An outcome whose decision id was already
// applied to the module is a no-op, so retried batches and redelivered messages are safe.
func (u *Updater) Record(ctx context.Context, o models.TradeOutcome) (models.ModuleReliability, error) {
	if o.ModuleID == "" {
		return models.ModuleReliability{}, fmt.Errorf("outcome without module id")
	}
	if math.IsNaN(o.Return) || math.IsInf(o.Return, 0) {
		return models.ModuleReliability{}, fmt.Errorf("outcome for %s has non-finite return", o.ModuleID)
	}

	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		cur, err := u.store.GetReliability(ctx, o.ModuleID)
		if errors.Is(err, domrepo.ErrNotFound) {
			cur = models.NewModuleReliability(o.ModuleID)
		} else if err != nil {
			return models.ModuleReliability{}, fmt.Errorf("load reliability %s: %w", o.ModuleID, err)
		}

		if cur.Applied(o.DecisionID) {
			u.log.Debug("duplicate outcome skipped",
				applogger.String("module", o.ModuleID),
				applogger.String("decision_id", o.DecisionID),
			)
			return cur, nil
		}

		next := ApplyOutcome(cur, o, u.now())
		saved, err := u.store.SwapReliability(ctx, cur.Version, next)
		if err == nil {
			u.log.Debug("reliability updated",
				applogger.String("module", o.ModuleID),
				applogger.Float64("win_rate", saved.WinRate),
				applogger.Float64("reliability", saved.Reliability),
				applogger.Int("observations", saved.TotalObservations),
			)
			return saved, nil
		}
		if !errors.Is(err, domrepo.ErrVersionConflict) {
			return models.ModuleReliability{}, fmt.Errorf("save reliability %s: %w", o.ModuleID, err)
		}
		u.metrics.RecordStoreConflict("reliability")
	}
	return models.ModuleReliability{}, fmt.Errorf("save reliability %s: %w after %d attempts", o.ModuleID, domrepo.ErrVersionConflict, u.maxRetries)
}

// RecordBatch applies outcomes in order and stops on the first error. The records
// returned alongside an error are the ones already saved.
func (u *Updater) RecordBatch(ctx context.Context, outcomes []models.TradeOutcome) ([]models.ModuleReliability, error) {
	out := make([]models.ModuleReliability, 0, len(outcomes))
	for _, o := range outcomes {
		r, err := u.Record(ctx, o)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
