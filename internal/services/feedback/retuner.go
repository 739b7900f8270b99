package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/pkg/config"
	applogger "SignalFusion/pkg/logger"
)

const retuneLockKey = "retune"

type Adjustment string

const (
	AdjustNone    Adjustment = "none"
	AdjustRelax   Adjustment = "relax"
	AdjustTighten Adjustment = "tighten"
)

// SeedThresholds converts configured defaults into thresholds.
func SeedThresholds(c config.ThresholdsConfig) models.AdaptiveThresholds {
	return models.AdaptiveThresholds{
		EntropyMin:             c.EntropyMin,
		EntropyMax:             c.EntropyMax,
		EntropyCurrent:         c.EntropyCurrent,
		ProbabilityBuyFloor:    c.ProbabilityBuyFloor,
		ProbabilitySellCeiling: c.ProbabilitySellCeiling,
		ConfluenceMin:          c.ConfluenceMin,
		ConfluenceMax:          c.ConfluenceMax,
		ConfluenceAdaptive:     c.ConfluenceAdaptive,
		EdgeMin:                c.EdgeMin,
		EdgeMax:                c.EdgeMax,
		EdgeAdaptive:           c.EdgeAdaptive,
	}.Clamp()
}

// Retune moves the thresholds one bounded step given the trailing mean signal quality.
// Low quality relaxes (more entropy tolerated, less confluence required), high quality tightens.
func Retune(t models.AdaptiveThresholds, meanQuality float64, cfg config.FeedbackConfig) (models.AdaptiveThresholds, Adjustment) {
	var sign float64
	adj := AdjustNone
	switch {
	case meanQuality < cfg.LowQuality:
		sign, adj = 1, AdjustRelax
	case meanQuality > cfg.HighQuality:
		sign, adj = -1, AdjustTighten
	default:
		return t.Clamp(), AdjustNone
	}
	t.EntropyCurrent += sign * cfg.EntropyStep
	t.ConfluenceAdaptive -= sign * cfg.ConfluenceStep
	t.EdgeAdaptive -= sign * cfg.EdgeStep
	return t.Clamp(), adj
}

// QualityWindow keeps the trailing signal-quality samples.
type QualityWindow struct {
	mu   sync.Mutex
	buf  []float64
	next int
	full bool
}

func NewQualityWindow(size int) *QualityWindow {
	if size < 1 {
		size = 1
	}
	return &QualityWindow{buf: make([]float64, size)}
}

func (w *QualityWindow) Add(q float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.next] = q
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

// Mean returns the trailing mean and the number of samples it covers.
func (w *QualityWindow) Mean() (float64, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.next
	if w.full {
		n = len(w.buf)
	}
	if n == 0 {
		return 0, 0
	}
	var s float64
	for i := 0; i < n; i++ {
		s += w.buf[i]
	}
	return s / float64(n), n
}

// RetuneResult reports what one retune pass did.
type RetuneResult struct {
	Adjustment  Adjustment
	MeanQuality float64
	Samples     int
	Thresholds  models.AdaptiveThresholds
	Skipped     string
}

// Retuner periodically applies Retune to the stored thresholds.
type Retuner struct {
	store   domrepo.ThresholdStore
	locker  domrepo.Locker
	window  *QualityWindow
	engine  *config.EngineSource
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewRetuner(store domrepo.ThresholdStore, locker domrepo.Locker, window *QualityWindow, engine *config.EngineSource, metrics domrepo.Metrics, log *applogger.Logger) *Retuner {
	return &Retuner{store: store, locker: locker, window: window, engine: engine, metrics: metrics, log: log}
}

// RunOnce performs a single retune pass under the retune lock.
func (r *Retuner) RunOnce(ctx context.Context) (RetuneResult, error) {
	eng, err := r.engine.Load()
	if err != nil {
		r.log.Warn("engine config reload failed, using last good", applogger.Error(err))
	}
	cfg := eng.Feedback

	release, ok, err := r.locker.TryLock(ctx, retuneLockKey, cfg.LockTTL)
	if err != nil {
		return RetuneResult{}, fmt.Errorf("retune lock: %w", err)
	}
	if !ok {
		return RetuneResult{Adjustment: AdjustNone, Skipped: "another retuner holds the lock"}, nil
	}
	defer release()

	mean, n := r.window.Mean()
	if n < cfg.MinSamples {
		return RetuneResult{Adjustment: AdjustNone, MeanQuality: mean, Samples: n, Skipped: "not enough samples"}, nil
	}

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		cur, err := r.store.GetThresholds(ctx)
		if errors.Is(err, domrepo.ErrNotFound) {
			cur = SeedThresholds(eng.Thresholds)
		} else if err != nil {
			return RetuneResult{}, fmt.Errorf("load thresholds: %w", err)
		}

		next, adj := Retune(cur, mean, cfg)
		res := RetuneResult{Adjustment: adj, MeanQuality: mean, Samples: n, Thresholds: next}
		if adj == AdjustNone {
			res.Thresholds = cur
			return res, nil
		}

		saved, err := r.store.SwapThresholds(ctx, cur.Version, next)
		if err == nil {
			res.Thresholds = saved
			r.metrics.RecordThresholds(saved.EntropyCurrent, saved.ConfluenceAdaptive, saved.EdgeAdaptive)
			r.log.Info("thresholds retuned",
				applogger.String("adjustment", string(adj)),
				applogger.Float64("mean_quality", mean),
				applogger.Int("samples", n),
				applogger.Float64("entropy_current", saved.EntropyCurrent),
				applogger.Float64("confluence_adaptive", saved.ConfluenceAdaptive),
				applogger.Float64("edge_adaptive", saved.EdgeAdaptive),
				applogger.Int64("version", saved.Version),
			)
			return res, nil
		}
		if !errors.Is(err, domrepo.ErrVersionConflict) {
			return RetuneResult{}, fmt.Errorf("save thresholds: %w", err)
		}
		r.metrics.RecordStoreConflict("thresholds")
	}
	return RetuneResult{}, fmt.Errorf("save thresholds: %w", domrepo.ErrVersionConflict)
}

// Run retunes on the configured cadence until ctx is done. The interval is re-read
// from the engine config after every pass.
func (r *Retuner) Run(ctx context.Context) {
	for {
		eng, _ := r.engine.Load()
		interval := eng.Feedback.RetuneInterval
		if interval <= 0 {
			interval = time.Hour
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if _, err := r.RunOnce(ctx); err != nil {
			r.metrics.RecordError("retune")
			r.log.Error("retune failed", applogger.Error(err))
		}
	}
}
