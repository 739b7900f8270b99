package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/internal/services/diagnostics"
	"SignalFusion/internal/services/feedback"
	"SignalFusion/internal/services/fusion"
	"SignalFusion/internal/services/gate"
	"SignalFusion/internal/services/producers"
	"SignalFusion/internal/services/regime"
	"SignalFusion/internal/services/sizing"
	"SignalFusion/pkg/config"
	applogger "SignalFusion/pkg/logger"
)

const systemFallbackWarning = "system fallback"

// DecisionEngine runs one analysis cycle per call: regime, producers, fusion,
// gate, sizing and diagnostics, then hands the decision to audit and publishers.
type DecisionEngine struct {
	source      *config.EngineSource
	features    domrepo.FeatureStore
	runner      *producers.Runner
	thresholds  domrepo.ThresholdStore
	reliability domrepo.ReliabilityStore
	window      *feedback.QualityWindow
	audit       domrepo.AuditSink
	publishers  []domrepo.DecisionPublisher
	metrics     domrepo.Metrics
	log         *applogger.Logger

	now   func() time.Time
	newID func() string

	mu              sync.RWMutex
	lastThresholds  *models.AdaptiveThresholds
	lastReliability map[string]models.ModuleReliability
	latest          map[string]models.FusedDecision // by pair
}

// EngineDeps groups the collaborators of a DecisionEngine. Audit and Publishers may be empty.
type EngineDeps struct {
	Source      *config.EngineSource
	Features    domrepo.FeatureStore
	Runner      *producers.Runner
	Thresholds  domrepo.ThresholdStore
	Reliability domrepo.ReliabilityStore
	Window      *feedback.QualityWindow
	Audit       domrepo.AuditSink
	Publishers  []domrepo.DecisionPublisher
	Metrics     domrepo.Metrics
	Log         *applogger.Logger
}

func NewDecisionEngine(d EngineDeps) *DecisionEngine {
	return &DecisionEngine{
		source:      d.Source,
		features:    d.Features,
		runner:      d.Runner,
		thresholds:  d.Thresholds,
		reliability: d.Reliability,
		window:      d.Window,
		audit:       d.Audit,
		publishers:  d.Publishers,
		metrics:     d.Metrics,
		log:         d.Log,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		latest:      map[string]models.FusedDecision{},
	}
}

// Decide loads the latest bars for pair and runs a cycle on them.
func (e *DecisionEngine) Decide(ctx context.Context, pair, timeframe string, bars int) (models.FusedDecision, error) {
	tf := domrepo.NormalizeTimeframe(timeframe)
	candles, err := e.features.GetLatestNCandles(ctx, pair, bars, tf)
	if err != nil {
		e.metrics.RecordError("feature_store")
		return models.FusedDecision{}, fmt.Errorf("load candles %s %s: %w", pair, tf, err)
	}
	return e.DecideWithCandles(ctx, pair, string(tf), candles), nil
}

// DecideWithCandles runs a cycle on the given window. It always returns a decision:
// a panic anywhere in the cycle becomes a lowest-confidence hold.
func (e *DecisionEngine) DecideWithCandles(ctx context.Context, pair, timeframe string, candles []models.Candle) (d models.FusedDecision) {
	start := e.now()
	defer func() {
		if rec := recover(); rec != nil {
			e.metrics.RecordError("cycle_panic")
			e.log.Error("decision cycle panicked",
				applogger.String("pair", pair),
				applogger.String("timeframe", timeframe),
				applogger.Any("panic", rec),
			)
			d = e.systemFallback(pair, timeframe, rec)
		}
		e.emit(ctx, d)
		e.remember(d)
		e.metrics.RecordLatency("decision_cycle", e.now().Sub(start).Seconds())
	}()

	return e.cycle(ctx, pair, timeframe, candles)
}

// Latest returns the most recent decision made for pair.
func (e *DecisionEngine) Latest(pair string) (models.FusedDecision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.latest[pair]
	return d, ok
}

// CurrentThresholds is what the next cycle would gate with, and whether it came
// from a fallback rather than the store.
func (e *DecisionEngine) CurrentThresholds(ctx context.Context) (models.AdaptiveThresholds, bool) {
	eng, _ := e.source.Load()
	t, warn := e.loadThresholds(ctx, eng)
	return t, warn != ""
}

// Reliability returns every known module record, or only moduleID when it is set.
func (e *DecisionEngine) Reliability(ctx context.Context, moduleID string) (map[string]models.ModuleReliability, error) {
	if moduleID != "" {
		r, err := e.reliability.GetReliability(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		return map[string]models.ModuleReliability{moduleID: r}, nil
	}
	return e.reliability.ListReliability(ctx)
}

func (e *DecisionEngine) cycle(ctx context.Context, pair, timeframe string, candles []models.Candle) models.FusedDecision {
	var warnings []string
	degraded := false

	eng, err := e.source.Load()
	if err != nil {
		e.metrics.RecordError("engine_config")
		e.log.Warn("engine config reload failed, using last good", applogger.Error(err))
		warnings = append(warnings, "engine config reload failed: using last good configuration")
	}

	state := regime.NewDetector(eng.Regime).Detect(candles)
	batch := e.runner.Run(ctx, candles, pair, timeframe, state, eng.Runner)

	th, warn := e.loadThresholds(ctx, eng)
	if warn != "" {
		warnings = append(warnings, warn)
		degraded = true
	}
	rel, warn := e.loadReliability(ctx)
	if warn != "" {
		warnings = append(warnings, warn)
		degraded = true
	}

	res := fusion.NewCore(eng.Fusion).Fuse(fusion.Input{
		Signals:      batch.Signals,
		Regime:       state,
		Reliability:  rel,
		TotalModules: e.runner.Count(),
		Now:          e.now(),
	})
	warnings = append(warnings, res.Warnings...)

	verdict := gate.New(eng.Gate).Evaluate(res, th, state.Type)
	var kelly, pct float64
	if verdict.Accepted {
		kelly, pct = sizing.NewKelly(eng.Sizing).Size(res.DirectionalProbability(), res.RiskRewardRatio)
	}
	if verdict.Forced {
		warnings = append(warnings, fmt.Sprintf("force_accept: gate bypassed (%s)", verdict.Rejection.Category))
		e.log.Warn("gate bypassed by force_accept",
			applogger.String("pair", pair),
			applogger.String("category", string(verdict.Rejection.Category)),
		)
	}

	diag := diagnostics.Summarize(batch.Reports, batch.Signals, res.Dropped)
	diag.Degraded = degraded
	diag.Explanation = diagnostics.Explain(verdict.Rejection, res, diag)
	e.metrics.RecordDroppedSignals(res.Dropped)
	e.metrics.RecordThresholds(th.EntropyCurrent, th.ConfluenceAdaptive, th.EdgeAdaptive)
	if !res.Degenerate {
		e.window.Add(res.Quality.SignalQuality)
	}

	return models.FusedDecision{
		ID:                  e.newID(),
		Pair:                pair,
		Timeframe:           timeframe,
		Direction:           res.Direction,
		FusedProbability:    res.Probability,
		Entropy:             res.Entropy,
		Confidence:          res.Confidence,
		Strength:            res.Strength,
		Entry:               res.Entry,
		StopLoss:            res.StopLoss,
		TakeProfit:          res.TakeProfit,
		RiskRewardRatio:     res.RiskRewardRatio,
		NetEdge:             verdict.NetEdge,
		ConfluenceScore:     res.ConfluenceScore,
		KellyFraction:       kelly,
		PositionSizePct:     pct,
		ModuleContributions: res.Contributions,
		QualityMetrics:      res.Quality,
		Regime:              state,
		Rejection:           verdict.Rejection,
		Reasoning:           diagnostics.Reasoning(res, state, verdict.Rejection),
		Warnings:            warnings,
		Diagnostics:         diag,
		CreatedAt:           e.now().UTC(),
	}
}

// loadThresholds reads the store. An empty store is seeded from config; an
// unreachable one falls back to the last thresholds read, then to the seed.
func (e *DecisionEngine) loadThresholds(ctx context.Context, eng *config.Engine) (models.AdaptiveThresholds, string) {
	t, err := e.thresholds.GetThresholds(ctx)
	if err == nil {
		e.mu.Lock()
		e.lastThresholds = &t
		e.mu.Unlock()
		return t, ""
	}

	seed := feedback.SeedThresholds(eng.Thresholds)
	if errors.Is(err, domrepo.ErrNotFound) {
		saved, err := e.thresholds.SwapThresholds(ctx, 0, seed)
		if err != nil && !errors.Is(err, domrepo.ErrVersionConflict) {
			e.log.Warn("seeding thresholds failed", applogger.Error(err))
			return seed, ""
		}
		if err == nil {
			return saved, ""
		}
		return seed, ""
	}

	e.metrics.RecordError("threshold_store")
	e.log.Warn("threshold store unavailable", applogger.Error(err))
	e.mu.RLock()
	last := e.lastThresholds
	e.mu.RUnlock()
	if last != nil {
		return *last, "threshold store unavailable: using last known thresholds"
	}
	return seed, "threshold store unavailable: using default thresholds"
}

func (e *DecisionEngine) loadReliability(ctx context.Context) (map[string]models.ModuleReliability, string) {
	rel, err := e.reliability.ListReliability(ctx)
	if err == nil {
		e.mu.Lock()
		e.lastReliability = rel
		e.mu.Unlock()
		return rel, ""
	}

	e.metrics.RecordError("reliability_store")
	e.log.Warn("reliability store unavailable", applogger.Error(err))
	e.mu.RLock()
	last := e.lastReliability
	e.mu.RUnlock()
	if last != nil {
		return last, "reliability store unavailable: using last known reliability"
	}
	return nil, "reliability store unavailable: using base weights"
}

// emit records metrics and forwards the decision to audit and publishers. Sink
// failures are logged and never change the decision.
func (e *DecisionEngine) emit(ctx context.Context, d models.FusedDecision) {
	outcome := models.OutcomeAccepted
	if d.Rejection != nil {
		outcome = string(d.Rejection.Category)
	}
	e.metrics.RecordDecision(d.Pair, string(d.Direction), outcome)
	e.log.Info("decision",
		applogger.String("id", d.ID),
		applogger.String("pair", d.Pair),
		applogger.String("timeframe", d.Timeframe),
		applogger.String("direction", string(d.Direction)),
		applogger.String("outcome", outcome),
		applogger.Float64("p", d.FusedProbability),
		applogger.Float64("entropy", d.Entropy),
		applogger.Float64("position_pct", d.PositionSizePct),
		applogger.String("regime", string(d.Regime.Type)),
	)

	if e.audit != nil {
		if err := e.audit.Record(ctx, models.NewAuditRecord(d, factorCount(d))); err != nil {
			e.metrics.RecordError("audit")
			e.log.Warn("audit record failed", applogger.String("id", d.ID), applogger.Error(err))
		}
	}
	for _, p := range e.publishers {
		if err := p.PublishDecision(ctx, d); err != nil {
			e.metrics.RecordError("publish")
			e.log.Warn("decision publish failed", applogger.String("id", d.ID), applogger.Error(err))
		}
	}
}

func (e *DecisionEngine) remember(d models.FusedDecision) {
	if d.Pair == "" {
		return
	}
	e.mu.Lock()
	e.latest[d.Pair] = d
	e.mu.Unlock()
}

func (e *DecisionEngine) systemFallback(pair, timeframe string, rec interface{}) models.FusedDecision {
	rej := &models.RejectionInfo{
		Category:          models.RejectHighEntropy,
		Variant:           models.VariantEntropy,
		RequiredThreshold: models.DefaultThresholds().EntropyCurrent,
		ActualValue:       1,
	}
	return models.FusedDecision{
		ID:               e.newID(),
		Pair:             pair,
		Timeframe:        timeframe,
		Direction:        models.DirectionHold,
		FusedProbability: 0.5,
		Entropy:          1,
		Rejection:        rej,
		Reasoning:        fmt.Sprintf("%s: cycle aborted (%v)", systemFallbackWarning, rec),
		Warnings:         []string{systemFallbackWarning},
		Diagnostics: &models.Diagnostics{
			Degraded: true,
			Explanation: models.Explanation{
				Summary:     "HOLD: internal error during analysis",
				Cause:       systemFallbackWarning,
				Threshold:   rej.RequiredThreshold,
				Observed:    1,
				Suggestions: []string{"check service logs for the panic and retry"},
			},
		},
		CreatedAt: e.now().UTC(),
	}
}

func factorCount(d models.FusedDecision) int {
	if d.Diagnostics == nil {
		return 0
	}
	n := 0
	for _, r := range d.Diagnostics.Producers {
		if r.Status == models.StatusActive {
			n += r.SignalCount
		}
	}
	return n
}
