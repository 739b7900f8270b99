package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	domsvc "SignalFusion/internal/domain/service"
	"SignalFusion/internal/repository"
	"SignalFusion/internal/services/feedback"
	"SignalFusion/internal/services/producers"
	"SignalFusion/pkg/config"
	applogger "SignalFusion/pkg/logger"
	"SignalFusion/pkg/metrics"
)

type stubProducer struct {
	id  string
	typ models.ModuleType
	fn  func() ([]models.StandardSignal, error)
}

func (s stubProducer) ID() string              { return s.id }
func (s stubProducer) Type() models.ModuleType { return s.typ }
func (s stubProducer) Analyze(context.Context, []models.Candle, string, string) ([]models.StandardSignal, error) {
	return s.fn()
}

func voting(id string, typ models.ModuleType, p float64) stubProducer {
	dir := models.DirectionBuy
	if p < 0.5 {
		dir = models.DirectionSell
	}
	return stubProducer{id: id, typ: typ, fn: func() ([]models.StandardSignal, error) {
		return []models.StandardSignal{{
			Direction: dir, Probability: p, Confidence: 0.8, Strength: 8,
			Entry: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100, RiskRewardRatio: 2,
			Factors: []string{"stub"},
		}}, nil
	}}
}

type stubFeatures struct {
	candles []models.Candle
	err     error
}

func (s stubFeatures) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return s.candles, s.err
}

type recordingSink struct {
	mu        sync.Mutex
	records   []models.AuditRecord
	decisions []models.FusedDecision
}

func (r *recordingSink) Record(_ context.Context, rec models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) PublishDecision(_ context.Context, d models.FusedDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	return nil
}

type failingThresholds struct{ domrepo.ThresholdStore }

func (failingThresholds) GetThresholds(context.Context) (models.AdaptiveThresholds, error) {
	return models.AdaptiveThresholds{}, errors.New("connection refused")
}

type panickingThresholds struct{ domrepo.ThresholdStore }

func (panickingThresholds) GetThresholds(context.Context) (models.AdaptiveThresholds, error) {
	panic("corrupt state")
}

func flatCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 1.1 + 0.0001*float64(i%2)
		out[i] = models.Candle{Open: c, High: c + 0.0002, Low: c - 0.0002, Close: c, Volume: 100}
	}
	return out
}

type fixture struct {
	engine *DecisionEngine
	store  *repository.MemoryStore
	sink   *recordingSink
	window *feedback.QualityWindow
}

func newFixture(t *testing.T, thresholds domrepo.ThresholdStore, ps ...domsvc.Producer) fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	if thresholds == nil {
		thresholds = store
	}
	sink := &recordingSink{}
	window := feedback.NewQualityWindow(10)
	runner := producers.NewRunner(ps, producers.BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 5}, metrics.Nop{}, applogger.NewNop())
	e := NewDecisionEngine(EngineDeps{
		Source:      config.NewEngineSource(""),
		Features:    stubFeatures{candles: flatCandles(60)},
		Runner:      runner,
		Thresholds:  thresholds,
		Reliability: store,
		Window:      window,
		Audit:       sink,
		Publishers:  []domrepo.DecisionPublisher{sink},
		Metrics:     metrics.Nop{},
		Log:         applogger.NewNop(),
	})
	return fixture{engine: e, store: store, sink: sink, window: window}
}

func TestDecideAcceptsStrongConsensus(t *testing.T) {
	f := newFixture(t, nil,
		voting("technical", models.ModuleTechnical, 0.8),
		voting("fundamental", models.ModuleFundamental, 0.8),
		voting("sentiment", models.ModuleSentiment, 0.8),
		voting("pattern", models.ModulePattern, 0.8),
	)

	d, err := f.engine.Decide(context.Background(), "EURUSD", "1h", 60)
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.True(t, d.Accepted(), "rejection: %+v", d.Rejection)
	assert.Equal(t, models.DirectionBuy, d.Direction)
	assert.Greater(t, d.FusedProbability, 0.8)
	assert.InDelta(t, 1.0, d.ConfluenceScore, 1e-12)
	assert.Greater(t, d.KellyFraction, 0.0)
	assert.LessOrEqual(t, d.KellyFraction, 0.25)
	assert.InDelta(t, d.KellyFraction*100, d.PositionSizePct, 1e-12)
	assert.InDelta(t, 2.0, d.RiskRewardRatio, 1e-12)
	require.NotNil(t, d.Diagnostics)
	assert.False(t, d.Diagnostics.Degraded)
	assert.Len(t, d.Diagnostics.Producers, 4)

	require.Len(t, f.sink.records, 1)
	assert.Equal(t, models.OutcomeAccepted, f.sink.records[0].Outcome)
	assert.Equal(t, 4, f.sink.records[0].FactorCount)
	require.Len(t, f.sink.decisions, 1)
	assert.Equal(t, d.ID, f.sink.decisions[0].ID)

	latest, ok := f.engine.Latest("EURUSD")
	require.True(t, ok)
	assert.Equal(t, d.ID, latest.ID)

	_, n := f.window.Mean()
	assert.Equal(t, 1, n)

	// empty store was seeded on first read
	stored, err := f.store.GetThresholds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestDecideRejectsCoinFlipSignalsForEntropy(t *testing.T) {
	f := newFixture(t, nil,
		voting("technical", models.ModuleTechnical, 0.501),
		voting("pattern", models.ModulePattern, 0.499),
		voting("strategy", models.ModuleStrategy, 0.50),
		voting("sentiment", models.ModuleSentiment, 0.50),
		voting("fundamental", models.ModuleFundamental, 0.502),
	)

	d := f.engine.DecideWithCandles(context.Background(), "EURUSD", "1h", flatCandles(60))
	assert.False(t, d.Accepted())
	assert.InDelta(t, 0.5, d.FusedProbability, 0.01)
	require.NotNil(t, d.Rejection)
	assert.Equal(t, models.RejectHighEntropy, d.Rejection.Category)
	assert.Equal(t, 0.0, d.PositionSizePct)

	require.Len(t, f.sink.records, 1)
	assert.Equal(t, string(models.RejectHighEntropy), f.sink.records[0].Outcome)
}

func TestDecideFailedProducerFallsBack(t *testing.T) {
	f := newFixture(t, nil,
		voting("technical", models.ModuleTechnical, 0.8),
		stubProducer{id: "news", typ: models.ModuleNews, fn: func() ([]models.StandardSignal, error) {
			panic("boom")
		}},
	)

	d := f.engine.DecideWithCandles(context.Background(), "EURUSD", "1h", flatCandles(60))
	require.NotNil(t, d.Diagnostics)
	var news models.ProducerReport
	for _, r := range d.Diagnostics.Producers {
		if r.ModuleID == "news" {
			news = r
		}
	}
	assert.Equal(t, models.StatusError, news.Status)
	assert.True(t, news.Fallback)
	assert.NotContains(t, d.Warnings, systemFallbackWarning)
}

func TestDecideDegradesWhenThresholdStoreIsDown(t *testing.T) {
	f := newFixture(t, failingThresholds{},
		voting("technical", models.ModuleTechnical, 0.8),
	)

	d := f.engine.DecideWithCandles(context.Background(), "EURUSD", "1h", flatCandles(60))
	require.NotNil(t, d.Diagnostics)
	assert.True(t, d.Diagnostics.Degraded)
	assert.Contains(t, d.Warnings, "threshold store unavailable: using default thresholds")

	th, degraded := f.engine.CurrentThresholds(context.Background())
	assert.True(t, degraded)
	assert.Equal(t, models.DefaultThresholds().EntropyCurrent, th.EntropyCurrent)
}

func TestDecideRecoversIntoSystemFallback(t *testing.T) {
	f := newFixture(t, panickingThresholds{},
		voting("technical", models.ModuleTechnical, 0.8),
	)

	d := f.engine.DecideWithCandles(context.Background(), "EURUSD", "1h", flatCandles(60))
	assert.Equal(t, models.DirectionHold, d.Direction)
	assert.Equal(t, 1.0, d.Entropy)
	assert.Equal(t, 0.0, d.PositionSizePct)
	assert.Contains(t, d.Warnings, systemFallbackWarning)
	require.NotNil(t, d.Rejection)
	assert.Equal(t, models.RejectHighEntropy, d.Rejection.Category)
	assert.True(t, d.Diagnostics.Degraded)
	require.Len(t, f.sink.records, 1)
}

func TestDecideWithoutSignalsHolds(t *testing.T) {
	f := newFixture(t, nil,
		stubProducer{id: "technical", typ: models.ModuleTechnical, fn: func() ([]models.StandardSignal, error) {
			return nil, domsvc.ErrInsufficientData
		}},
	)

	d := f.engine.DecideWithCandles(context.Background(), "EURUSD", "1h", flatCandles(10))
	assert.Equal(t, models.DirectionHold, d.Direction)
	assert.Equal(t, 1.0, d.Entropy)
	require.NotNil(t, d.Rejection)
	assert.Equal(t, models.RejectHighEntropy, d.Rejection.Category)
	assert.Equal(t, models.RegimeRangingTight, d.Regime.Type)

	_, n := f.window.Mean()
	assert.Equal(t, 0, n)
}

func TestDecideSurfacesFeatureStoreErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.features = stubFeatures{err: errors.New("clickhouse down")}

	_, err := f.engine.Decide(context.Background(), "EURUSD", "1h", 60)
	assert.ErrorContains(t, err, "clickhouse down")
	assert.Empty(t, f.sink.records)
}

func TestReliabilityQuery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.store.SwapReliability(ctx, 0, models.NewModuleReliability("technical"))
	require.NoError(t, err)

	all, err := f.engine.Reliability(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, all, "technical")

	_, err = f.engine.Reliability(ctx, "missing")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}
