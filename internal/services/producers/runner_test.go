package producers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	domsvc "SignalFusion/internal/domain/service"
	"SignalFusion/pkg/config"
	applogger "SignalFusion/pkg/logger"
	"SignalFusion/pkg/metrics"
)

type fakeProducer struct {
	id    string
	typ   models.ModuleType
	fn    func(ctx context.Context) ([]models.StandardSignal, error)
	calls int
}

func (f *fakeProducer) ID() string              { return f.id }
func (f *fakeProducer) Type() models.ModuleType { return f.typ }
func (f *fakeProducer) Analyze(ctx context.Context, _ []models.Candle, pair, tf string) ([]models.StandardSignal, error) {
	f.calls++
	return f.fn(ctx)
}

func returns(p float64, dir models.Direction) func(context.Context) ([]models.StandardSignal, error) {
	return func(context.Context) ([]models.StandardSignal, error) {
		return []models.StandardSignal{{Direction: dir, Probability: p, Confidence: 0.7, Strength: 6}}, nil
	}
}

func runnerCfg() config.RunnerConfig {
	c := config.DefaultEngine().Runner
	c.ProducerTimeout = 50 * time.Millisecond
	c.Budget = 200 * time.Millisecond
	return c
}

func breaker() BreakerSettings {
	return BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2}
}

func newRunner(ps ...domsvc.Producer) *Runner {
	return NewRunner(ps, breaker(), metrics.Nop{}, applogger.NewNop())
}

func byID(reports []models.ProducerReport) map[string]models.ProducerReport {
	out := map[string]models.ProducerReport{}
	for _, r := range reports {
		out[r.ModuleID] = r
	}
	return out
}

func TestRunnerIsolatesFailures(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := newRunner(
		&fakeProducer{id: "technical", typ: models.ModuleTechnical, fn: returns(0.7, models.DirectionBuy)},
		&fakeProducer{id: "news", typ: models.ModuleNews, fn: func(context.Context) ([]models.StandardSignal, error) {
			return nil, errors.New("upstream 500")
		}},
		&fakeProducer{id: "pattern", typ: models.ModulePattern, fn: func(context.Context) ([]models.StandardSignal, error) {
			panic("index out of range")
		}},
		&fakeProducer{id: "sentiment", typ: models.ModuleSentiment, fn: func(context.Context) ([]models.StandardSignal, error) {
			<-release // ignores its context
			return nil, nil
		}},
		&fakeProducer{id: "fibonacci", typ: models.ModuleFibonacci, fn: func(context.Context) ([]models.StandardSignal, error) {
			return nil, fmt.Errorf("too short: %w", domsvc.ErrInsufficientData)
		}},
		&fakeProducer{id: "intermarket", typ: models.ModuleIntermarket, fn: func(context.Context) ([]models.StandardSignal, error) {
			return nil, nil
		}},
	)

	start := time.Now()
	batch := r.Run(context.Background(), nil, "EURUSD", "1h", models.RegimeState{Type: models.RegimeTrendingBullish}, runnerCfg())
	assert.Less(t, time.Since(start), time.Second)

	reports := byID(batch.Reports)
	require.Len(t, reports, 6)
	assert.Equal(t, models.StatusActive, reports["technical"].Status)
	assert.InDelta(t, 0.7, reports["technical"].Quality, 1e-12)
	assert.Equal(t, models.StatusError, reports["news"].Status)
	assert.True(t, reports["news"].Fallback)
	assert.Equal(t, models.StatusError, reports["pattern"].Status)
	assert.Contains(t, reports["pattern"].Error, "panicked")
	assert.Equal(t, models.StatusError, reports["sentiment"].Status)
	assert.Equal(t, models.StatusInsufficientData, reports["fibonacci"].Status)
	assert.False(t, reports["fibonacci"].Fallback)
	assert.Equal(t, models.StatusInactive, reports["intermarket"].Status)

	// technical + three fallbacks, sorted by module id
	require.Len(t, batch.Signals, 4)
	ids := []string{}
	for _, s := range batch.Signals {
		ids = append(ids, s.ModuleID)
		if s.ModuleID != "technical" {
			assert.True(t, s.Fallback)
			assert.Equal(t, models.DirectionBuy, s.Direction)
			assert.Equal(t, 0.35, s.Confidence)
		}
	}
	assert.Equal(t, []string{"news", "pattern", "sentiment", "technical"}, ids)
}

func TestRunnerStampsModuleIdentity(t *testing.T) {
	// a producer that hands out the same cached slice every call
	cached := []models.StandardSignal{{ModuleID: "spoofed", ModuleType: models.ModuleNews, Direction: models.DirectionSell, Probability: 0.3, Confidence: 0.6, Strength: 4}}
	r := newRunner(&fakeProducer{id: "strategy", typ: models.ModuleStrategy, fn: func(context.Context) ([]models.StandardSignal, error) {
		return cached, nil
	}})
	batch := r.Run(context.Background(), nil, "EURUSD", "1h", models.RegimeState{}, runnerCfg())
	require.Len(t, batch.Signals, 1)
	assert.Equal(t, "strategy", batch.Signals[0].ModuleID)
	assert.Equal(t, models.ModuleStrategy, batch.Signals[0].ModuleType)

	assert.Equal(t, "spoofed", cached[0].ModuleID, "producer's slice is left untouched")
	assert.Equal(t, models.ModuleNews, cached[0].ModuleType)
}

func TestRunnerBreakerOpensAfterRepeatedFailures(t *testing.T) {
	p := &fakeProducer{id: "news", typ: models.ModuleNews, fn: func(context.Context) ([]models.StandardSignal, error) {
		return nil, errors.New("down")
	}}
	r := newRunner(p)
	for i := 0; i < 5; i++ {
		batch := r.Run(context.Background(), nil, "EURUSD", "1h", models.RegimeState{}, runnerCfg())
		assert.Equal(t, models.StatusError, batch.Reports[0].Status)
	}
	// two calls trip the breaker, the rest are short-circuited
	assert.Equal(t, 2, p.calls)
}

func TestFallbackWithoutBiasIsHold(t *testing.T) {
	fb := Fallback(&fakeProducer{id: "x", typ: models.ModuleNews}, "EURUSD", "1h", models.RegimeState{Type: models.RegimeRangingTight}, runnerCfg())
	assert.Equal(t, models.DirectionHold, fb.Direction)
	assert.True(t, fb.Fallback)

	fb = Fallback(&fakeProducer{id: "x", typ: models.ModuleNews}, "EURUSD", "1h", models.RegimeState{Type: models.RegimeShockDown}, runnerCfg())
	assert.Equal(t, models.DirectionSell, fb.Direction)
	assert.Less(t, fb.Probability, 0.5)
}
