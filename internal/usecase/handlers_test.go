package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	"SignalFusion/internal/repository"
	"SignalFusion/internal/services/feedback"
	applogger "SignalFusion/pkg/logger"
	"SignalFusion/pkg/metrics"
)

func TestOutcomeHandler(t *testing.T) {
	store := repository.NewMemoryStore()
	h := NewOutcomeHandler("outcomes", feedback.NewUpdater(store, metrics.Nop{}, applogger.NewNop(), 3), metrics.Nop{})
	ctx := context.Background()
	assert.Equal(t, "outcomes", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`{"decision_id":"d1","module_id":"technical","success":true,"return":0.02}`)))
	require.NoError(t, h.Handle(ctx, []byte(` [{"module_id":"technical","success":false,"return":-0.01},{"module_id":"news","success":true,"return":0.01}]`)))

	r, err := store.GetReliability(ctx, "technical")
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalObservations)
	assert.InDelta(t, 0.5, r.WinRate, 1e-12)

	assert.Error(t, h.Handle(ctx, []byte(`{not json`)))
	assert.Error(t, h.Handle(ctx, []byte(`{"success":true}`)))
}

type countingDecider struct{ calls atomic.Int32 }

func (c *countingDecider) Decide(context.Context, string, string, int) (models.FusedDecision, error) {
	c.calls.Add(1)
	return models.FusedDecision{}, nil
}

func TestSchedulerRunsEveryPairUntilCancelled(t *testing.T) {
	d := &countingDecider{}
	s := NewScheduler(d, []string{"EURUSD", "GBPUSD"}, "1h", 100, 10*time.Millisecond, applogger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, d.calls.Load(), int32(4))
}
