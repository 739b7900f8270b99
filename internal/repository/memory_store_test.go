package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
)

func TestMemoryThresholdsPersistThenReload(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetThresholds(ctx)
	require.ErrorIs(t, err, domrepo.ErrNotFound)

	in := models.DefaultThresholds()
	in.EntropyCurrent = 2 // out of bounds, must come back clamped
	saved, err := s.SwapThresholds(ctx, 0, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)
	assert.Equal(t, in.EntropyMax, saved.EntropyCurrent)

	got, err := s.GetThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	_, err = s.SwapThresholds(ctx, 0, in)
	assert.ErrorIs(t, err, domrepo.ErrVersionConflict)
}

func TestMemoryReliabilityCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := models.NewModuleReliability("technical")
	saved, err := s.SwapReliability(ctx, 0, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	_, err = s.SwapReliability(ctx, 0, r)
	assert.ErrorIs(t, err, domrepo.ErrVersionConflict)

	all, err := s.ListReliability(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryReliabilityConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SwapReliability(ctx, 0, models.NewModuleReliability("news")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	release, ok, err := l.TryLock(ctx, "retune", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "retune", time.Minute)
	assert.False(t, ok)

	release()
	_, ok, _ = l.TryLock(ctx, "retune", time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.TryLock(ctx, "retune", time.Minute)
	assert.True(t, ok, "expired lease is reclaimed")
}
