package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/pkg/cache"
	applogger "SignalFusion/pkg/logger"
)

type countingStore struct {
	calls int
	out   []models.Candle
	err   error
}

func (s *countingStore) GetLatestNCandles(_ context.Context, _ string, _ int, _ domrepo.Timeframe) ([]models.Candle, error) {
	s.calls++
	return s.out, s.err
}

func TestCachedFeatureStoreServesRepeatReads(t *testing.T) {
	ctx := context.Background()
	next := &countingStore{out: []models.Candle{{Symbol: "BTCUSDT", Close: 100}, {Symbol: "BTCUSDT", Close: 101}}}
	s := NewCachedFeatureStore(next, cache.NewMemoryCache(16), time.Minute, applogger.NewNop())

	first, err := s.GetLatestNCandles(ctx, "BTCUSDT", 2, domrepo.TF1h)
	require.NoError(t, err)
	second, err := s.GetLatestNCandles(ctx, "BTCUSDT", 2, domrepo.TF1h)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)

	_, err = s.GetLatestNCandles(ctx, "BTCUSDT", 3, domrepo.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "bar count is part of the key")
}

func TestCachedFeatureStoreDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	next := &countingStore{err: errors.New("clickhouse down")}
	s := NewCachedFeatureStore(next, cache.NewMemoryCache(16), time.Minute, applogger.NewNop())

	_, err := s.GetLatestNCandles(ctx, "ETHUSDT", 10, domrepo.TF1h)
	require.Error(t, err)
	_, err = s.GetLatestNCandles(ctx, "ETHUSDT", 10, domrepo.TF1h)
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
