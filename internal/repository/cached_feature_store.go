package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
	"SignalFusion/pkg/cache"
	applogger "SignalFusion/pkg/logger"
)

// CachedFeatureStore serves repeated candle reads from a cache.
// Cache failures fall through to the wrapped store.
type CachedFeatureStore struct {
	next  domrepo.FeatureStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.FeatureStore = (*CachedFeatureStore)(nil)

func NewCachedFeatureStore(next domrepo.FeatureStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedFeatureStore {
	return &CachedFeatureStore{next: next, cache: c, ttl: ttl, l: l}
}

func candleKey(symbol string, n int, tf domrepo.Timeframe) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, tf, n)
}

func (s *CachedFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	key := candleKey(symbol, n, tf)

	var cached []models.Candle
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("candle cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	cs, err := s.next.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, err
	}
	if len(cs) > 0 {
		if err := cache.SetJSON(ctx, s.cache, key, cs, s.ttl); err != nil {
			s.l.Warn("candle cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return cs, nil
}
