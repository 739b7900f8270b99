package cache

import (
	"context"
	"time"
)

// LayeredCache reads memory first and Redis second, and writes through both.
type LayeredCache struct {
	l1 *MemoryCache
	l2 Service
	// l1TTL caps how long a value promoted from l2 stays local.
	l1TTL time.Duration
}

func NewLayeredCache(l1 *MemoryCache, l2 Service, l1TTL time.Duration) *LayeredCache {
	return &LayeredCache{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if b, err := lc.l1.Get(ctx, key); err == nil {
		return b, nil
	}
	b, err := lc.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.l1.Set(ctx, key, b, lc.l1TTL)
	return b, nil
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	local := ttl
	if lc.l1TTL > 0 && lc.l1TTL < local {
		local = lc.l1TTL
	}
	return lc.l1.Set(ctx, key, value, local)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
