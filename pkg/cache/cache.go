// Package cache is a small byte cache with in-memory, Redis and layered backends.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service stores opaque values under a key for a bounded time.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// GetJSON decodes the cached value of key into dest.
func GetJSON(ctx context.Context, c Service, key string, dest interface{}) error {
	b, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

// SetJSON encodes v and caches it under key.
func SetJSON(ctx context.Context, c Service, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl)
}
