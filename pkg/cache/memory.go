package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
	lastUsed time.Time
}

// MemoryCache is a process-local cache with TTL and least-recently-used eviction.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	now     func() time.Time
}

func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryCache{data: make(map[string]*memoryItem), maxSize: maxSize, now: time.Now}
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	now := mc.now()
	if now.After(item.expireAt) {
		delete(mc.data, key)
		return nil, ErrCacheMiss
	}
	item.lastUsed = now
	return item.value, nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evict()
	}
	now := mc.now()
	mc.data[key] = &memoryItem{value: value, expireAt: now.Add(ttl), lastUsed: now}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) Close() error { return nil }

// evict drops expired entries, or the least recently used one if none expired.
// Caller holds mu.
func (mc *MemoryCache) evict() {
	now := mc.now()
	var oldestKey string
	var oldest time.Time
	for k, it := range mc.data {
		if now.After(it.expireAt) {
			delete(mc.data, k)
			continue
		}
		if oldestKey == "" || it.lastUsed.Before(oldest) {
			oldestKey, oldest = k, it.lastUsed
		}
	}
	if len(mc.data) >= mc.maxSize && oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}
