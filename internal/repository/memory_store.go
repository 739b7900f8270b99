package repository

import (
	"context"
	"sync"
	"time"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
)

// MemoryStore is a process-local StateStore. Writes are compare-and-set on version.
type MemoryStore struct {
	mu          sync.RWMutex
	thresholds  *models.AdaptiveThresholds
	reliability map[string]models.ModuleReliability
	now         func() time.Time
}

var _ domrepo.StateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reliability: map[string]models.ModuleReliability{}, now: time.Now}
}

func (s *MemoryStore) GetThresholds(_ context.Context) (models.AdaptiveThresholds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.thresholds == nil {
		return models.AdaptiveThresholds{}, domrepo.ErrNotFound
	}
	return *s.thresholds, nil
}

func (s *MemoryStore) SwapThresholds(_ context.Context, expectedVersion int64, t models.AdaptiveThresholds) (models.AdaptiveThresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if s.thresholds != nil {
		current = s.thresholds.Version
	}
	if current != expectedVersion {
		return models.AdaptiveThresholds{}, domrepo.ErrVersionConflict
	}
	t = t.Clamp()
	t.Version = expectedVersion + 1
	t.UpdatedAt = s.now().UTC()
	s.thresholds = &t
	return t, nil
}

func (s *MemoryStore) GetReliability(_ context.Context, moduleID string) (models.ModuleReliability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reliability[moduleID]
	if !ok {
		return models.ModuleReliability{}, domrepo.ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) ListReliability(_ context.Context) (map[string]models.ModuleReliability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.ModuleReliability, len(s.reliability))
	for k, v := range s.reliability {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SwapReliability(_ context.Context, expectedVersion int64, r models.ModuleReliability) (models.ModuleReliability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reliability[r.ModuleID].Version != expectedVersion {
		return models.ModuleReliability{}, domrepo.ErrVersionConflict
	}
	r.Version = expectedVersion + 1
	s.reliability[r.ModuleID] = r
	return r, nil
}

func (s *MemoryStore) Close() error { return nil }

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

var _ domrepo.Locker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, ok := l.leases[key]; ok && now.Before(until) {
		return func() {}, false, nil
	}
	until := now.Add(ttl)
	l.leases[key] = until
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[key].Equal(until) {
			delete(l.leases, key)
		}
	}, true, nil
}
