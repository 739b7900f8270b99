package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SignalFusion/internal/domain/models"
	domrepo "SignalFusion/internal/domain/repository"
)

const thresholdsField = "current"

// casScript writes ARGV[3] into hash KEYS[1] field ARGV[1] only when the version
// kept in hash KEYS[2] equals ARGV[2], then bumps that version.
var casScript = redis.NewScript(`
local v = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if v ~= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1], v + 1)
return 1
`)

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore is a StateStore and Locker shared by every engine replica.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
	token  func() string
}

var (
	_ domrepo.StateStore = (*RedisStore)(nil)
	_ domrepo.Locker     = (*RedisStore)(nil)
)

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now, token: uuid.NewString}
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) GetThresholds(ctx context.Context) (models.AdaptiveThresholds, error) {
	var t models.AdaptiveThresholds
	err := s.hget(ctx, s.key("thresholds"), thresholdsField, &t)
	return t, err
}

func (s *RedisStore) SwapThresholds(ctx context.Context, expectedVersion int64, t models.AdaptiveThresholds) (models.AdaptiveThresholds, error) {
	t = t.Clamp()
	t.Version = expectedVersion + 1
	t.UpdatedAt = s.now().UTC()
	if err := s.cas(ctx, s.key("thresholds"), thresholdsField, expectedVersion, t); err != nil {
		return models.AdaptiveThresholds{}, err
	}
	return t, nil
}

func (s *RedisStore) GetReliability(ctx context.Context, moduleID string) (models.ModuleReliability, error) {
	var r models.ModuleReliability
	err := s.hget(ctx, s.key("reliability"), moduleID, &r)
	return r, err
}

func (s *RedisStore) ListReliability(ctx context.Context) (map[string]models.ModuleReliability, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key("reliability")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list reliability: %w", err)
	}
	out := make(map[string]models.ModuleReliability, len(raw))
	for id, v := range raw {
		var r models.ModuleReliability
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode reliability %s: %w", id, err)
		}
		out[id] = r
	}
	return out, nil
}

func (s *RedisStore) SwapReliability(ctx context.Context, expectedVersion int64, r models.ModuleReliability) (models.ModuleReliability, error) {
	r.Version = expectedVersion + 1
	if err := s.cas(ctx, s.key("reliability"), r.ModuleID, expectedVersion, r); err != nil {
		return models.ModuleReliability{}, err
	}
	return r, nil
}

// TryLock takes key with SET NX PX; release only deletes the lock it still owns.
func (s *RedisStore) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := s.key("lock", key)
	token := s.token()
	ok, err := s.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, s.rdb, []string{k}, token).Err()
	}
	return release, true, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) hget(ctx context.Context, hash, field string, dest interface{}) error {
	v, err := s.rdb.HGet(ctx, hash, field).Result()
	if errors.Is(err, redis.Nil) {
		return domrepo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s/%s: %w", hash, field, err)
	}
	if err := json.Unmarshal([]byte(v), dest); err != nil {
		return fmt.Errorf("decode %s/%s: %w", hash, field, err)
	}
	return nil
}

func (s *RedisStore) cas(ctx context.Context, hash, field string, expectedVersion int64, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", hash, field, err)
	}
	n, err := casScript.Run(ctx, s.rdb, []string{hash, hash + ":version"}, field, expectedVersion, string(b)).Int64()
	if err != nil {
		return fmt.Errorf("redis swap %s/%s: %w", hash, field, err)
	}
	if n == 0 {
		return domrepo.ErrVersionConflict
	}
	return nil
}
