// Package keyValue is a small TTL cache backed either by an in-process
// hashmap (self-contained mode) or by redis.
package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type value struct {
	value   string
	expires time.Time
}

type Store struct {
	sugar       *zap.SugaredLogger
	redisClient *redis.Client

	mutex   sync.RWMutex
	hashmap map[string]value
	now     func() time.Time
}

// NewLocal returns a hashmap backed store. Call RunExpiry to evict expired
// keys in the background.
func NewLocal(sugar *zap.SugaredLogger) *Store {
	return &Store{
		sugar:   sugar,
		hashmap: make(map[string]value),
		now:     time.Now,
	}
}

func NewRedis(sugar *zap.SugaredLogger, redisClient *redis.Client) *Store {
	return &Store{
		sugar:       sugar,
		redisClient: redisClient,
		now:         time.Now,
	}
}

func (s *Store) selfContained() bool {
	return s.redisClient == nil
}

// RunExpiry deletes expired local keys every interval until ctx is done.
// Redis expires keys itself, so this returns at once for redis stores.
func (s *Store) RunExpiry(ctx context.Context, interval time.Duration) {
	if !s.selfContained() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deleteExpired()
		}
	}
}

func (s *Store) deleteExpired() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	for key, v := range s.hashmap {
		if v.expires.Before(now) {
			delete(s.hashmap, key)
		}
	}
}

// Get returns "" for missing and expired keys.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.selfContained() {
		s.sugar.Debugf("Getting value of key [%s] from hashmap", key)

		s.mutex.RLock()
		defer s.mutex.RUnlock()

		v, ok := s.hashmap[key]
		if !ok || v.expires.Before(s.now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting value of key [%s] from redis", key)

	v, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key string, v string, expiration time.Duration) error {
	if s.selfContained() {
		s.sugar.Debugf("Setting key [%s] in hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.hashmap[key] = value{value: v, expires: s.now().Add(expiration)}
		return nil
	}

	s.sugar.Debugf("Setting key [%s] in redis", key)
	return s.redisClient.Set(ctx, key, v, expiration).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	if s.selfContained() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.hashmap, key)
		return nil
	}

	return s.redisClient.Del(ctx, key).Err()
}
