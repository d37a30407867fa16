package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/infrastructure/redis"
)

// Store is a string cache with per-entry expiry
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

type RedisStore struct {
	redisService *redis.Service
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type Service struct {
	store Store
}

func NewService(redisService *redis.Service) *Service {
	var store Store
	if redisService != nil {
		// Test Redis connection
		ctx := context.Background()
		if err := redisService.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("Redis connection failed")
			log.Warn().Msg("Falling back to in-memory caching")
			store = newMemoryStore()
		} else {
			log.Info().Msg("Using Redis for caching")
			store = &RedisStore{redisService: redisService}
		}
	} else {
		log.Info().Msg("Using in-memory caching")
		store = newMemoryStore()
	}

	return &Service{store: store}
}

func newMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Redis Store implementation
func (rs *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return rs.redisService.Set(ctx, "Cache:"+key, value, ttl)
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := rs.redisService.Get(ctx, "Cache:"+key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	return rs.redisService.Delete(ctx, "Cache:"+key)
}

// Memory Store implementation
func (ms *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, exists := ms.entries[key]
	if !exists {
		return "", false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(ms.entries, key)
		return "", false, nil
	}

	return entry.value, true, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.entries, key)
	return nil
}

// Service methods
func (s *Service) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.store.Set(ctx, key, value, ttl)
}

func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, key)
}

func (s *Service) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}
