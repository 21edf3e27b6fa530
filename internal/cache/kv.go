package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// KV is the minimal key-value surface the coordinator needs. Implementations
// must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisKV backs the coordinator with Redis. Commands are serialized through
// a mutex so the connection handle is never used concurrently.
type RedisKV struct {
	mu     sync.Mutex
	client *redis.Client
}

// NewRedisKV wraps an existing Redis client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Del(ctx, keys...).Err()
}

// Ping verifies connectivity, for readiness checks.
func (r *RedisKV) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Ping(ctx).Err()
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryKV is an in-process LRU fallback used when no Redis address is
// configured, and in tests. Entries carry their own deadline since the LRU's
// TTL is fixed at construction.
type MemoryKV struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemoryKV builds an in-memory store holding up to size entries for at
// most maxTTL.
func NewMemoryKV(size int, maxTTL time.Duration) *MemoryKV {
	return &MemoryKV{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return "", false, nil
	}
	if m.now().After(entry.expires) {
		m.lru.Remove(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.lru.Add(key, memoryEntry{value: value, expires: m.now().Add(ttl)})
	return nil
}

func (m *MemoryKV) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.lru.Remove(key)
	}
	return nil
}
