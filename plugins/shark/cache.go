package shark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache holds recently fetched map properties per device.
type SnapshotCache interface {
	Get(ctx context.Context, dsn string) (MapProperties, bool, error)
	Set(ctx context.Context, dsn string, props MapProperties, ttl time.Duration) error
}

type memoryEntry struct {
	props   MapProperties
	expires time.Time
}

// MemoryCache is an in-process SnapshotCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, dsn string) (MapProperties, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[dsn]
	if !ok {
		return MapProperties{}, false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, dsn)
		return MapProperties{}, false, nil
	}
	return entry.props, true, nil
}

func (m *MemoryCache) Set(_ context.Context, dsn string, props MapProperties, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[dsn] = memoryEntry{props: props, expires: m.now().Add(ttl)}
	return nil
}

// RedisCache stores snapshots in Redis with a key TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func mapKey(dsn string) string {
	return fmt.Sprintf("sharkd:map:%s", dsn)
}

func (r *RedisCache) Get(ctx context.Context, dsn string) (MapProperties, bool, error) {
	data, err := r.client.Get(ctx, mapKey(dsn)).Bytes()
	if errors.Is(err, redis.Nil) {
		return MapProperties{}, false, nil
	}
	if err != nil {
		return MapProperties{}, false, err
	}
	var props MapProperties
	if err := json.Unmarshal(data, &props); err != nil {
		return MapProperties{}, false, fmt.Errorf("decode cached map: %w", err)
	}
	return props, true, nil
}

func (r *RedisCache) Set(ctx context.Context, dsn string, props MapProperties, ttl time.Duration) error {
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, mapKey(dsn), data, ttl).Err()
}
