// Package cache stores embedding vectors keyed by a digest of their input.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Vectors is a vector cache. Get reports a miss with ok == false.
type Vectors interface {
	Get(ctx context.Context, key string) (vector []float32, ok bool, err error)
	Set(ctx context.Context, key string, vector []float32) error
}

// Key derives a cache key from the embedding model and the input text.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Memory is a process-local cache bounded by entry count. When full, an
// arbitrary entry is evicted.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]float32
	limit   int
}

func NewMemory(limit int) *Memory {
	return &Memory{entries: make(map[string][]float32), limit: limit}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.limit > 0 && len(m.entries) >= m.limit {
		for k := range m.entries {
			delete(m.entries, k)
			break
		}
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)
	m.entries[key] = stored
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Redis keeps vectors in Redis as JSON with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, false, fmt.Errorf("decode cached vector: %w", err)
	}
	return vector, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
