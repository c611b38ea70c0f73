// Package cache is the TTL snapshot cache port. Category and race JSON
// snapshots are the only users.
package cache

import (
	"context"
	"sync"
	"time"

	"raceroom/internal/metrics"
)

// Cache is a get-or-set by key with TTL.
type Cache interface {
	// GetOrSet returns the cached value for key, computing and storing it
	// with the given TTL on a miss.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func() (string, error)) (string, error)
	// Delete removes a key, forcing the next GetOrSet to recompute.
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Cache, used in tests and single-node setups.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func() (string, error)) (string, error) {
	m.mu.Lock()
	if entry, ok := m.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		m.mu.Unlock()
		metrics.SnapshotCacheHits.Inc()
		return entry.value, nil
	}
	m.mu.Unlock()
	metrics.SnapshotCacheMisses.Inc()

	value, err := compute()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return value, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
