package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"userapi/pkg/sentinel"
)

// Cache is a string key-value store with per-key expiry. Redis backs it in
// production; the in-memory variant serves tests.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns sentinel.ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
	// Incr atomically increments a counter, setting ttl when the key is new,
	// and returns the value after the increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", sentinel.ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if ok && !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		ok = false
	}
	var n int64
	if ok {
		n, _ = strconv.ParseInt(entry.value, 10, 64)
	} else {
		entry = memoryEntry{}
		if ttl > 0 {
			entry.expiresAt = time.Now().Add(ttl)
		}
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	m.entries[key] = entry
	return n, nil
}
