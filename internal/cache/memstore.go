package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

type memEntry struct {
	value   json.RawMessage
	expires time.Time // zero means no expiry
}

// MemStore implements Store with a map. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     Clock
}

// NewMemStore returns an empty MemStore. A nil clock uses time.Now.
func NewMemStore(now Clock) *MemStore {
	if now == nil {
		now = time.Now
	}
	return &MemStore{entries: make(map[string]memEntry), now: now}
}

// Get returns a copy of the live value for key.
func (m *MemStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return append(json.RawMessage(nil), e.value...), true, nil
}

// Set stores a copy of value.
func (m *MemStore) Set(_ context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	e := memEntry{value: append(json.RawMessage(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Purge drops expired entries.
func (m *MemStore) Purge(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemStore) Close() error {
	return nil
}
