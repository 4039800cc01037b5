package storage

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryEntry carries its own deadline so entries can expire individually
// while the LRU handles capacity eviction.
type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is the in-process L1 tier: a bounded LRU map with per-entry TTL.
// The underlying lru.Cache serialises access, so Memory is safe for
// concurrent use without additional locking.
type Memory struct {
	entries *lru.Cache[string, *memoryEntry]
}

// NewMemory creates an L1 tier holding at most capacity entries.
func NewMemory(capacity int) (*Memory, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	entries, err := lru.New[string, *memoryEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries}, nil
}

// Get returns the value for key and promotes the entry to most recently
// used. Expired entries are removed on access.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(time.Now()) {
		m.entries.Remove(key)
		return nil, ErrNotFound
	}
	return entry.data, nil
}

// Set stores data under key, evicting the least recently used entry when
// the cache is full and key is new.
func (m *Memory) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	entry := &memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries.Add(key, entry)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

// Exists reports presence without promoting the entry.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	entry, ok := m.entries.Peek(key)
	if !ok {
		return false, nil
	}
	if entry.expired(time.Now()) {
		m.entries.Remove(key)
		return false, nil
	}
	return true, nil
}

// Ping always succeeds while the process is live.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Clear drops every entry.
func (m *Memory) Clear() { m.entries.Purge() }

// Len returns the number of entries currently held, including any that
// have expired but not yet been touched.
func (m *Memory) Len() int { return m.entries.Len() }
