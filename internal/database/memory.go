package database

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process ExpiringStore. Expired entries are hidden on
// read and removed by Sweep, which the server runs on the worker pool.
type MemoryStore struct {
	*KeyedMutex

	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryStore creates an empty store using the wall clock
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return NewMemoryStoreWithClock(logger, time.Now)
}

// NewMemoryStoreWithClock creates an empty store that reads time from now
func NewMemoryStoreWithClock(logger *slog.Logger, now func() time.Time) *MemoryStore {
	return &MemoryStore{
		KeyedMutex: NewKeyedMutex(),
		entries:    make(map[string]memoryEntry),
		now:        now,
		logger:     logger,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := m.entries[key]
	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, ErrKeyNotFound
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if !m.now().Before(expiresAt) {
		delete(m.entries, key)
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || !now.Before(entry.expiresAt) || !bytes.Equal(entry.value, old) {
		return ErrConflict
	}

	if !now.Before(expiresAt) {
		delete(m.entries, key)
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.entries, key)
	return nil
}

// Sweep removes expired entries and returns how many were dropped
func (m *MemoryStore) Sweep(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed int64
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug("🧹 [MemoryStore] Swept expired entries", "removed", removed)
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = make(map[string]memoryEntry)
	return nil
}
