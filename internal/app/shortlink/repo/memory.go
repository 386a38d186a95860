package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/stats"
)

// MemoryStore keeps records in process memory. Used by tests and STORAGE=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byShort map[string]shortlink.Record
	hits    map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byShort: make(map[string]shortlink.Record),
		hits:    make(map[string]int64),
	}
}

func (m *MemoryStore) Exists(_ context.Context, short string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byShort[short]
	return ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, original, short string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byShort[short]; ok {
		return fmt.Errorf("insert %q: %w", short, shortlink.ErrConflict)
	}
	m.nextID++
	m.byShort[short] = shortlink.Record{
		ID:        m.nextID,
		Original:  original,
		Short:     short,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) Lookup(_ context.Context, short string) (shortlink.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byShort[short]
	if !ok {
		return shortlink.Record{}, fmt.Errorf("lookup %q: %w", short, shortlink.ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) RecordHits(_ context.Context, hits []stats.Hit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hits {
		m.hits[h.Short]++
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of records (for tests).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byShort)
}

// HitCount returns the number of recorded hits for short.
func (m *MemoryStore) HitCount(_ context.Context, short string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits[short], nil
}
