package store

import (
	"context"
	"sync"

	"github.com/serroba/tierlink/internal/shortener"
)

// MemoryStore is an in-memory implementation of shortener.Repository and
// shortener.VisitRepository.
type MemoryStore struct {
	mu      sync.RWMutex
	byShort map[shortener.Code]shortener.Mapping
	byLong  map[string]shortener.Code
	visits  map[shortener.Code]uint64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byShort: make(map[shortener.Code]shortener.Mapping),
		byLong:  make(map[string]shortener.Code),
		visits:  make(map[shortener.Code]uint64),
	}
}

func (m *MemoryStore) FindByLong(_ context.Context, long string) (*shortener.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	short, ok := m.byLong[long]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	mapping := m.byShort[short]

	return &mapping, nil
}

func (m *MemoryStore) FindByShort(_ context.Context, short shortener.Code) (*shortener.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, ok := m.byShort[short]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	return &mapping, nil
}

func (m *MemoryStore) Insert(_ context.Context, mapping *shortener.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byShort[mapping.Short]; ok {
		return shortener.ErrShortTaken
	}

	if _, ok := m.byLong[mapping.Long]; ok {
		return shortener.ErrLongTaken
	}

	m.byShort[mapping.Short] = *mapping
	m.byLong[mapping.Long] = mapping.Short

	return nil
}

func (m *MemoryStore) IncrementVisits(_ context.Context, short shortener.Code) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.visits[short]++

	return m.visits[short], nil
}

func (m *MemoryStore) Visits(_ context.Context, short shortener.Code) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.visits[short], nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

var (
	_ shortener.Repository      = (*MemoryStore)(nil)
	_ shortener.VisitRepository = (*MemoryStore)(nil)
)
