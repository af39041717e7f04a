package cache

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps cache generations in process memory.
type MemoryStorage struct {
	mu          sync.Mutex
	names       []string
	generations map[string]*InMemoryQuotaLRU
	maxMB       int
}

// NewMemoryStorage creates an empty storage. maxMB bounds each generation
// separately; zero disables eviction.
func NewMemoryStorage(maxMB int) *MemoryStorage {
	return &MemoryStorage{
		generations: make(map[string]*InMemoryQuotaLRU),
		maxMB:       maxMB,
	}
}

func (m *MemoryStorage) Open(ctx context.Context, name string) (Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation, ok := m.generations[name]; ok {
		return generation, nil
	}
	generation := NewInMemoryQuotaLRU(m.maxMB)
	m.generations[name] = generation
	m.names = append(m.names, name)
	return generation, nil
}

func (m *MemoryStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.generations[name]
	return ok, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.generations[name]; !ok {
		return false, nil
	}
	delete(m.generations, name)
	m.names = slices.DeleteFunc(m.names, func(n string) bool { return n == name })
	return true, nil
}

func (m *MemoryStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.names), nil
}

// Close is a no-op for in-memory, but required by the interface.
func (m *MemoryStorage) Close() error {
	return nil
}
