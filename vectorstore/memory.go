package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-memory store that only supports similarity queries. It
// has no Getter or Sampler, which makes it the reference for stores that
// expose nothing beyond nearest-neighbor search.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection returns the named collection, creating it if absent.
func (m *Memory) EnsureCollection(_ context.Context, name string, dimension int) (Collection, error) {
	if name == "" || dimension <= 0 {
		return nil, fmt.Errorf("%w: name %q dimension %d", ErrInvalidArgument, name, dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if c.dimension != dimension {
			return nil, fmt.Errorf("%w: collection %q has dimension %d, want %d",
				ErrDimensionMismatch, name, c.dimension, dimension)
		}
		return c, nil
	}
	c := &memoryCollection{
		name:      name,
		dimension: dimension,
		entries:   make(map[string]entry),
	}
	m.collections[name] = c
	return c, nil
}

// Count returns the number of records in the named collection.
func (m *Memory) Count(name string) int {
	m.mu.Lock()
	c, ok := m.collections[name]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

type memoryCollection struct {
	name      string
	dimension int

	mu      sync.RWMutex
	entries map[string]entry
}

func (c *memoryCollection) Name() string   { return c.name }
func (c *memoryCollection) Dimension() int { return c.dimension }

func (c *memoryCollection) Upsert(_ context.Context, id string, vector []float32, fields map[string]string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	if err := checkVector(vector, c.dimension); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[id] = entry{vector: slices.Clone(vector), fields: project(fields, nil)}
	c.mu.Unlock()
	return nil
}

func (c *memoryCollection) Query(_ context.Context, vector []float32, topK int, fields []string) ([]Match, error) {
	if err := checkQuery(vector, topK, c.dimension); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return rankByCosine(c.entries, vector, topK, fields), nil
}
