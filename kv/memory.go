package kv

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation for testing.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string

	// FailWrites makes every CompareAndSwap fail with ErrUnavailable.
	FailWrites bool
}

// NewMemoryStore creates a new in-memory CAS store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the current value.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// CompareAndSwap atomically sets key to next if the current value
// equals expected.
func (m *MemoryStore) CompareAndSwap(_ context.Context, key, expected, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrUnavailable
	}

	actual := m.values[key]
	if actual != expected {
		return &CASError{Key: key, Expected: expected, Actual: actual}
	}
	m.values[key] = next
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
