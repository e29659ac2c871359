package cachestore

import (
	"context"
	"sync"
)

// InMemoryStore is a generic, thread-safe, in-memory KeyValueStore.
// It is the default provider for single-process deployments.
type InMemoryStore[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore[V any]() *InMemoryStore[V] {
	return &InMemoryStore[V]{
		data: make(map[string]V),
	}
}

// Has reports whether a value is present for the key.
func (s *InMemoryStore[V]) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// Get retrieves the value for the key.
func (s *InMemoryStore[V]) Get(_ context.Context, key string) (V, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		var zero V
		return zero, false, nil
	}
	return value, true, nil
}

// Set stores the value under the key, replacing any previous value.
func (s *InMemoryStore[V]) Set(_ context.Context, key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes the key.
func (s *InMemoryStore[V]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close is a no-op for the in-memory store but satisfies the interface.
func (s *InMemoryStore[V]) Close() error {
	return nil
}
