package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryGateway is a thread-safe, in-memory Gateway implementation. It backs
// unit tests and local development where no Firestore instance is available.
type MemoryGateway[T any] struct {
	handlers Handlers[T]

	mu      sync.RWMutex
	records map[string]T
}

// NewMemoryGateway creates a new in-memory gateway.
func NewMemoryGateway[T any](handlers Handlers[T]) (*MemoryGateway[T], error) {
	if handlers.ID == nil || handlers.SetID == nil {
		return nil, fmt.Errorf("handlers must provide ID and SetID")
	}
	return &MemoryGateway[T]{
		handlers: handlers,
		records:  make(map[string]T),
	}, nil
}

// FindAll returns all records ordered by ID ascending.
func (g *MemoryGateway[T]) FindAll(_ context.Context) ([]T, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	records := make([]T, 0, len(g.records))
	for _, record := range g.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return g.handlers.ID(records[i]) < g.handlers.ID(records[j])
	})
	return records, nil
}

// FindByID retrieves a single record.
func (g *MemoryGateway[T]) FindByID(_ context.Context, id string) (T, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	record, ok := g.records[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return record, nil
}

// Count returns the number of stored records.
func (g *MemoryGateway[T]) Count(_ context.Context) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records), nil
}

// Insert assigns a new ID and stores the record.
func (g *MemoryGateway[T]) Insert(_ context.Context, record T) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.handlers.ID(record)
	if id == "" {
		id = uuid.NewString()
		record = g.handlers.SetID(record, id)
	}
	if _, exists := g.records[id]; exists {
		var zero T
		return zero, fmt.Errorf("record %s already exists", id)
	}
	g.records[id] = record
	return record, nil
}

// Update overwrites an existing record.
func (g *MemoryGateway[T]) Update(_ context.Context, id string, record T) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[id]; !ok {
		var zero T
		return zero, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	record = g.handlers.SetID(record, id)
	g.records[id] = record
	return record, nil
}

// DeleteByID removes a single record.
func (g *MemoryGateway[T]) DeleteByID(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[id]; !ok {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	delete(g.records, id)
	return nil
}

// DeleteMany removes every record whose named field equals the given value.
// It requires the Field handler.
func (g *MemoryGateway[T]) DeleteMany(_ context.Context, field string, equals any) (int, error) {
	if g.handlers.Field == nil {
		return 0, fmt.Errorf("handlers must provide Field for DeleteMany")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	deleted := 0
	for id, record := range g.records {
		if g.handlers.Field(record, field) == equals {
			delete(g.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the in-memory gateway.
func (g *MemoryGateway[T]) Close() error {
	return nil
}
