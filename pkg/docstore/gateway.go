// Package docstore abstracts the persistent document store behind the
// user-management API. The cache layer treats it as the system of record:
// every snapshot rebuild reads through this gateway, and every mutation is
// committed here before any cache key is touched.
package docstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a record does not exist in the store. It is a
// normal, reportable outcome, not a fault.
var ErrNotFound = errors.New("record not found")

// Handlers supplies the per-type accessors a gateway needs to manage records
// generically: reading the identity, assigning a store-generated identity on
// insert, and (for the in-memory gateway) reading a named field for filters.
type Handlers[T any] struct {
	ID    func(record T) string
	SetID func(record T, id string) T
	// Field returns the value of a named field, used by in-memory filter
	// matching. Server-side gateways ignore it.
	Field func(record T, field string) any
}

// Gateway is the persistent-store contract for a single collection.
// FindAll returns records ordered by ID ascending, matching the ordering the
// cached snapshots and the pagination engine rely on.
type Gateway[T any] interface {
	FindAll(ctx context.Context) ([]T, error)
	FindByID(ctx context.Context, id string) (T, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, id string, record T) (T, error)
	DeleteByID(ctx context.Context, id string) error
	// DeleteMany removes every record whose named field equals the given
	// value and returns the number of records removed.
	DeleteMany(ctx context.Context, field string, equals any) (int, error)
	io.Closer
}
