// Package viewcache implements the read-through / write-invalidate cache
// layer between the API handlers and the document store.
//
// The unit of caching is the View: a fully materialized, ID-sorted copy of a
// collection paired with its record count, published atomically under a
// single cache key. Views are never mutated in place; a rebuild replaces the
// previous view wholesale, so readers can never observe a snapshot whose
// count belongs to a different generation.
//
// Readers may observe data up to one refresh interval or one in-flight
// mutation old. Callers that need strict consistency must bypass the cache
// and read the store directly.
package viewcache

import (
	"time"
)

// View pairs a snapshot of a collection with the count derived from the same
// rebuild. Once published it is immutable.
type View[T any] struct {
	// Records is the full collection ordered by ID ascending.
	Records []T `json:"records"`
	// Total is len(Records) at rebuild time. It is stored explicitly so a
	// serialized view carries its count with it.
	Total int `json:"total"`
	// RebuiltAt is when the rebuild that produced this view completed.
	RebuiltAt time.Time `json:"rebuiltAt"`
}
