// Package cachestore provides generic key-value stores used as the
// process-wide cache behind the user-management read path.
//
// A Set is always a full overwrite of the value under the key, never a merge.
// Entries carry no expiry of their own; staleness is bounded by explicit
// invalidation and the periodic refresh that owns the snapshot keys.
package cachestore

import (
	"context"
	"io"
)

// KeyValueStore is the contract every cache provider satisfies.
// Get reports absence through its second return value rather than an error,
// so callers can tell a miss apart from a provider fault.
type KeyValueStore[V any] interface {
	// Has reports whether a value is present for the key.
	Has(ctx context.Context, key string) (bool, error)
	// Get retrieves the value for the key. The bool is false on a miss.
	Get(ctx context.Context, key string) (V, bool, error)
	// Set stores the value under the key, replacing any previous value.
	Set(ctx context.Context, key string, value V) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Closer is included for providers that manage network connections.
	io.Closer
}
