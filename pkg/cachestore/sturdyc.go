package cachestore

import (
	"context"
	"fmt"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycConfig holds configuration for the sturdyc-backed store. Sturdyc
// gives us a sharded in-memory cache with a bounded capacity, which matters
// when the same provider also serves per-request keys and not just the two
// snapshot keys.
type SturdycConfig struct {
	// Capacity is the maximum number of entries. Must be greater than 0.
	Capacity int
	// NumShards controls concurrent access. Defaults to 64.
	NumShards int
	// EntryTTL must be greater than 0 for sturdyc. It should be set well
	// above the periodic refresh interval so the snapshot keys are always
	// republished before they can expire. Defaults to 24h.
	EntryTTL time.Duration
	// EvictionPercentage is the share of entries evicted when the cache is
	// full, between 1 and 100. Defaults to 10.
	EvictionPercentage int
}

// SturdycStore adapts a sturdyc client to the KeyValueStore contract.
type SturdycStore[V any] struct {
	client *sturdyc.Client[V]
}

// NewSturdycStore creates a new sturdyc-backed store.
func NewSturdycStore[V any](cfg *SturdycConfig) (*SturdycStore[V], error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("sturdyc capacity must be greater than 0, got %d", cfg.Capacity)
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = 64
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 24 * time.Hour
	}
	if cfg.EvictionPercentage < 1 || cfg.EvictionPercentage > 100 {
		cfg.EvictionPercentage = 10
	}

	client := sturdyc.New[V](cfg.Capacity, cfg.NumShards, cfg.EntryTTL, cfg.EvictionPercentage)
	return &SturdycStore[V]{client: client}, nil
}

// Has reports whether a value is present for the key.
func (s *SturdycStore[V]) Has(_ context.Context, key string) (bool, error) {
	_, ok := s.client.Get(key)
	return ok, nil
}

// Get retrieves the value for the key.
func (s *SturdycStore[V]) Get(_ context.Context, key string) (V, bool, error) {
	value, ok := s.client.Get(key)
	if !ok {
		var zero V
		return zero, false, nil
	}
	return value, true, nil
}

// Set stores the value under the key, replacing any previous value.
func (s *SturdycStore[V]) Set(_ context.Context, key string, value V) error {
	s.client.Set(key, value)
	return nil
}

// Delete removes the key.
func (s *SturdycStore[V]) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// Close is a no-op; sturdyc manages no external connections.
func (s *SturdycStore[V]) Close() error {
	return nil
}
