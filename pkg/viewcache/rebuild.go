package viewcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-usercache/pkg/cachestore"
	"github.com/illmade-knight/go-usercache/pkg/docstore"
)

// RebuilderConfig holds configuration for a Rebuilder.
type RebuilderConfig struct {
	// Key is the cache key the collection's view is published under.
	Key string
	// RebuildTimeout bounds a single rebuild's store reads. A rebuild that
	// exceeds it aborts without publishing, leaving the prior view in place.
	RebuildTimeout time.Duration
}

// rebuildCall is a single in-flight rebuild whose result is shared by every
// caller that arrived while it was running.
type rebuildCall[T any] struct {
	done chan struct{}
	view View[T]
	err  error
}

// Rebuilder owns a collection's view key. It is the only writer of that key:
// both mutation-triggered invalidation and the periodic refresh go through
// Rebuild, and rebuilds for the same key are single-flighted so concurrent
// callers share one store read instead of racing last-write-wins.
type Rebuilder[T any] struct {
	key      string
	timeout  time.Duration
	source   docstore.Gateway[T]
	views    cachestore.KeyValueStore[View[T]]
	idOf     func(record T) string
	sanitize func(record T) T
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight *rebuildCall[T]
}

// NewRebuilder creates a Rebuilder for one collection.
// The optional sanitize func is applied to every record before it enters a
// view, so sensitive fields never sit in the cache.
func NewRebuilder[T any](
	cfg *RebuilderConfig,
	source docstore.Gateway[T],
	views cachestore.KeyValueStore[View[T]],
	idOf func(record T) string,
	sanitize func(record T) T,
	logger zerolog.Logger,
) (*Rebuilder[T], error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("rebuilder key cannot be empty")
	}
	if cfg.RebuildTimeout <= 0 {
		cfg.RebuildTimeout = 30 * time.Second
	}
	if source == nil || views == nil || idOf == nil {
		return nil, fmt.Errorf("source, views and idOf cannot be nil")
	}
	return &Rebuilder[T]{
		key:      cfg.Key,
		timeout:  cfg.RebuildTimeout,
		source:   source,
		views:    views,
		idOf:     idOf,
		sanitize: sanitize,
		logger:   logger.With().Str("component", "Rebuilder").Str("key", cfg.Key).Logger(),
	}, nil
}

// Key returns the cache key this rebuilder publishes under.
func (r *Rebuilder[T]) Key() string {
	return r.key
}

// Cached returns the currently published view, if any, without touching the
// store.
func (r *Rebuilder[T]) Cached(ctx context.Context) (View[T], bool, error) {
	return r.views.Get(ctx, r.key)
}

// Invalidate discards the published view. The next read or refresh tick will
// rebuild it from the store.
func (r *Rebuilder[T]) Invalidate(ctx context.Context) error {
	return r.views.Delete(ctx, r.key)
}

// Rebuild re-reads the whole collection from the store and publishes a fresh
// view. If a rebuild is already in flight, the call waits for it and shares
// its result rather than starting a second store read.
func (r *Rebuilder[T]) Rebuild(ctx context.Context) (View[T], error) {
	r.mu.Lock()
	if c := r.inflight; c != nil {
		r.mu.Unlock()
		select {
		case <-c.done:
			return c.view, c.err
		case <-ctx.Done():
			var zero View[T]
			return zero, ctx.Err()
		}
	}
	c := &rebuildCall[T]{done: make(chan struct{})}
	r.inflight = c
	r.mu.Unlock()

	c.view, c.err = r.rebuild(ctx)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()
	close(c.done)

	return c.view, c.err
}

// rebuild does the store read and the publish. It runs on a context detached
// from the triggering caller: other callers may be waiting on this rebuild,
// so one caller going away must not abort it.
func (r *Rebuilder[T]) rebuild(ctx context.Context) (View[T], error) {
	var zero View[T]
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	records, err := r.source.FindAll(rctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Rebuild read failed, keeping prior view.")
		return zero, fmt.Errorf("rebuild %s: %w", r.key, err)
	}

	if r.sanitize != nil {
		for i := range records {
			records[i] = r.sanitize(records[i])
		}
	}

	// The gateway contract already orders by ID; guard it anyway, since the
	// whole pagination scheme depends on this ordering.
	if !sort.SliceIsSorted(records, func(i, j int) bool {
		return r.idOf(records[i]) < r.idOf(records[j])
	}) {
		sort.Slice(records, func(i, j int) bool {
			return r.idOf(records[i]) < r.idOf(records[j])
		})
	}

	view := View[T]{
		Records:   records,
		Total:     len(records),
		RebuiltAt: time.Now().UTC(),
	}
	if err := r.views.Set(rctx, r.key, view); err != nil {
		r.logger.Error().Err(err).Msg("Rebuild publish failed, keeping prior view.")
		return zero, fmt.Errorf("rebuild %s: publish: %w", r.key, err)
	}

	r.logger.Debug().Int("total", view.Total).Msg("View rebuilt.")
	return view, nil
}
