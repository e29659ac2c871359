package viewcache

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// PageResult is the outcome of a Page call. OutOfRange is a normal result,
// distinct from an error: the caller asked for a page past the end of the
// collection and gets an empty record set plus the real totals.
type PageResult[T any] struct {
	Records      []T
	PageNumber   int
	PageSize     int
	TotalRecords int
	TotalPages   int
	OutOfRange   bool
}

// Collection serves the paginated and point-lookup read paths for one
// collection out of its cached view, falling back to the store only when it
// has to. It never writes the view key itself; misses are healed by the
// rebuilder, so a partial result can never masquerade as the full snapshot.
type Collection[T any] struct {
	rebuilder *Rebuilder[T]
	logger    zerolog.Logger
}

// NewCollection creates the read API over an existing rebuilder.
func NewCollection[T any](rebuilder *Rebuilder[T], logger zerolog.Logger) (*Collection[T], error) {
	if rebuilder == nil {
		return nil, fmt.Errorf("rebuilder cannot be nil")
	}
	return &Collection[T]{
		rebuilder: rebuilder,
		logger:    logger.With().Str("component", "Collection").Str("key", rebuilder.Key()).Logger(),
	}, nil
}

// Page returns one page of the collection, ordered by ID ascending.
// Both pageNumber and pageSize must be at least 1; anything else is a
// ValidationError. A pageNumber past the last page yields an OutOfRange
// result, not an error.
//
// On a cache miss the whole view is rebuilt (single-flight) and the page is
// served from the fresh view, so the snapshot and its count always come from
// the same rebuild.
func (c *Collection[T]) Page(ctx context.Context, pageNumber, pageSize int) (PageResult[T], error) {
	var zero PageResult[T]
	if pageNumber < 1 {
		return zero, &ValidationError{Field: "pageNumber", Message: "must be at least 1"}
	}
	if pageSize < 1 {
		return zero, &ValidationError{Field: "pageSize", Message: "must be at least 1"}
	}

	view, ok, err := c.rebuilder.Cached(ctx)
	if err != nil {
		// A cache-provider fault on the read path is not fatal: the store is
		// the system of record, so rebuild straight from it.
		c.logger.Warn().Err(err).Msg("Cache read failed, rebuilding from store.")
		ok = false
	}
	if !ok {
		view, err = c.rebuilder.Rebuild(ctx)
		if err != nil {
			return zero, err
		}
	}

	totalPages := (view.Total + pageSize - 1) / pageSize
	result := PageResult[T]{
		PageNumber:   pageNumber,
		PageSize:     pageSize,
		TotalRecords: view.Total,
		TotalPages:   totalPages,
	}
	if pageNumber > totalPages {
		result.OutOfRange = true
		return result, nil
	}

	records := view.Records
	// Views are published sorted; re-sort a copy if this one somehow is not,
	// so page boundaries stay reproducible. Never sort in place: the view is
	// shared by every concurrent reader.
	idOf := c.rebuilder.idOf
	if !sort.SliceIsSorted(records, func(i, j int) bool { return idOf(records[i]) < idOf(records[j]) }) {
		sorted := make([]T, len(records))
		copy(sorted, records)
		sort.Slice(sorted, func(i, j int) bool { return idOf(sorted[i]) < idOf(sorted[j]) })
		records = sorted
	}

	skip := (pageNumber - 1) * pageSize
	if skip > len(records) {
		skip = len(records)
	}
	end := skip + pageSize
	if end > len(records) {
		end = len(records)
	}
	result.Records = records[skip:end]
	return result, nil
}

// GetByID returns a single record. A cached view is scanned first; if no
// view is published at all, the lookup falls through to the store. A record
// missing from a published view also falls through, so a reader racing a
// just-committed create still finds the record.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, &ValidationError{Field: "id", Message: "cannot be empty"}
	}

	view, ok, err := c.rebuilder.Cached(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cache read failed, falling back to store.")
		ok = false
	}
	if ok {
		idOf := c.rebuilder.idOf
		for _, record := range view.Records {
			if idOf(record) == id {
				return record, nil
			}
		}
	}

	record, err := c.rebuilder.source.FindByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if c.rebuilder.sanitize != nil {
		record = c.rebuilder.sanitize(record)
	}
	return record, nil
}

// Count returns the collection size: the cached view's total when one is
// published, otherwise a live store count. A count-only miss does not
// publish anything, because a count may never be published without the
// snapshot it belongs to.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	view, ok, err := c.rebuilder.Cached(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cache read failed, counting from store.")
		ok = false
	}
	if ok {
		return view.Total, nil
	}
	return c.rebuilder.source.Count(ctx)
}
