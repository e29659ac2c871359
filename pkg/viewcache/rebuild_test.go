package viewcache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-usercache/pkg/cachestore"
	"github.com/illmade-knight/go-usercache/pkg/viewcache"
)

// item is the record type used across the viewcache tests.
type item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"secret,omitempty"`
}

func itemID(i item) string { return i.ID }

func stripSecret(i item) item {
	i.Secret = ""
	return i
}

// mockGateway is a test double for the docstore.Gateway interface.
type mockGateway[T any] struct {
	FindAllFunc  func(ctx context.Context) ([]T, error)
	FindByIDFunc func(ctx context.Context, id string) (T, error)
	CountFunc    func(ctx context.Context) (int, error)
}

func (m *mockGateway[T]) FindAll(ctx context.Context) ([]T, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return nil, fmt.Errorf("mock gateway FindAll not implemented")
}

func (m *mockGateway[T]) FindByID(ctx context.Context, id string) (T, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	var zero T
	return zero, fmt.Errorf("mock gateway FindByID not implemented")
}

func (m *mockGateway[T]) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, fmt.Errorf("mock gateway Count not implemented")
}

func (m *mockGateway[T]) Insert(_ context.Context, _ T) (T, error) {
	var zero T
	return zero, fmt.Errorf("mock gateway Insert not implemented")
}

func (m *mockGateway[T]) Update(_ context.Context, _ string, _ T) (T, error) {
	var zero T
	return zero, fmt.Errorf("mock gateway Update not implemented")
}

func (m *mockGateway[T]) DeleteByID(_ context.Context, _ string) error {
	return fmt.Errorf("mock gateway DeleteByID not implemented")
}

func (m *mockGateway[T]) DeleteMany(_ context.Context, _ string, _ any) (int, error) {
	return 0, fmt.Errorf("mock gateway DeleteMany not implemented")
}

func (m *mockGateway[T]) Close() error { return nil }

func newItemRebuilder(t *testing.T, source *mockGateway[item], views cachestore.KeyValueStore[viewcache.View[item]]) *viewcache.Rebuilder[item] {
	t.Helper()
	rebuilder, err := viewcache.NewRebuilder(
		&viewcache.RebuilderConfig{Key: "items"},
		source,
		views,
		itemID,
		stripSecret,
		zerolog.Nop(),
	)
	require.NoError(t, err)
	return rebuilder
}

func TestRebuilder_Rebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Publishes a sorted, sanitized view", func(t *testing.T) {
		// Arrange
		source := &mockGateway[item]{
			FindAllFunc: func(ctx context.Context) ([]item, error) {
				// Deliberately unsorted, with a secret attached.
				return []item{
					{ID: "03", Name: "carol", Secret: "hash"},
					{ID: "01", Name: "alice", Secret: "hash"},
					{ID: "02", Name: "bob", Secret: "hash"},
				}, nil
			},
		}
		views := cachestore.NewInMemoryStore[viewcache.View[item]]()
		rebuilder := newItemRebuilder(t, source, views)

		// Act
		view, err := rebuilder.Rebuild(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 3, view.Total)
		assert.Equal(t, []string{"01", "02", "03"}, []string{view.Records[0].ID, view.Records[1].ID, view.Records[2].ID})
		for _, record := range view.Records {
			assert.Empty(t, record.Secret, "secrets must never enter a published view")
		}

		published, ok, err := views.Get(ctx, "items")
		require.NoError(t, err)
		require.True(t, ok, "view should be published to the cache store")
		assert.Equal(t, view.Total, published.Total)
	})

	t.Run("Failed read keeps the prior view", func(t *testing.T) {
		// Arrange
		sourceErr := errors.New("store is down")
		failNext := &atomic.Bool{}
		source := &mockGateway[item]{
			FindAllFunc: func(ctx context.Context) ([]item, error) {
				if failNext.Load() {
					return nil, sourceErr
				}
				return []item{{ID: "01", Name: "alice"}}, nil
			},
		}
		views := cachestore.NewInMemoryStore[viewcache.View[item]]()
		rebuilder := newItemRebuilder(t, source, views)

		_, err := rebuilder.Rebuild(ctx)
		require.NoError(t, err)

		// Act
		failNext.Store(true)
		_, err = rebuilder.Rebuild(ctx)

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, sourceErr)

		prior, ok, getErr := views.Get(ctx, "items")
		require.NoError(t, getErr)
		require.True(t, ok, "a failed rebuild must not discard the prior view")
		assert.Equal(t, 1, prior.Total)
	})

	t.Run("Concurrent rebuilds share one store read", func(t *testing.T) {
		// Arrange
		var reads atomic.Int32
		release := make(chan struct{})
		source := &mockGateway[item]{
			FindAllFunc: func(ctx context.Context) ([]item, error) {
				reads.Add(1)
				<-release
				return []item{{ID: "01", Name: "alice"}}, nil
			},
		}
		views := cachestore.NewInMemoryStore[viewcache.View[item]]()
		rebuilder := newItemRebuilder(t, source, views)

		// Act: start one rebuild, then pile more callers on while the store
		// read is blocked.
		const callers = 5
		var wg, started sync.WaitGroup
		results := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			started.Add(1)
			go func(slot int) {
				defer wg.Done()
				started.Done()
				_, results[slot] = rebuilder.Rebuild(ctx)
			}(i)
		}

		// Wait for every caller to be underway and the store read to be
		// blocked before releasing it.
		started.Wait()
		require.Eventually(t, func() bool {
			return reads.Load() >= 1
		}, time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		// Assert
		for _, err := range results {
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), reads.Load(), "concurrent rebuilds should share a single store read")
	})

	t.Run("Invalidate discards the published view", func(t *testing.T) {
		// Arrange
		source := &mockGateway[item]{
			FindAllFunc: func(ctx context.Context) ([]item, error) {
				return []item{{ID: "01"}}, nil
			},
		}
		views := cachestore.NewInMemoryStore[viewcache.View[item]]()
		rebuilder := newItemRebuilder(t, source, views)
		_, err := rebuilder.Rebuild(ctx)
		require.NoError(t, err)

		// Act
		require.NoError(t, rebuilder.Invalidate(ctx))

		// Assert
		_, ok, err := rebuilder.Cached(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
