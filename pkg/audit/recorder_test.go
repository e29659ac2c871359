package audit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-usercache/pkg/audit"
)

// mockInserter records every batch it receives.
type mockInserter struct {
	mu        sync.Mutex
	batches   [][]*audit.MutationEvent
	InsertErr error
}

func (m *mockInserter) InsertBatch(_ context.Context, items []*audit.MutationEvent) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := append([]*audit.MutationEvent(nil), items...)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *mockInserter) Close() error { return nil }

func (m *mockInserter) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *mockInserter) totalRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.batches {
		total += len(b)
	}
	return total
}

func event(i int) *audit.MutationEvent {
	return &audit.MutationEvent{
		Collection: "users",
		Op:         "create",
		RecordID:   fmt.Sprintf("u%d", i),
		OccurredAt: time.Now().UTC(),
	}
}

func TestRecorder(t *testing.T) {
	t.Run("Flushes when the batch size is reached", func(t *testing.T) {
		// Arrange
		inserter := &mockInserter{}
		recorder := audit.NewRecorder(audit.RecorderConfig{
			BatchSize:     3,
			FlushInterval: time.Hour,
		}, inserter, zerolog.Nop())
		recorder.Start(context.Background())
		t.Cleanup(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = recorder.Stop(stopCtx)
		})

		// Act
		for i := 0; i < 3; i++ {
			recorder.Record(event(i))
		}

		// Assert
		require.Eventually(t, func() bool {
			return inserter.batchCount() == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 3, inserter.totalRows())
	})

	t.Run("Flushes a partial batch on the interval", func(t *testing.T) {
		// Arrange
		inserter := &mockInserter{}
		recorder := audit.NewRecorder(audit.RecorderConfig{
			BatchSize:     100,
			FlushInterval: 20 * time.Millisecond,
		}, inserter, zerolog.Nop())
		recorder.Start(context.Background())
		t.Cleanup(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = recorder.Stop(stopCtx)
		})

		// Act
		recorder.Record(event(1))

		// Assert
		require.Eventually(t, func() bool {
			return inserter.totalRows() == 1
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("Stop flushes the remaining buffer", func(t *testing.T) {
		// Arrange
		inserter := &mockInserter{}
		recorder := audit.NewRecorder(audit.RecorderConfig{
			BatchSize:     100,
			FlushInterval: time.Hour,
		}, inserter, zerolog.Nop())
		recorder.Start(context.Background())
		for i := 0; i < 5; i++ {
			recorder.Record(event(i))
		}

		// Act
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, recorder.Stop(stopCtx))

		// Assert
		assert.Equal(t, 5, inserter.totalRows())
	})

	t.Run("Record after Stop drops the event instead of panicking", func(t *testing.T) {
		// Arrange
		inserter := &mockInserter{}
		recorder := audit.NewRecorder(audit.RecorderConfig{
			BatchSize:     10,
			FlushInterval: time.Hour,
		}, inserter, zerolog.Nop())
		recorder.Start(context.Background())

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, recorder.Stop(stopCtx))

		// Act: the recorder is shut down, so the event can only be dropped.
		recorder.Record(event(1))

		// Assert
		assert.Zero(t, inserter.totalRows())
	})

	t.Run("Record never blocks when the buffer is full", func(t *testing.T) {
		// Arrange: never start the worker, so nothing drains the channel.
		inserter := &mockInserter{}
		recorder := audit.NewRecorder(audit.RecorderConfig{
			BatchSize:     1,
			FlushInterval: time.Hour,
		}, inserter, zerolog.Nop())

		// Act / Assert: overruns are dropped, the call returns promptly.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 10; i++ {
				recorder.Record(event(i))
			}
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Record blocked on a full buffer")
		}
	})
}
