package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RecorderConfig holds configuration for the Recorder.
type RecorderConfig struct {
	BatchSize     int
	FlushInterval time.Duration // How often to flush a partial batch.
	InsertTimeout time.Duration // The timeout for a single flush operation.
}

// Recorder collects mutation events into batches and hands them to a
// DataBatchInserter. Record never blocks the mutation path: if the buffer is
// full the event is dropped and counted in the log.
type Recorder struct {
	cfg       RecorderConfig
	inserter  DataBatchInserter[MutationEvent]
	logger    zerolog.Logger
	inputChan chan *MutationEvent
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a new Recorder.
func NewRecorder(cfg RecorderConfig, inserter DataBatchInserter[MutationEvent], logger zerolog.Logger) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 15 * time.Second
	}
	return &Recorder{
		cfg:       cfg,
		inserter:  inserter,
		logger:    logger.With().Str("component", "AuditRecorder").Logger(),
		inputChan: make(chan *MutationEvent, cfg.BatchSize*2),
	}
}

// Start begins the batching worker.
func (r *Recorder) Start(ctx context.Context) {
	r.logger.Info().
		Int("batch_size", r.cfg.BatchSize).
		Dur("flush_interval", r.cfg.FlushInterval).
		Msg("Starting audit recorder worker...")
	r.wg.Add(1)
	go r.worker(ctx)
}

// Stop gracefully shuts down the Recorder, flushing any buffered events. It
// respects the provided context's deadline. Record calls arriving after Stop
// drop their event instead of panicking on the closed channel.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info().Msg("Stopping audit recorder...")
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.inputChan)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info().Msg("Audit recorder worker stopped gracefully.")
	case <-ctx.Done():
		r.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for audit recorder worker to stop.")
		return ctx.Err()
	}

	if err := r.inserter.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Error closing underlying audit inserter.")
	}
	r.logger.Info().Msg("Audit recorder stopped.")
	return nil
}

// Record enqueues one event without blocking. Events that arrive while the
// buffer is full, or after Stop, are dropped and counted in the log.
func (r *Recorder) Record(event *MutationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn().Str("collection", event.Collection).Str("op", event.Op).Msg("Audit recorder stopped, dropping event.")
		return
	}
	select {
	case r.inputChan <- event:
	default:
		r.logger.Warn().Str("collection", event.Collection).Str("op", event.Op).Msg("Audit buffer full, dropping event.")
	}
}

// worker collects events into a batch and flushes it on size or interval.
func (r *Recorder) worker(ctx context.Context) {
	defer r.wg.Done()
	batch := make([]*MutationEvent, 0, r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The service is shutting down, flush any remaining events.
			r.flush(context.Background(), batch)
			return

		case event, ok := <-r.inputChan:
			if !ok {
				r.flush(context.Background(), batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(ctx, batch)
				batch = make([]*MutationEvent, 0, r.cfg.BatchSize)
				ticker.Reset(r.cfg.FlushInterval)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(ctx, batch)
				batch = make([]*MutationEvent, 0, r.cfg.BatchSize)
			}
		}
	}
}

// flush sends the current batch to the inserter.
func (r *Recorder) flush(ctx context.Context, batch []*MutationEvent) {
	if len(batch) == 0 {
		return
	}

	insertCtx, cancel := context.WithTimeout(ctx, r.cfg.InsertTimeout)
	defer cancel()

	if err := r.inserter.InsertBatch(insertCtx, batch); err != nil {
		r.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to flush audit batch.")
		return
	}
	r.logger.Debug().Int("batch_size", len(batch)).Msg("Audit batch flushed.")
}
