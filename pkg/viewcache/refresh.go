package viewcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher is anything that can rebuild its cached state from the store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshServiceConfig holds configuration for the RefreshService.
type RefreshServiceConfig struct {
	// Interval between refresh ticks. Defaults to 5 minutes.
	Interval time.Duration
	// TickTimeout bounds one refresh pass. Defaults to 1 minute.
	TickTimeout time.Duration
	// RefreshOnStart runs one refresh immediately when the service starts,
	// warming the cache before the first request arrives.
	RefreshOnStart bool
}

// RefreshService rebuilds the cached views on a fixed wall-clock interval,
// bounding the maximum staleness window independent of mutation traffic. It
// invokes the same rebuild routine as mutation-triggered invalidation, so a
// tick interleaving with a mutation can only ever replace a view with
// another complete one.
type RefreshService struct {
	cfg       RefreshServiceConfig
	refresher Refresher
	logger    zerolog.Logger

	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewRefreshService creates a new RefreshService.
func NewRefreshService(cfg RefreshServiceConfig, refresher Refresher, logger zerolog.Logger) (*RefreshService, error) {
	if refresher == nil {
		return nil, fmt.Errorf("refresher cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 1 * time.Minute
	}
	return &RefreshService{
		cfg:       cfg,
		refresher: refresher,
		logger:    logger.With().Str("service", "RefreshService").Logger(),
	}, nil
}

// Start begins the periodic refresh loop.
func (s *RefreshService) Start(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Starting refresh service...")
	s.shutdownCtx, s.shutdownFunc = context.WithCancel(ctx)

	if s.cfg.RefreshOnStart {
		s.tick(s.shutdownCtx)
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Msg("Refresh service started.")
	return nil
}

// Stop gracefully shuts down the refresh loop, respecting the provided
// context's deadline.
func (s *RefreshService) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping refresh service...")
	if s.shutdownFunc != nil {
		s.shutdownFunc()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Refresh service stopped.")
		return nil
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for refresh loop to stop.")
		return ctx.Err()
	}
}

// loop runs refresh ticks until shutdown.
func (s *RefreshService) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCtx.Done():
			s.logger.Info().Msg("Refresh loop shutting down.")
			return
		case <-ticker.C:
			s.tick(s.shutdownCtx)
		}
	}
}

// tick runs one bounded refresh pass. A failed tick leaves the prior views
// in place; the next tick tries again.
func (s *RefreshService) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	if err := s.refresher.Refresh(tickCtx); err != nil {
		s.logger.Error().Err(err).Msg("Refresh tick failed, keeping prior views.")
		return
	}
	s.logger.Debug().Msg("Refresh tick complete.")
}
