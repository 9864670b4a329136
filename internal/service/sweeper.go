package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tutorbook/internal/metrics"
)

// SweeperStore is the storage call the sweeper needs.
type SweeperStore interface {
	CompletePastBookings(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically marks booked occurrences whose end time has passed as
// completed, so stale rows never hold capacity and reports stay accurate.
type Sweeper struct {
	store    SweeperStore
	interval time.Duration
	logger   *zerolog.Logger
	now      func() time.Time
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(store SweeperStore, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled or Stop is
// called. It sweeps once immediately so a restart catches up right away.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("completion sweeper started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("completion sweeper stopped")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("completion sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) sweep(ctx context.Context) {
	swept, err := s.store.CompletePastBookings(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("completion sweep failed")
		return
	}
	if swept > 0 {
		metrics.AddBookingsSwept(float64(swept))
		s.logger.Info().Int64("count", swept).Msg("past bookings auto-completed")
	}
}
