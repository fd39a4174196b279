package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically releases provisional reservations whose payment
// never completed.
type Sweeper struct {
	service  *Service
	ttl      time.Duration
	interval time.Duration
	logger   *zerolog.Logger
}

func NewSweeper(service *Service, ttl, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{service: service, ttl: ttl, interval: interval, logger: logger}
}

// Start blocks until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if s.ttl <= 0 {
		s.logger.Info().Msg("Provisional reservation sweeper is disabled")
		return
	}
	s.logger.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("Provisional reservation sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.service.ExpireStale(ctx, s.ttl)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Sweep failed")
		}
		return
	}
	if n > 0 {
		s.logger.Info().Int("expired", n).Msg("Released abandoned reservations")
	}
}
