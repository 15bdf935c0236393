package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

// DefaultInterval is used when no sweep interval is configured.
const DefaultInterval = time.Minute

// Sweeper periodically retires elapsed reservations and overdue waitlist
// offers. It is a liveness mechanism, not the enforcement point: accept-time
// checks already reject stale offers, so a second sweeper instance or an
// overlapping run only finds rows that are no-ops.
type Sweeper struct {
	reservations service.ReservationService
	waitlist     service.WaitlistService
	interval     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

func New(reservations service.ReservationService, waitlist service.WaitlistService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		reservations: reservations,
		waitlist:     waitlist,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Run ticks until the context is cancelled. The first sweep fires
// immediately so a restart catches up without waiting a full interval.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one sweep. Each half logs and moves on when it fails; a
// broken row or a transient store error never stops the other half.
func (s *Sweeper) Tick(ctx context.Context) {
	now := s.now()

	expired, err := s.reservations.ExpireElapsed(ctx, now)
	if err != nil {
		s.logger.Error("reservation sweep failed", zap.Error(err))
	}

	offers, err := s.waitlist.ExpireStaleOffers(ctx, now)
	if err != nil {
		s.logger.Error("offer sweep failed", zap.Error(err))
	}

	if expired > 0 || offers > 0 {
		s.logger.Info("sweep completed",
			zap.Int("reservations_expired", expired),
			zap.Int("offers_expired", offers))
	} else {
		s.logger.Debug("sweep completed, nothing due")
	}
}
