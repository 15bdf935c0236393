package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/repository"
	"github.com/sylvester-francis/Resource-Reserver-sub000/pkg/cache"
)

// DefaultOfferWindow is how long an offer stays claimable when no explicit
// window is configured.
const DefaultOfferWindow = 15 * time.Minute

// OfferScheduler arranges a one-shot expiry check for an offer at its
// deadline. Satisfied by the asynq-backed task client; when nil, the
// periodic sweeper alone retires stale offers.
type OfferScheduler interface {
	ScheduleOfferExpiry(entryID uint, at time.Time) error
}

type WaitlistService interface {
	CapacityListener

	Join(ctx context.Context, resourceID, ownerID uint, desiredStart, desiredEnd time.Time, flexible bool) (*models.WaitlistEntry, error)
	Accept(ctx context.Context, entryID, ownerID uint) (*models.Reservation, error)
	Leave(ctx context.Context, entryID, ownerID uint) (*models.WaitlistEntry, error)
	Get(ctx context.Context, entryID, ownerID uint) (*models.WaitlistEntry, error)
	ListForOwner(ctx context.Context, ownerID uint) ([]models.WaitlistEntry, error)
	ListForResource(ctx context.Context, resourceID uint) ([]models.WaitlistEntry, error)
	// ExpireOffer retires one stale offer and passes its window to the next
	// matching entry. Reports whether this call performed the transition.
	ExpireOffer(ctx context.Context, entryID uint, now time.Time) (bool, error)
	// ExpireStaleOffers sweeps every overdue offer. Sweeper entry point.
	ExpireStaleOffers(ctx context.Context, now time.Time) (int, error)
}

type waitlistService struct {
	store       repository.Store
	hours       HoursValidator
	conflicts   ConflictChecker
	publisher   EventPublisher
	scheduler   OfferScheduler
	schedules   *cache.ScheduleCache
	offerWindow time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewWaitlistService(store repository.Store, publisher EventPublisher, scheduler OfferScheduler, schedules *cache.ScheduleCache, offerWindow time.Duration, logger *zap.Logger) WaitlistService {
	if offerWindow <= 0 {
		offerWindow = DefaultOfferWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &waitlistService{
		store:       store,
		publisher:   publisher,
		scheduler:   scheduler,
		schedules:   schedules,
		offerWindow: offerWindow,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *waitlistService) Join(ctx context.Context, resourceID, ownerID uint, desiredStart, desiredEnd time.Time, flexible bool) (*models.WaitlistEntry, error) {
	if err := validateInterval(desiredStart, desiredEnd, s.now()); err != nil {
		return nil, err
	}
	res, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	if !res.Available {
		return nil, ErrResourceUnavailable
	}

	entry := &models.WaitlistEntry{
		ResourceID:   resourceID,
		OwnerID:      ownerID,
		Status:       models.WaitlistWaiting,
		DesiredStart: desiredStart.UTC(),
		DesiredEnd:   desiredEnd.UTC(),
		Flexible:     flexible,
	}
	err = s.store.WithResourceLock(ctx, resourceID, func(tx repository.Tx) error {
		// Position assignment shares the resource lock, so positions are
		// strictly increasing and never handed out twice.
		pos, err := tx.NextWaitlistPosition(resourceID)
		if err != nil {
			return err
		}
		entry.Position = pos
		return tx.CreateWaitlistEntry(entry)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	s.logger.Info("waitlist joined",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("resource_id", resourceID),
		zap.Uint("position", entry.Position))
	return entry, nil
}

// HandleCapacityFreed walks waiting entries in position order and grants at
// most one offer. The freed window is the trigger, not the boundary: each
// candidate is checked against the whole current schedule, so an offer may
// cover a desired interval that extends past the freed window when the rest
// of it is open. Runs inside the freeing transaction; the caller announces
// the returned grant after commit.
func (s *waitlistService) HandleCapacityFreed(tx repository.Tx, resourceID uint, start, end, now time.Time) (*OfferGrant, error) {
	if !end.After(now) {
		// The freed window is entirely in the past; nobody can use it.
		return nil, nil
	}

	waiting, err := tx.WaitingEntries(resourceID)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	res, err := tx.Resource(resourceID)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, nil
	}

	for i := range waiting {
		e := &waiting[i]
		offerStart, offerEnd, ok := candidateFor(e, start, end, now)
		if !ok {
			continue
		}
		// The candidate must be bookable right now: free of blocking
		// reservations and inside the resource's operating hours.
		conflict, err := s.conflicts.HasConflict(tx, resourceID, offerStart, offerEnd, 0)
		if err != nil {
			return nil, err
		}
		if conflict || s.hours.Validate(res, offerStart, offerEnd, -1) != nil {
			continue
		}
		offeredAt := now
		expiry := now.Add(s.offerWindow)
		e.Status = models.WaitlistOffered
		e.OfferStart = &offerStart
		e.OfferEnd = &offerEnd
		e.OfferedAt = &offeredAt
		e.OfferExpiresAt = &expiry
		if err := tx.SaveWaitlistEntry(e); err != nil {
			return nil, err
		}
		// One offer per freed window keeps queue order fair; later entries
		// wait for this offer to resolve.
		return &OfferGrant{Entry: *e}, nil
	}
	return nil, nil
}

// candidateFor picks the window an entry would be offered for a freed
// opportunity. An exact entry is offered its desired interval when that
// interval touches the freed window and has not fully elapsed; a flexible
// entry is offered a span of its desired duration anchored at the freed
// window's start, clamped forward to now. Whether the candidate is actually
// bookable is the caller's check.
func candidateFor(e *models.WaitlistEntry, freedStart, freedEnd, now time.Time) (time.Time, time.Time, bool) {
	if e.Flexible {
		from := freedStart
		if from.Before(now) {
			from = now
		}
		return from, from.Add(e.DesiredEnd.Sub(e.DesiredStart)), true
	}
	if !e.DesiredEnd.After(now) {
		return time.Time{}, time.Time{}, false
	}
	if !intervalsOverlap(e.DesiredStart, e.DesiredEnd, freedStart, freedEnd) {
		return time.Time{}, time.Time{}, false
	}
	return e.DesiredStart, e.DesiredEnd, true
}

// AnnounceOffer publishes the offer event and schedules its expiry. Called
// after the granting transaction commits.
func (s *waitlistService) AnnounceOffer(ctx context.Context, grant *OfferGrant) {
	if grant == nil {
		return
	}
	entry := grant.Entry
	publish(s.publisher, s.logger, KeyWaitlistOffer,
		newWaitlistEvent("waitlist_offer", &entry, SystemActor, s.now()))
	if s.scheduler != nil && entry.OfferExpiresAt != nil {
		if err := s.scheduler.ScheduleOfferExpiry(entry.ID, *entry.OfferExpiresAt); err != nil {
			s.logger.Warn("offer expiry task not scheduled, sweeper will retire it",
				zap.Uint("entry_id", entry.ID),
				zap.Error(err))
		}
	}
	s.logger.Info("waitlist offer granted",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("resource_id", entry.ResourceID),
		zap.Uint("position", entry.Position),
		zap.Timep("expires_at", entry.OfferExpiresAt))
}

func (s *waitlistService) Accept(ctx context.Context, entryID, ownerID uint) (*models.Reservation, error) {
	entry, err := s.entryForOwner(ctx, entryID, ownerID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.WaitlistOffered {
		return nil, fmt.Errorf("%w: entry %d has no open offer", ErrInvalidState, entryID)
	}
	if !entry.OfferOpen(s.now()) {
		return nil, fmt.Errorf("%w: closed at %s", ErrOfferExpired,
			entry.OfferExpiresAt.Format(time.RFC3339))
	}

	var (
		reservation *models.Reservation
		accepted    *models.WaitlistEntry
		conflictErr error
	)
	err = s.store.WithResourceLock(ctx, entry.ResourceID, func(tx repository.Tx) error {
		e, err := tx.WaitlistEntryByID(entryID)
		if err != nil {
			return err
		}
		if e.Status != models.WaitlistOffered {
			return fmt.Errorf("%w: entry %d has no open offer", ErrInvalidState, entryID)
		}
		// Deadline is enforced here, at accept time, not only by the
		// sweeper. now < expiry must hold strictly: accepting exactly at
		// the deadline fails.
		if !e.OfferOpen(s.now()) {
			return fmt.Errorf("%w: closed at %s", ErrOfferExpired,
				e.OfferExpiresAt.Format(time.RFC3339))
		}
		res, err := tx.Resource(e.ResourceID)
		if err != nil {
			return err
		}
		if !res.Available {
			return ErrResourceUnavailable
		}

		start, end := *e.OfferStart, *e.OfferEnd
		overlapping, err := s.conflicts.FindConflicts(tx, e.ResourceID, start, end, 0)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			// A regular booking claimed the window first. The entry keeps
			// its position and goes back to waiting; committing that revert
			// is why this path returns nil instead of the conflict.
			e.Status = models.WaitlistWaiting
			e.OfferStart = nil
			e.OfferEnd = nil
			e.OfferedAt = nil
			e.OfferExpiresAt = nil
			if err := tx.SaveWaitlistEntry(e); err != nil {
				return err
			}
			conflictErr = &ConflictError{
				ResourceID:  e.ResourceID,
				Start:       start,
				End:         end,
				Overlapping: overlapping,
			}
			return nil
		}

		reservation = &models.Reservation{
			Reference:  uuid.NewString(),
			ResourceID: e.ResourceID,
			OwnerID:    e.OwnerID,
			StartAt:    start.UTC(),
			EndAt:      end.UTC(),
			Status:     initialStatus(res),
		}
		if err := tx.CreateReservation(reservation); err != nil {
			return err
		}
		e.Status = models.WaitlistAccepted
		e.ReservationID = &reservation.ID
		if err := tx.SaveWaitlistEntry(e); err != nil {
			return err
		}
		accepted = e
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	if conflictErr != nil {
		return nil, conflictErr
	}

	now := s.now()
	publish(s.publisher, s.logger, KeyWaitlistAccepted,
		newWaitlistEvent("waitlist_accepted", accepted, ownerID, now))
	publish(s.publisher, s.logger, KeyReservationCreated,
		newReservationEvent("reservation_created", reservation, ownerID, now))
	if res, rerr := s.store.GetResource(ctx, reservation.ResourceID); rerr == nil && s.schedules != nil {
		s.schedules.InvalidateDays(ctx, res.ID, dayKeys(reservation.StartAt, reservation.EndAt, res.Location()))
	}
	s.logger.Info("waitlist offer accepted",
		zap.Uint("entry_id", entryID),
		zap.Uint("reservation_id", reservation.ID))
	return reservation, nil
}

func (s *waitlistService) Leave(ctx context.Context, entryID, ownerID uint) (*models.WaitlistEntry, error) {
	entry, err := s.entryForOwner(ctx, entryID, ownerID)
	if err != nil {
		return nil, err
	}
	switch entry.Status {
	case models.WaitlistAccepted:
		return nil, fmt.Errorf("%w: entry %d was already accepted", ErrInvalidState, entryID)
	case models.WaitlistCancelled, models.WaitlistExpired:
		return entry, nil
	}

	var (
		result *models.WaitlistEntry
		grant  *OfferGrant
	)
	err = s.store.WithResourceLock(ctx, entry.ResourceID, func(tx repository.Tx) error {
		e, err := tx.WaitlistEntryByID(entryID)
		if err != nil {
			return err
		}
		switch e.Status {
		case models.WaitlistAccepted:
			return fmt.Errorf("%w: entry %d was already accepted", ErrInvalidState, entryID)
		case models.WaitlistCancelled, models.WaitlistExpired:
			result = e
			return nil
		}

		var offerStart, offerEnd time.Time
		hadOffer := e.Status == models.WaitlistOffered && e.OfferStart != nil && e.OfferEnd != nil
		if hadOffer {
			offerStart, offerEnd = *e.OfferStart, *e.OfferEnd
		}
		e.Status = models.WaitlistCancelled
		if err := tx.SaveWaitlistEntry(e); err != nil {
			return err
		}
		result = e
		if hadOffer {
			// A surrendered offer passes its window to the next in line.
			grant, err = s.HandleCapacityFreed(tx, e.ResourceID, offerStart, offerEnd, s.now())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.AnnounceOffer(ctx, grant)
	s.logger.Info("waitlist entry cancelled", zap.Uint("entry_id", entryID))
	return result, nil
}

func (s *waitlistService) ExpireOffer(ctx context.Context, entryID uint, now time.Time) (bool, error) {
	entry, err := s.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrWaitlistEntryNotFound
		}
		return false, err
	}
	if entry.Status != models.WaitlistOffered {
		return false, nil
	}

	var (
		expired      *models.WaitlistEntry
		grant        *OfferGrant
		transitioned bool
	)
	err = s.store.WithResourceLock(ctx, entry.ResourceID, func(tx repository.Tx) error {
		e, err := tx.WaitlistEntryByID(entryID)
		if err != nil {
			return err
		}
		// Accept, leave or a concurrent sweep may have resolved it already;
		// an early-firing timer simply finds the deadline not yet reached.
		if e.Status != models.WaitlistOffered || e.OfferOpen(now) {
			return nil
		}
		hasWindow := e.OfferStart != nil && e.OfferEnd != nil
		var offerStart, offerEnd time.Time
		if hasWindow {
			offerStart, offerEnd = *e.OfferStart, *e.OfferEnd
		}
		e.Status = models.WaitlistExpired
		if err := tx.SaveWaitlistEntry(e); err != nil {
			return err
		}
		expired = e
		transitioned = true
		if hasWindow {
			grant, err = s.HandleCapacityFreed(tx, e.ResourceID, offerStart, offerEnd, now)
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	publish(s.publisher, s.logger, KeyWaitlistExpired,
		newWaitlistEvent("waitlist_expired", expired, SystemActor, now))
	s.AnnounceOffer(ctx, grant)
	s.logger.Info("waitlist offer expired",
		zap.Uint("entry_id", entryID),
		zap.Bool("passed_on", grant != nil))
	return true, nil
}

func (s *waitlistService) ExpireStaleOffers(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.StaleOffers(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range stale {
		done, err := s.ExpireOffer(ctx, e.ID, now)
		if err != nil {
			// One bad row must not abort the sweep.
			s.logger.Error("offer expiry failed",
				zap.Uint("entry_id", e.ID),
				zap.Error(err))
			continue
		}
		if done {
			count++
		}
	}
	return count, nil
}

func (s *waitlistService) Get(ctx context.Context, entryID, ownerID uint) (*models.WaitlistEntry, error) {
	return s.entryForOwner(ctx, entryID, ownerID)
}

func (s *waitlistService) ListForOwner(ctx context.Context, ownerID uint) ([]models.WaitlistEntry, error) {
	return s.store.ListWaitlistForOwner(ctx, ownerID)
}

func (s *waitlistService) ListForResource(ctx context.Context, resourceID uint) ([]models.WaitlistEntry, error) {
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return s.store.ListWaitlistForResource(ctx, resourceID)
}

// entryForOwner loads an entry and hides other owners' entries behind
// not-found, matching how unknown ids are reported.
func (s *waitlistService) entryForOwner(ctx context.Context, entryID, ownerID uint) (*models.WaitlistEntry, error) {
	e, err := s.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, ErrWaitlistEntryNotFound
	}
	return e, nil
}
