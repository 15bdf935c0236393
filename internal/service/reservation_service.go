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

// SeriesResult is a successfully created recurring series. Occurrences holds
// every reservation in start order, the parent first. Capped tells the owner
// the expansion hit the hard cap rather than the rule's own termination.
type SeriesResult struct {
	Parent      *models.Reservation  `json:"parent"`
	Occurrences []models.Reservation `json:"occurrences"`
	Capped      bool                 `json:"capped"`
}

// OfferGrant records an offer made inside a freeing transaction, so the
// event and the expiry timer can be issued after the transaction commits.
type OfferGrant struct {
	Entry models.WaitlistEntry
}

// CapacityListener is told, inside the freeing transaction, that a blocking
// reservation released its window. Implemented by the waitlist manager and
// attached after construction; with no listener, freed windows simply go
// unoffered.
type CapacityListener interface {
	HandleCapacityFreed(tx repository.Tx, resourceID uint, start, end, now time.Time) (*OfferGrant, error)
	AnnounceOffer(ctx context.Context, grant *OfferGrant)
}

// Window is one busy span in a day schedule.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DaySchedule is the blocking occupancy of one resource on one local day.
type DaySchedule struct {
	ResourceID uint     `json:"resource_id"`
	Date       string   `json:"date"`
	Timezone   string   `json:"timezone"`
	Busy       []Window `json:"busy"`
}

type ReservationService interface {
	CreateSingle(ctx context.Context, resourceID, ownerID uint, start, end time.Time, notes string) (*models.Reservation, error)
	CreateRecurring(ctx context.Context, resourceID, ownerID uint, baseStart, baseEnd time.Time, rule *models.RecurrenceRule, notes string) (*SeriesResult, error)
	Cancel(ctx context.Context, id, actorID uint, reason string) (*models.Reservation, error)
	Activate(ctx context.Context, id, actorID uint) (*models.Reservation, error)
	Reject(ctx context.Context, id, actorID uint, reason string) (*models.Reservation, error)
	Get(ctx context.Context, id uint) (*models.Reservation, error)
	GetByReference(ctx context.Context, ref string) (*models.Reservation, error)
	ListForResource(ctx context.Context, resourceID uint, from, to time.Time, statuses []models.ReservationStatus) ([]models.Reservation, error)
	ListSeries(ctx context.Context, parentID uint) ([]models.Reservation, error)
	Resource(ctx context.Context, id uint) (*models.Resource, error)
	DaySchedule(ctx context.Context, resourceID uint, date string) (*DaySchedule, error)
	// ExpireElapsed transitions every blocking reservation whose end has
	// passed to expired, row by row. Sweeper entry point.
	ExpireElapsed(ctx context.Context, now time.Time) (int, error)
	SetCapacityListener(l CapacityListener)
}

type reservationService struct {
	store     repository.Store
	hours     HoursValidator
	conflicts ConflictChecker
	expander  RecurrenceExpander
	publisher EventPublisher
	schedules *cache.ScheduleCache
	capacity  CapacityListener
	logger    *zap.Logger
	now       func() time.Time
}

func NewReservationService(store repository.Store, publisher EventPublisher, schedules *cache.ScheduleCache, logger *zap.Logger) ReservationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reservationService{
		store:     store,
		publisher: publisher,
		schedules: schedules,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *reservationService) SetCapacityListener(l CapacityListener) {
	s.capacity = l
}

func (s *reservationService) CreateSingle(ctx context.Context, resourceID, ownerID uint, start, end time.Time, notes string) (*models.Reservation, error) {
	if err := validateInterval(start, end, s.now()); err != nil {
		return nil, err
	}

	res, err := s.resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, ErrResourceUnavailable
	}
	if err := s.hours.Validate(res, start, end, -1); err != nil {
		return nil, err
	}

	reservation := &models.Reservation{
		Reference:  uuid.NewString(),
		ResourceID: resourceID,
		OwnerID:    ownerID,
		StartAt:    start.UTC(),
		EndAt:      end.UTC(),
		Status:     initialStatus(res),
		Notes:      notes,
	}

	err = s.store.WithResourceLock(ctx, resourceID, func(tx repository.Tx) error {
		// Check and insert commit together; the row lock keeps a concurrent
		// create on the same resource from slipping between them.
		overlapping, err := s.conflicts.FindConflicts(tx, resourceID, reservation.StartAt, reservation.EndAt, 0)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return &ConflictError{
				ResourceID:  resourceID,
				Start:       reservation.StartAt,
				End:         reservation.EndAt,
				Overlapping: overlapping,
			}
		}
		return tx.CreateReservation(reservation)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	publish(s.publisher, s.logger, KeyReservationCreated,
		newReservationEvent("reservation_created", reservation, ownerID, s.now()))
	s.invalidateWindow(ctx, res, reservation.StartAt, reservation.EndAt)
	s.logger.Info("reservation created",
		zap.Uint("reservation_id", reservation.ID),
		zap.Uint("resource_id", resourceID),
		zap.String("status", string(reservation.Status)))
	return reservation, nil
}

func (s *reservationService) CreateRecurring(ctx context.Context, resourceID, ownerID uint, baseStart, baseEnd time.Time, rule *models.RecurrenceRule, notes string) (*SeriesResult, error) {
	if rule == nil {
		return nil, validationf("recurrence rule is required")
	}
	if err := validateInterval(baseStart, baseEnd, s.now()); err != nil {
		return nil, err
	}

	res, err := s.resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, ErrResourceUnavailable
	}

	expansion := s.expander.Expand(baseStart, baseEnd, rule, res.Location())
	occurrences := expansion.Occurrences
	if len(occurrences) == 0 {
		return nil, validationf("recurrence rule produces no occurrences")
	}
	for i := 1; i < len(occurrences); i++ {
		if occurrences[i].Start.Before(occurrences[i-1].End) {
			return nil, validationf("occurrences overlap each other: duration exceeds the recurrence step")
		}
	}
	for i, occ := range occurrences {
		if err := s.hours.Validate(res, occ.Start, occ.End, i); err != nil {
			return nil, err
		}
	}

	status := initialStatus(res)
	var created []models.Reservation
	var parent *models.Reservation

	err = s.store.WithResourceLock(ctx, resourceID, func(tx repository.Tx) error {
		// All-or-nothing: every occurrence is checked before anything is
		// written, so a conflict on any index leaves zero rows behind.
		var conflicts []OccurrenceConflict
		for i, occ := range occurrences {
			overlapping, err := s.conflicts.FindConflicts(tx, resourceID, occ.Start.UTC(), occ.End.UTC(), 0)
			if err != nil {
				return err
			}
			if len(overlapping) > 0 {
				conflicts = append(conflicts, OccurrenceConflict{
					Index:       i,
					Start:       occ.Start,
					End:         occ.End,
					Overlapping: overlapping,
				})
			}
		}
		if len(conflicts) > 0 {
			return &PartialConflictError{Total: len(occurrences), Conflicts: conflicts}
		}

		if err := tx.CreateRecurrenceRule(rule); err != nil {
			return err
		}

		parent = &models.Reservation{
			Reference:        uuid.NewString(),
			ResourceID:       resourceID,
			OwnerID:          ownerID,
			StartAt:          occurrences[0].Start.UTC(),
			EndAt:            occurrences[0].End.UTC(),
			Status:           status,
			Notes:            notes,
			RecurrenceRuleID: &rule.ID,
		}
		if err := tx.CreateReservation(parent); err != nil {
			return err
		}

		rest := make([]*models.Reservation, 0, len(occurrences)-1)
		for _, occ := range occurrences[1:] {
			parentID := parent.ID
			rest = append(rest, &models.Reservation{
				Reference:        uuid.NewString(),
				ResourceID:       resourceID,
				OwnerID:          ownerID,
				StartAt:          occ.Start.UTC(),
				EndAt:            occ.End.UTC(),
				Status:           status,
				Notes:            notes,
				RecurrenceRuleID: &rule.ID,
				ParentID:         &parentID,
			})
		}
		if len(rest) > 0 {
			if err := tx.CreateReservations(rest); err != nil {
				return err
			}
		}

		created = make([]models.Reservation, 0, len(occurrences))
		created = append(created, *parent)
		for _, r := range rest {
			created = append(created, *r)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	ev := newReservationEvent("reservation_created", parent, ownerID, s.now())
	ev.Occurrences = len(created)
	publish(s.publisher, s.logger, KeyReservationCreated, ev)
	for _, r := range created {
		s.invalidateWindow(ctx, res, r.StartAt, r.EndAt)
	}
	s.logger.Info("recurring series created",
		zap.Uint("parent_id", parent.ID),
		zap.Uint("resource_id", resourceID),
		zap.Int("occurrences", len(created)),
		zap.Bool("capped", expansion.Capped))

	return &SeriesResult{Parent: parent, Occurrences: created, Capped: expansion.Capped}, nil
}

func (s *reservationService) Cancel(ctx context.Context, id, actorID uint, reason string) (*models.Reservation, error) {
	current, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	// Cancelling an already-cancelled reservation is a no-op, not an error,
	// so client retries converge on the same terminal state.
	if current.Status == models.StatusCancelled {
		return current, nil
	}
	if current.Status == models.StatusExpired {
		return nil, fmt.Errorf("%w: reservation %d already expired", ErrInvalidState, id)
	}

	var (
		result       *models.Reservation
		grant        *OfferGrant
		transitioned bool
	)
	err = s.store.WithResourceLock(ctx, current.ResourceID, func(tx repository.Tx) error {
		r, err := tx.ReservationByID(id)
		if err != nil {
			return err
		}
		switch r.Status {
		case models.StatusCancelled:
			result = r
			return nil
		case models.StatusExpired:
			return fmt.Errorf("%w: reservation %d already expired", ErrInvalidState, id)
		}
		if err := tx.UpdateReservationStatus(id, models.StatusCancelled); err != nil {
			return err
		}
		r.Status = models.StatusCancelled
		result = r
		transitioned = true
		if s.capacity != nil {
			grant, err = s.capacity.HandleCapacityFreed(tx, r.ResourceID, r.StartAt, r.EndAt, s.now())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return result, nil
	}

	ev := newReservationEvent("reservation_cancelled", result, actorID, s.now())
	ev.Reason = reason
	publish(s.publisher, s.logger, KeyReservationCancelled, ev)
	if grant != nil && s.capacity != nil {
		s.capacity.AnnounceOffer(ctx, grant)
	}
	if res, rerr := s.store.GetResource(ctx, result.ResourceID); rerr == nil {
		s.invalidateWindow(ctx, res, result.StartAt, result.EndAt)
	}
	s.logger.Info("reservation cancelled",
		zap.Uint("reservation_id", id),
		zap.Uint("actor_id", actorID))
	return result, nil
}

func (s *reservationService) Activate(ctx context.Context, id, actorID uint) (*models.Reservation, error) {
	return s.resolveApproval(ctx, id, actorID, true, "")
}

func (s *reservationService) Reject(ctx context.Context, id, actorID uint, reason string) (*models.Reservation, error) {
	if reason == "" {
		reason = "rejected"
	}
	return s.resolveApproval(ctx, id, actorID, false, reason)
}

// resolveApproval finishes the review of a pending_approval reservation.
// Approval keeps the slot and flips it active; rejection cancels it and
// frees the window for the waitlist.
func (s *reservationService) resolveApproval(ctx context.Context, id, actorID uint, approve bool, reason string) (*models.Reservation, error) {
	current, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPendingApproval {
		return nil, fmt.Errorf("%w: reservation %d is %s, not pending approval",
			ErrInvalidState, id, current.Status)
	}

	target := models.StatusActive
	if !approve {
		target = models.StatusCancelled
	}

	var (
		result *models.Reservation
		grant  *OfferGrant
	)
	err = s.store.WithResourceLock(ctx, current.ResourceID, func(tx repository.Tx) error {
		r, err := tx.ReservationByID(id)
		if err != nil {
			return err
		}
		if r.Status != models.StatusPendingApproval {
			return fmt.Errorf("%w: reservation %d is %s, not pending approval",
				ErrInvalidState, id, r.Status)
		}
		if err := tx.UpdateReservationStatus(id, target); err != nil {
			return err
		}
		r.Status = target
		result = r
		if !approve && s.capacity != nil {
			grant, err = s.capacity.HandleCapacityFreed(tx, r.ResourceID, r.StartAt, r.EndAt, s.now())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if approve {
		publish(s.publisher, s.logger, KeyReservationActivated,
			newReservationEvent("reservation_activated", result, actorID, s.now()))
	} else {
		ev := newReservationEvent("reservation_cancelled", result, actorID, s.now())
		ev.Reason = reason
		publish(s.publisher, s.logger, KeyReservationCancelled, ev)
		if grant != nil && s.capacity != nil {
			s.capacity.AnnounceOffer(ctx, grant)
		}
		if res, rerr := s.store.GetResource(ctx, result.ResourceID); rerr == nil {
			s.invalidateWindow(ctx, res, result.StartAt, result.EndAt)
		}
	}
	s.logger.Info("approval resolved",
		zap.Uint("reservation_id", id),
		zap.Bool("approved", approve),
		zap.Uint("actor_id", actorID))
	return result, nil
}

func (s *reservationService) ExpireElapsed(ctx context.Context, now time.Time) (int, error) {
	elapsed, err := s.store.ElapsedReservations(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range elapsed {
		transitioned, err := s.expireOne(ctx, &elapsed[i], now)
		if err != nil {
			// One bad row must not abort the sweep.
			s.logger.Error("reservation expiry failed",
				zap.Uint("reservation_id", elapsed[i].ID),
				zap.Error(err))
			continue
		}
		if transitioned {
			expired++
		}
	}
	return expired, nil
}

func (s *reservationService) expireOne(ctx context.Context, candidate *models.Reservation, now time.Time) (bool, error) {
	var (
		result       *models.Reservation
		grant        *OfferGrant
		transitioned bool
	)
	err := s.store.WithResourceLock(ctx, candidate.ResourceID, func(tx repository.Tx) error {
		r, err := tx.ReservationByID(candidate.ID)
		if err != nil {
			return err
		}
		// An overlapping sweep or a cancel may have transitioned it already.
		if !r.Status.Blocks() || r.EndAt.After(now) {
			return nil
		}
		if err := tx.UpdateReservationStatus(r.ID, models.StatusExpired); err != nil {
			return err
		}
		r.Status = models.StatusExpired
		result = r
		transitioned = true
		if s.capacity != nil {
			grant, err = s.capacity.HandleCapacityFreed(tx, r.ResourceID, r.StartAt, r.EndAt, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || !transitioned {
		return false, err
	}

	publish(s.publisher, s.logger, KeyReservationExpired,
		newReservationEvent("reservation_expired", result, SystemActor, now))
	if grant != nil && s.capacity != nil {
		s.capacity.AnnounceOffer(ctx, grant)
	}
	if res, rerr := s.store.GetResource(ctx, result.ResourceID); rerr == nil {
		s.invalidateWindow(ctx, res, result.StartAt, result.EndAt)
	}
	return true, nil
}

func (s *reservationService) Get(ctx context.Context, id uint) (*models.Reservation, error) {
	return s.reservation(ctx, id)
}

func (s *reservationService) GetByReference(ctx context.Context, ref string) (*models.Reservation, error) {
	r, err := s.store.GetReservationByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *reservationService) ListForResource(ctx context.Context, resourceID uint, from, to time.Time, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	if !from.Before(to) {
		return nil, validationf("from must be before to")
	}
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.store.ListReservations(ctx, resourceID, from, to, statuses)
}

func (s *reservationService) ListSeries(ctx context.Context, parentID uint) ([]models.Reservation, error) {
	parent, err := s.reservation(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.RecurrenceRuleID == nil || parent.ParentID != nil {
		return nil, fmt.Errorf("%w: reservation %d is not a series parent", ErrInvalidState, parentID)
	}
	return s.store.ListSeries(ctx, parentID)
}

func (s *reservationService) Resource(ctx context.Context, id uint) (*models.Resource, error) {
	return s.resource(ctx, id)
}

func (s *reservationService) DaySchedule(ctx context.Context, resourceID uint, date string) (*DaySchedule, error) {
	res, err := s.resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	loc := res.Location()
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, validationf("invalid date %q, want YYYY-MM-DD", date)
	}

	if s.schedules != nil {
		var cached DaySchedule
		if s.schedules.Get(ctx, resourceID, date, &cached) {
			return &cached, nil
		}
	}

	rs, err := s.store.ListReservations(ctx, resourceID, day, day.AddDate(0, 0, 1), models.BlockingStatuses)
	if err != nil {
		return nil, err
	}
	busy := make([]Window, 0, len(rs))
	for _, r := range rs {
		busy = append(busy, Window{Start: r.StartAt, End: r.EndAt})
	}
	sched := &DaySchedule{
		ResourceID: resourceID,
		Date:       date,
		Timezone:   res.Timezone,
		Busy:       busy,
	}
	if s.schedules != nil {
		s.schedules.Set(ctx, resourceID, date, sched)
	}
	return sched, nil
}

func (s *reservationService) resource(ctx context.Context, id uint) (*models.Resource, error) {
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return res, nil
}

func (s *reservationService) reservation(ctx context.Context, id uint) (*models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *reservationService) invalidateWindow(ctx context.Context, res *models.Resource, start, end time.Time) {
	if s.schedules == nil {
		return
	}
	s.schedules.InvalidateDays(ctx, res.ID, dayKeys(start, end, res.Location()))
}

func validateInterval(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return validationf("start and end are required")
	}
	if !start.Before(end) {
		return validationf("start must be before end")
	}
	if start.Before(now) {
		return validationf("start must not be in the past")
	}
	return nil
}

func initialStatus(res *models.Resource) models.ReservationStatus {
	if res.RequiresApproval {
		return models.StatusPendingApproval
	}
	return models.StatusActive
}

// dayKeys lists the local calendar days a window touches, as cache keys.
func dayKeys(start, end time.Time, loc *time.Location) []string {
	localStart := start.In(loc)
	localEnd := end.In(loc)
	var keys []string
	day := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)
	for day.Before(localEnd) {
		keys = append(keys, day.Format("2006-01-02"))
		day = day.AddDate(0, 0, 1)
	}
	return keys
}
