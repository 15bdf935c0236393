package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/repository"
)

// --- Stub scheduler ---

type scheduledExpiry struct {
	entryID uint
	at      time.Time
}

type stubScheduler struct {
	scheduled []scheduledExpiry
	err       error
}

func (s *stubScheduler) ScheduleOfferExpiry(entryID uint, at time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, scheduledExpiry{entryID: entryID, at: at})
	return nil
}

// --- Fixture ---

// waitlistFixture wires a reservation service and a waitlist service the way
// the serve command does, sharing one store and one publisher, with both
// clocks pinned to testNow.
type waitlistFixture struct {
	store *repository.MemoryStore
	rsvc  *reservationService
	wsvc  *waitlistService
	pub   *stubPublisher
	sched *stubScheduler
}

func newWaitlistFixture(res *models.Resource) *waitlistFixture {
	store := repository.NewMemoryStore()
	store.PutResource(res)
	pub := &stubPublisher{}
	sched := &stubScheduler{}

	rsvc := NewReservationService(store, pub, nil, zap.NewNop()).(*reservationService)
	rsvc.now = func() time.Time { return testNow }
	wsvc := NewWaitlistService(store, pub, sched, nil, 0, zap.NewNop()).(*waitlistService)
	wsvc.now = func() time.Time { return testNow }
	rsvc.SetCapacityListener(wsvc)

	return &waitlistFixture{store: store, rsvc: rsvc, wsvc: wsvc, pub: pub, sched: sched}
}

func (f *waitlistFixture) entry(t *testing.T, id uint) *models.WaitlistEntry {
	t.Helper()
	e, err := f.store.GetWaitlistEntry(context.Background(), id)
	assert.NoError(t, err)
	return e
}

// --- Join ---

func TestJoin_PositionsIncreaseAndAreNeverReused(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e1, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)
	e2, err := f.wsvc.Join(ctx, 1, 3, at(10), at(11), false)
	assert.NoError(t, err)
	e3, err := f.wsvc.Join(ctx, 1, 4, at(10), at(11), true)
	assert.NoError(t, err)

	assert.Equal(t, uint(1), e1.Position)
	assert.Equal(t, uint(2), e2.Position)
	assert.Equal(t, uint(3), e3.Position)

	// Departures do not free positions for reuse.
	_, err = f.wsvc.Leave(ctx, e3.ID, 4)
	assert.NoError(t, err)
	e4, err := f.wsvc.Join(ctx, 1, 5, at(10), at(11), false)
	assert.NoError(t, err)
	assert.Equal(t, uint(4), e4.Position)
}

func TestJoin_Validation(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	var ve *ValidationError
	_, err := f.wsvc.Join(ctx, 1, 2, at(7), at(9), false)
	assert.ErrorAs(t, err, &ve)

	_, err = f.wsvc.Join(ctx, 99, 2, at(10), at(11), false)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestJoin_UnavailableResource(t *testing.T) {
	res := openResource(1)
	res.Available = false
	f := newWaitlistFixture(res)

	_, err := f.wsvc.Join(context.Background(), 1, 2, at(10), at(11), false)

	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

// --- Offers on freed capacity ---

func TestCancel_OffersFreedWindowInPositionOrder(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	r, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	e1, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)
	e2, err := f.wsvc.Join(ctx, 1, 3, at(10), at(11), false)
	assert.NoError(t, err)

	_, err = f.rsvc.Cancel(ctx, r.ID, 1, "")
	assert.NoError(t, err)

	first := f.entry(t, e1.ID)
	assert.Equal(t, models.WaitlistOffered, first.Status)
	assert.True(t, first.OfferStart.Equal(at(10)))
	assert.True(t, first.OfferEnd.Equal(at(11)))
	assert.True(t, first.OfferedAt.Equal(testNow))
	assert.True(t, first.OfferExpiresAt.Equal(testNow.Add(DefaultOfferWindow)))

	// One offer per freed window; the second entry keeps waiting.
	second := f.entry(t, e2.ID)
	assert.Equal(t, models.WaitlistWaiting, second.Status)

	assert.Contains(t, f.pub.keys(), KeyWaitlistOffer)
	assert.Len(t, f.sched.scheduled, 1)
	assert.Equal(t, e1.ID, f.sched.scheduled[0].entryID)
	assert.True(t, f.sched.scheduled[0].at.Equal(testNow.Add(DefaultOfferWindow)))
}

func TestCancel_SkipsEntriesStillBlockedElsewhere(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	r, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	// A second booking keeps the tail of position 1's desire occupied.
	_, err = f.rsvc.CreateSingle(ctx, 1, 5, at(11), at(12), "")
	assert.NoError(t, err)

	// Position 1 wants [9, 12) and is not flexible; [11, 12) stays booked.
	e1, err := f.wsvc.Join(ctx, 1, 2, at(9), at(12), false)
	assert.NoError(t, err)
	// Position 2 is flexible and only needs 30 minutes.
	e2, err := f.wsvc.Join(ctx, 1, 3, at(14), at(14).Add(30*time.Minute), true)
	assert.NoError(t, err)

	_, err = f.rsvc.Cancel(ctx, r.ID, 1, "")
	assert.NoError(t, err)

	assert.Equal(t, models.WaitlistWaiting, f.entry(t, e1.ID).Status)

	flexible := f.entry(t, e2.ID)
	assert.Equal(t, models.WaitlistOffered, flexible.Status)
	// A flexible entry gets the earliest usable span of its desired length.
	assert.True(t, flexible.OfferStart.Equal(at(10)))
	assert.True(t, flexible.OfferEnd.Equal(at(10).Add(30*time.Minute)))
}

func TestCancel_OffersDesireOverhangingFreedWindow(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	r, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	// The desire overlaps the booking but runs past its end; joining is the
	// only option while [10:30, 11) is taken.
	e, err := f.wsvc.Join(ctx, 1, 2, at(10).Add(30*time.Minute), at(11).Add(30*time.Minute), false)
	assert.NoError(t, err)

	_, err = f.rsvc.Cancel(ctx, r.ID, 1, "")
	assert.NoError(t, err)

	// Nothing blocks [10:30, 11:30) once the booking is gone, so the offer
	// covers the full desire even though it overhangs the freed hour.
	got := f.entry(t, e.ID)
	assert.Equal(t, models.WaitlistOffered, got.Status)
	assert.True(t, got.OfferStart.Equal(at(10).Add(30*time.Minute)))
	assert.True(t, got.OfferEnd.Equal(at(11).Add(30*time.Minute)))
}

func TestReject_FreesWindowToWaitlist(t *testing.T) {
	res := openResource(1)
	res.RequiresApproval = true
	f := newWaitlistFixture(res)
	ctx := context.Background()

	r, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	e1, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)

	_, err = f.rsvc.Reject(ctx, r.ID, 42, "double booked")
	assert.NoError(t, err)

	assert.Equal(t, models.WaitlistOffered, f.entry(t, e1.ID).Status)
}

func TestExpireElapsed_DoesNotOfferSpentWindow(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	_, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	e1, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), true)
	assert.NoError(t, err)

	n, err := f.rsvc.ExpireElapsed(ctx, at(11))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	// The freed window has fully elapsed; offering it would be useless.
	assert.Equal(t, models.WaitlistWaiting, f.entry(t, e1.ID).Status)
}

func TestHandleCapacityFreed_FlexibleStartsNoEarlierThanNow(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e, err := f.wsvc.Join(ctx, 1, 2, at(14), at(14).Add(30*time.Minute), true)
	assert.NoError(t, err)

	// Freed window began an hour ago but still has 30 usable minutes.
	err = f.store.WithResourceLock(ctx, 1, func(tx repository.Tx) error {
		grant, err := f.wsvc.HandleCapacityFreed(tx, 1, at(7), testNow.Add(30*time.Minute), testNow)
		assert.NoError(t, err)
		assert.NotNil(t, grant)
		assert.True(t, grant.Entry.OfferStart.Equal(testNow))
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, e.ID).Status)
}

func TestHandleCapacityFreed_FlexibleSpanOutgrowsFreedWindow(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	// Two hours wanted, one hour freed; the second hour is open anyway.
	e, err := f.wsvc.Join(ctx, 1, 2, at(14), at(16), true)
	assert.NoError(t, err)

	err = f.store.WithResourceLock(ctx, 1, func(tx repository.Tx) error {
		grant, err := f.wsvc.HandleCapacityFreed(tx, 1, at(10), at(11), testNow)
		assert.NoError(t, err)
		assert.NotNil(t, grant)
		return nil
	})
	assert.NoError(t, err)

	got := f.entry(t, e.ID)
	assert.Equal(t, models.WaitlistOffered, got.Status)
	assert.True(t, got.OfferStart.Equal(at(10)))
	assert.True(t, got.OfferEnd.Equal(at(12)))
}

func TestHandleCapacityFreed_FlexibleBlockedPastFreedWindow(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e, err := f.wsvc.Join(ctx, 1, 2, at(14), at(14).Add(30*time.Minute), true)
	assert.NoError(t, err)
	// The span would run [now, now+30m), but its second half is booked.
	_, err = f.rsvc.CreateSingle(ctx, 1, 3, testNow.Add(15*time.Minute), testNow.Add(45*time.Minute), "")
	assert.NoError(t, err)

	err = f.store.WithResourceLock(ctx, 1, func(tx repository.Tx) error {
		grant, err := f.wsvc.HandleCapacityFreed(tx, 1, at(7), testNow.Add(15*time.Minute), testNow)
		assert.NoError(t, err)
		assert.Nil(t, grant)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, models.WaitlistWaiting, f.entry(t, e.ID).Status)
}

func TestHandleCapacityFreed_RespectsOperatingHours(t *testing.T) {
	res := openResource(1)
	res.Hours = []models.BusinessHours{
		{ResourceID: 1, Weekday: int(time.Monday), OpenMinute: 9 * 60, CloseMinute: 12 * 60},
	}
	f := newWaitlistFixture(res)
	ctx := context.Background()

	r, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	// Position 1's desire runs past the noon close.
	e1, err := f.wsvc.Join(ctx, 1, 2, at(10).Add(30*time.Minute), at(12).Add(30*time.Minute), false)
	assert.NoError(t, err)
	e2, err := f.wsvc.Join(ctx, 1, 3, at(10), at(11), false)
	assert.NoError(t, err)

	_, err = f.rsvc.Cancel(ctx, r.ID, 1, "")
	assert.NoError(t, err)

	// The scan passes over the closed-hours candidate to the next entry.
	assert.Equal(t, models.WaitlistWaiting, f.entry(t, e1.ID).Status)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, e2.ID).Status)
}

// --- Accept ---

// offeredEntry books a window, joins the waitlist and cancels the booking,
// leaving the entry holding an offer for [at(10), at(11)).
func offeredEntry(t *testing.T, f *waitlistFixture, ownerID uint) *models.WaitlistEntry {
	t.Helper()
	ctx := context.Background()
	r, err := f.rsvc.CreateSingle(ctx, 1, 1, at(10), at(11), "")
	assert.NoError(t, err)
	e, err := f.wsvc.Join(ctx, 1, ownerID, at(10), at(11), false)
	assert.NoError(t, err)
	_, err = f.rsvc.Cancel(ctx, r.ID, 1, "")
	assert.NoError(t, err)
	got := f.entry(t, e.ID)
	assert.Equal(t, models.WaitlistOffered, got.Status)
	return got
}

func TestAccept_Success(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()
	e := offeredEntry(t, f, 2)

	r, err := f.wsvc.Accept(ctx, e.ID, 2)

	assert.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, models.StatusActive, r.Status)
	assert.Equal(t, uint(2), r.OwnerID)
	assert.True(t, r.StartAt.Equal(at(10)))
	assert.True(t, r.EndAt.Equal(at(11)))

	accepted := f.entry(t, e.ID)
	assert.Equal(t, models.WaitlistAccepted, accepted.Status)
	if assert.NotNil(t, accepted.ReservationID) {
		assert.Equal(t, r.ID, *accepted.ReservationID)
	}
	assert.Contains(t, f.pub.keys(), KeyWaitlistAccepted)

	// The accepted reservation blocks the window like any other.
	_, err = f.rsvc.CreateSingle(ctx, 1, 9, at(10), at(11), "")
	var ce *ConflictError
	assert.ErrorAs(t, err, &ce)
}

func TestAccept_PendingOnApprovalResource(t *testing.T) {
	res := openResource(1)
	res.RequiresApproval = true
	f := newWaitlistFixture(res)
	e := offeredEntry(t, f, 2)

	r, err := f.wsvc.Accept(context.Background(), e.ID, 2)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, r.Status)
}

func TestAccept_OwnerMismatchHidesEntry(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	e := offeredEntry(t, f, 2)

	_, err := f.wsvc.Accept(context.Background(), e.ID, 999)

	assert.ErrorIs(t, err, ErrWaitlistEntryNotFound)
}

func TestAccept_WithoutOffer(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)

	_, err = f.wsvc.Accept(ctx, e.ID, 2)

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAccept_AtDeadlineFails(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	e := offeredEntry(t, f, 2)

	// The deadline instant itself is too late.
	f.wsvc.now = func() time.Time { return testNow.Add(DefaultOfferWindow) }
	_, err := f.wsvc.Accept(context.Background(), e.ID, 2)

	assert.ErrorIs(t, err, ErrOfferExpired)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, e.ID).Status)
}

func TestAccept_JustBeforeDeadlineSucceeds(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	e := offeredEntry(t, f, 2)

	f.wsvc.now = func() time.Time { return testNow.Add(DefaultOfferWindow - time.Nanosecond) }
	r, err := f.wsvc.Accept(context.Background(), e.ID, 2)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, r.Status)
}

func TestAccept_StolenWindowRevertsToWaiting(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()
	e := offeredEntry(t, f, 2)

	// An offer does not hold the window; a direct booking can take it first.
	_, err := f.rsvc.CreateSingle(ctx, 1, 9, at(10), at(11), "")
	assert.NoError(t, err)

	_, err = f.wsvc.Accept(ctx, e.ID, 2)

	var ce *ConflictError
	assert.ErrorAs(t, err, &ce)

	// The entry keeps its position and goes back to waiting for the next
	// window; the offer fields are cleared.
	got := f.entry(t, e.ID)
	assert.Equal(t, models.WaitlistWaiting, got.Status)
	assert.Equal(t, e.Position, got.Position)
	assert.Nil(t, got.OfferStart)
	assert.Nil(t, got.OfferEnd)
	assert.Nil(t, got.OfferedAt)
	assert.Nil(t, got.OfferExpiresAt)
}

// --- Leave ---

func TestLeave_PassesOpenOfferToNextEntry(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()
	e1 := offeredEntry(t, f, 2)
	e2, err := f.wsvc.Join(ctx, 1, 3, at(10), at(11), false)
	assert.NoError(t, err)

	left, err := f.wsvc.Leave(ctx, e1.ID, 2)

	assert.NoError(t, err)
	assert.Equal(t, models.WaitlistCancelled, left.Status)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, e2.ID).Status)
}

func TestLeave_Idempotent(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)

	_, err = f.wsvc.Leave(ctx, e.ID, 2)
	assert.NoError(t, err)

	again, err := f.wsvc.Leave(ctx, e.ID, 2)
	assert.NoError(t, err)
	assert.Equal(t, models.WaitlistCancelled, again.Status)
}

func TestLeave_AcceptedEntryCannotLeave(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()
	e := offeredEntry(t, f, 2)

	_, err := f.wsvc.Accept(ctx, e.ID, 2)
	assert.NoError(t, err)

	_, err = f.wsvc.Leave(ctx, e.ID, 2)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// --- Offer expiry ---

func TestExpireOffer_PassesWindowOn(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()
	e1 := offeredEntry(t, f, 2)
	e2, err := f.wsvc.Join(ctx, 1, 3, at(10), at(11), false)
	assert.NoError(t, err)

	deadline := testNow.Add(DefaultOfferWindow)
	done, err := f.wsvc.ExpireOffer(ctx, e1.ID, deadline)

	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, models.WaitlistExpired, f.entry(t, e1.ID).Status)

	// The forfeited window moves to the next matching entry with a fresh
	// deadline.
	next := f.entry(t, e2.ID)
	assert.Equal(t, models.WaitlistOffered, next.Status)
	assert.True(t, next.OfferExpiresAt.Equal(deadline.Add(DefaultOfferWindow)))

	assert.Contains(t, f.pub.keys(), KeyWaitlistExpired)
}

func TestExpireOffer_BeforeDeadlineIsNoop(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	e := offeredEntry(t, f, 2)

	done, err := f.wsvc.ExpireOffer(context.Background(), e.ID, testNow.Add(time.Minute))

	assert.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, e.ID).Status)
}

func TestExpireOffer_NonOfferedIsNoop(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)

	done, err := f.wsvc.ExpireOffer(ctx, e.ID, testNow.Add(time.Hour))
	assert.NoError(t, err)
	assert.False(t, done)

	_, err = f.wsvc.ExpireOffer(ctx, 404, testNow)
	assert.ErrorIs(t, err, ErrWaitlistEntryNotFound)
}

func TestExpireStaleOffers(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	f.store.PutResource(openResource(2))
	ctx := context.Background()

	stale := offeredEntry(t, f, 2)

	// A second offer on another resource, granted later, is still fresh at
	// sweep time.
	r2, err := f.rsvc.CreateSingle(ctx, 2, 1, at(12), at(13), "")
	assert.NoError(t, err)
	freshEntry, err := f.wsvc.Join(ctx, 2, 3, at(12), at(13), false)
	assert.NoError(t, err)
	f.rsvc.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	_, err = f.rsvc.Cancel(ctx, r2.ID, 1, "")
	assert.NoError(t, err)

	n, err := f.wsvc.ExpireStaleOffers(ctx, testNow.Add(DefaultOfferWindow))

	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.WaitlistExpired, f.entry(t, stale.ID).Status)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, freshEntry.ID).Status)
}

func TestGet_OwnerScoped(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	e, err := f.wsvc.Join(ctx, 1, 2, at(10), at(11), false)
	assert.NoError(t, err)

	got, err := f.wsvc.Get(ctx, e.ID, 2)
	assert.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = f.wsvc.Get(ctx, e.ID, 3)
	assert.ErrorIs(t, err, ErrWaitlistEntryNotFound)
}

func TestListForResource_OrderedByPosition(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	ctx := context.Background()

	for owner := uint(2); owner <= 4; owner++ {
		_, err := f.wsvc.Join(ctx, 1, owner, at(10), at(11), false)
		assert.NoError(t, err)
	}

	list, err := f.wsvc.ListForResource(ctx, 1)
	assert.NoError(t, err)
	assert.Len(t, list, 3)
	for i := range list {
		assert.Equal(t, uint(i+1), list[i].Position)
	}

	_, err = f.wsvc.ListForResource(ctx, 99)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestScheduleFailureDoesNotBlockOffer(t *testing.T) {
	f := newWaitlistFixture(openResource(1))
	f.sched.err = errors.New("queue down")

	// The offer still lands; only the precise timer is lost and the sweeper
	// covers for it.
	e := offeredEntry(t, f, 2)
	assert.Equal(t, models.WaitlistOffered, f.entry(t, e.ID).Status)
	assert.Empty(t, f.sched.scheduled)
}
