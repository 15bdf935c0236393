package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

// MemoryStore is an in-process Store used by unit tests. It honors the same
// contract as the Postgres store: per-resource mutual exclusion and rollback
// of everything a failed lock closure wrote.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex

	resources    map[uint]*models.Resource
	reservations map[uint]*models.Reservation
	rules        map[uint]*models.RecurrenceRule
	waitlist     map[uint]*models.WaitlistEntry

	nextReservationID uint
	nextRuleID        uint
	nextEntryID       uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:        make(map[uint]*sync.Mutex),
		resources:    make(map[uint]*models.Resource),
		reservations: make(map[uint]*models.Reservation),
		rules:        make(map[uint]*models.RecurrenceRule),
		waitlist:     make(map[uint]*models.WaitlistEntry),
	}
}

// PutResource seeds or replaces a resource. Tests use it in place of the
// catalog consumer.
func (s *MemoryStore) PutResource(res *models.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[res.ID] = cloneResource(res)
}

func (s *MemoryStore) resourceLock(id uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) WithResourceLock(ctx context.Context, resourceID uint, fn func(Tx) error) error {
	l := s.resourceLock(resourceID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	if _, ok := s.resources[resourceID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(&memTx{s: s}); err != nil {
		s.mu.Lock()
		s.restoreLocked(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	reservations map[uint]*models.Reservation
	rules        map[uint]*models.RecurrenceRule
	waitlist     map[uint]*models.WaitlistEntry

	nextReservationID uint
	nextRuleID        uint
	nextEntryID       uint
}

func (s *MemoryStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		reservations:      make(map[uint]*models.Reservation, len(s.reservations)),
		rules:             make(map[uint]*models.RecurrenceRule, len(s.rules)),
		waitlist:          make(map[uint]*models.WaitlistEntry, len(s.waitlist)),
		nextReservationID: s.nextReservationID,
		nextRuleID:        s.nextRuleID,
		nextEntryID:       s.nextEntryID,
	}
	for id, r := range s.reservations {
		snap.reservations[id] = cloneReservation(r)
	}
	for id, rule := range s.rules {
		c := *rule
		snap.rules[id] = &c
	}
	for id, e := range s.waitlist {
		snap.waitlist[id] = cloneEntry(e)
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap memSnapshot) {
	s.reservations = snap.reservations
	s.rules = snap.rules
	s.waitlist = snap.waitlist
	s.nextReservationID = snap.nextReservationID
	s.nextRuleID = snap.nextRuleID
	s.nextEntryID = snap.nextEntryID
}

func (s *MemoryStore) GetResource(ctx context.Context, id uint) (*models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResource(res), nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReservation(r), nil
}

func (s *MemoryStore) GetReservationByReference(ctx context.Context, ref string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.Reference == ref {
			return cloneReservation(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListReservations(ctx context.Context, resourceID uint, from, to time.Time, statuses []models.ReservationStatus) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.ResourceID != resourceID || !r.Overlaps(from, to) {
			continue
		}
		if len(statuses) > 0 && !statusIn(r.Status, statuses) {
			continue
		}
		out = append(out, *cloneReservation(r))
	}
	sortReservations(out)
	return out, nil
}

func (s *MemoryStore) ListSeries(ctx context.Context, parentID uint) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.ID == parentID || (r.ParentID != nil && *r.ParentID == parentID) {
			out = append(out, *cloneReservation(r))
		}
	}
	sortReservations(out)
	return out, nil
}

func (s *MemoryStore) GetWaitlistEntry(ctx context.Context, id uint) (*models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) ListWaitlistForOwner(ctx context.Context, ownerID uint) ([]models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WaitlistEntry
	for _, e := range s.waitlist {
		if e.OwnerID == ownerID {
			out = append(out, *cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListWaitlistForResource(ctx context.Context, resourceID uint) ([]models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WaitlistEntry
	for _, e := range s.waitlist {
		if e.ResourceID == resourceID {
			out = append(out, *cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) ElapsedReservations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.Status.Blocks() && !r.EndAt.After(now) {
			out = append(out, *cloneReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) StaleOffers(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WaitlistEntry
	for _, e := range s.waitlist {
		if e.Status == models.WaitlistOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(now) {
			out = append(out, *cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SyncResource(ctx context.Context, res *models.Resource) error {
	s.PutResource(res)
	return nil
}

type memTx struct {
	s *MemoryStore
}

func (t *memTx) Resource(id uint) (*models.Resource, error) {
	return t.s.GetResource(context.Background(), id)
}

func (t *memTx) Overlapping(resourceID uint, start, end time.Time, excludeID uint) ([]models.Reservation, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.Reservation
	for _, r := range t.s.reservations {
		if r.ResourceID != resourceID || r.ID == excludeID {
			continue
		}
		if r.Status.Blocks() && r.Overlaps(start, end) {
			out = append(out, *cloneReservation(r))
		}
	}
	sortReservations(out)
	return out, nil
}

func (t *memTx) CreateReservation(r *models.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.createReservationLocked(r)
	return nil
}

func (t *memTx) CreateReservations(rs []*models.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, r := range rs {
		t.s.createReservationLocked(r)
	}
	return nil
}

func (s *MemoryStore) createReservationLocked(r *models.Reservation) {
	s.nextReservationID++
	r.ID = s.nextReservationID
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.reservations[r.ID] = cloneReservation(r)
}

func (t *memTx) CreateRecurrenceRule(rule *models.RecurrenceRule) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextRuleID++
	rule.ID = t.s.nextRuleID
	rule.CreatedAt = time.Now()
	c := *rule
	t.s.rules[rule.ID] = &c
	return nil
}

func (t *memTx) ReservationByID(id uint) (*models.Reservation, error) {
	return t.s.GetReservation(context.Background(), id)
}

func (t *memTx) UpdateReservationStatus(id uint, status models.ReservationStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) NextWaitlistPosition(resourceID uint) (uint, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var max uint
	for _, e := range t.s.waitlist {
		if e.ResourceID == resourceID && e.Position > max {
			max = e.Position
		}
	}
	return max + 1, nil
}

func (t *memTx) CreateWaitlistEntry(e *models.WaitlistEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextEntryID++
	e.ID = t.s.nextEntryID
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	t.s.waitlist[e.ID] = cloneEntry(e)
	return nil
}

func (t *memTx) WaitlistEntryByID(id uint) (*models.WaitlistEntry, error) {
	return t.s.GetWaitlistEntry(context.Background(), id)
}

func (t *memTx) WaitingEntries(resourceID uint) ([]models.WaitlistEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []models.WaitlistEntry
	for _, e := range t.s.waitlist {
		if e.ResourceID == resourceID && e.Status == models.WaitlistWaiting {
			out = append(out, *cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *memTx) SaveWaitlistEntry(e *models.WaitlistEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.waitlist[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = time.Now()
	t.s.waitlist[e.ID] = cloneEntry(e)
	return nil
}

func statusIn(s models.ReservationStatus, set []models.ReservationStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

func sortReservations(rs []models.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].StartAt.Equal(rs[j].StartAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].StartAt.Before(rs[j].StartAt)
	})
}

func cloneResource(res *models.Resource) *models.Resource {
	c := *res
	c.Hours = append([]models.BusinessHours(nil), res.Hours...)
	c.Blackouts = append([]models.BlackoutDate(nil), res.Blackouts...)
	return &c
}

func cloneReservation(r *models.Reservation) *models.Reservation {
	c := *r
	if r.RecurrenceRuleID != nil {
		v := *r.RecurrenceRuleID
		c.RecurrenceRuleID = &v
	}
	if r.ParentID != nil {
		v := *r.ParentID
		c.ParentID = &v
	}
	c.Resource = nil
	c.RecurrenceRule = nil
	return &c
}

func cloneEntry(e *models.WaitlistEntry) *models.WaitlistEntry {
	c := *e
	if e.OfferStart != nil {
		v := *e.OfferStart
		c.OfferStart = &v
	}
	if e.OfferEnd != nil {
		v := *e.OfferEnd
		c.OfferEnd = &v
	}
	if e.OfferedAt != nil {
		v := *e.OfferedAt
		c.OfferedAt = &v
	}
	if e.OfferExpiresAt != nil {
		v := *e.OfferExpiresAt
		c.OfferExpiresAt = &v
	}
	if e.ReservationID != nil {
		v := *e.ReservationID
		c.ReservationID = &v
	}
	return &c
}
