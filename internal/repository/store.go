package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

// ErrNotFound is returned by every lookup that misses, regardless of the
// backing store. Callers match it with errors.Is.
var ErrNotFound = errors.New("record not found")

// Store is the engine's persistence contract. Plain reads take no locks.
// Every mutation happens inside WithResourceLock, which serializes the
// check-then-insert section per resource so conflict checks and the inserts
// that depend on them commit as one atomic unit.
type Store interface {
	// WithResourceLock runs fn while holding the mutual exclusion for one
	// resource. A non-nil error from fn rolls back everything fn did.
	// Returns ErrNotFound when the resource does not exist.
	WithResourceLock(ctx context.Context, resourceID uint, fn func(Tx) error) error

	GetResource(ctx context.Context, id uint) (*models.Resource, error)
	GetReservation(ctx context.Context, id uint) (*models.Reservation, error)
	GetReservationByReference(ctx context.Context, ref string) (*models.Reservation, error)
	// ListReservations returns reservations on a resource whose window
	// intersects [from, to), limited to the given statuses (all when empty),
	// ordered by start time.
	ListReservations(ctx context.Context, resourceID uint, from, to time.Time, statuses []models.ReservationStatus) ([]models.Reservation, error)
	// ListSeries returns a series parent and all its occurrences ordered by
	// start time. The id must be the parent reservation's id.
	ListSeries(ctx context.Context, parentID uint) ([]models.Reservation, error)
	GetWaitlistEntry(ctx context.Context, id uint) (*models.WaitlistEntry, error)
	ListWaitlistForOwner(ctx context.Context, ownerID uint) ([]models.WaitlistEntry, error)
	ListWaitlistForResource(ctx context.Context, resourceID uint) ([]models.WaitlistEntry, error)

	// ElapsedReservations returns blocking reservations whose end has passed.
	// StaleOffers returns offered entries whose deadline has passed. Both are
	// unlocked sweep scans; the sweeper re-checks each row under its
	// resource lock before transitioning it.
	ElapsedReservations(ctx context.Context, now time.Time) ([]models.Reservation, error)
	StaleOffers(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error)

	// SyncResource upserts a catalog resource and replaces its hours and
	// blackout children. Used only by the catalog consumer; the engine never
	// invents resources on its own.
	SyncResource(ctx context.Context, res *models.Resource) error
}

// Tx is the mutation surface available while a resource lock is held.
type Tx interface {
	Resource(id uint) (*models.Resource, error)

	// Overlapping returns blocking reservations intersecting the half-open
	// window [start, end), excluding excludeID when non-zero.
	Overlapping(resourceID uint, start, end time.Time, excludeID uint) ([]models.Reservation, error)
	CreateReservation(r *models.Reservation) error
	CreateReservations(rs []*models.Reservation) error
	CreateRecurrenceRule(rule *models.RecurrenceRule) error
	ReservationByID(id uint) (*models.Reservation, error)
	UpdateReservationStatus(id uint, status models.ReservationStatus) error

	// NextWaitlistPosition returns one past the highest position ever issued
	// for the resource. Positions of terminal entries stay burned.
	NextWaitlistPosition(resourceID uint) (uint, error)
	CreateWaitlistEntry(e *models.WaitlistEntry) error
	WaitlistEntryByID(id uint) (*models.WaitlistEntry, error)
	// WaitingEntries returns the resource's waiting entries in position order.
	WaitingEntries(resourceID uint) ([]models.WaitlistEntry, error)
	SaveWaitlistEntry(e *models.WaitlistEntry) error
}
