package service

import (
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/repository"
)

// intervalsOverlap implements the half-open overlap rule: [aStart, aEnd) and
// [bStart, bEnd) intersect iff aStart < bEnd and bStart < aEnd. Back-to-back
// windows sharing a boundary instant do not overlap.
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ConflictChecker decides whether a candidate window collides with blocking
// reservations. It has no state and no side effects; callers run it inside
// the same resource lock as the insert that depends on its answer.
type ConflictChecker struct{}

// FindConflicts returns every blocking reservation on the resource that
// overlaps [start, end), excluding excludeID when non-zero so a reschedule
// can ignore its own row.
func (ConflictChecker) FindConflicts(tx repository.Tx, resourceID uint, start, end time.Time, excludeID uint) ([]models.Reservation, error) {
	return tx.Overlapping(resourceID, start, end, excludeID)
}

// HasConflict reports whether any blocking reservation overlaps the window.
func (c ConflictChecker) HasConflict(tx repository.Tx, resourceID uint, start, end time.Time, excludeID uint) (bool, error) {
	found, err := c.FindConflicts(tx, resourceID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}
