package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

var (
	ErrResourceNotFound      = errors.New("resource not found")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrResourceUnavailable   = errors.New("resource is not available for booking")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrOfferExpired          = errors.New("waitlist offer has expired")
)

// ValidationError rejects a malformed request before any locking happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports that a requested window overlaps existing blocking
// reservations. Overlapping carries the specific rows so callers can show
// what is in the way.
type ConflictError struct {
	ResourceID  uint
	Start       time.Time
	End         time.Time
	Overlapping []models.Reservation
}

func (e *ConflictError) Error() string {
	if len(e.Overlapping) == 0 {
		return fmt.Sprintf("window %s to %s conflicts with an existing reservation",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	first := e.Overlapping[0]
	return fmt.Sprintf("window %s to %s overlaps reservation %d (%s to %s)",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339),
		first.ID, first.StartAt.Format(time.RFC3339), first.EndAt.Format(time.RFC3339))
}

// OccurrenceConflict names one occurrence of a recurring series that could
// not be placed, by its zero-based index in the expansion.
type OccurrenceConflict struct {
	Index       int                  `json:"index"`
	Start       time.Time            `json:"start"`
	End         time.Time            `json:"end"`
	Overlapping []models.Reservation `json:"overlapping"`
}

// PartialConflictError rejects an entire recurring series because one or more
// occurrences conflict. No reservation from the series is written.
type PartialConflictError struct {
	Total     int
	Conflicts []OccurrenceConflict
}

func (e *PartialConflictError) Error() string {
	idx := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		idx[i] = strconv.Itoa(c.Index)
	}
	return fmt.Sprintf("%d of %d occurrences conflict (indices %s); series rejected",
		len(e.Conflicts), e.Total, strings.Join(idx, ", "))
}

// Indices returns the conflicting occurrence indices in ascending order.
func (e *PartialConflictError) Indices() []int {
	out := make([]int, len(e.Conflicts))
	for i, c := range e.Conflicts {
		out[i] = c.Index
	}
	return out
}

// BusinessHoursError rejects a window that falls outside a resource's
// operating hours or touches a blackout date. Occurrence is the zero-based
// index within a recurring expansion, or -1 for a single reservation.
type BusinessHoursError struct {
	ResourceID uint
	Start      time.Time
	End        time.Time
	Occurrence int
	Reason     string
}

func (e *BusinessHoursError) Error() string {
	if e.Occurrence >= 0 {
		return fmt.Sprintf("occurrence %d (%s to %s): %s",
			e.Occurrence, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Reason)
	}
	return fmt.Sprintf("window %s to %s: %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Reason)
}
