package models

import "time"

type ReservationStatus string

const (
	StatusPendingApproval ReservationStatus = "pending_approval"
	StatusActive          ReservationStatus = "active"
	StatusCancelled       ReservationStatus = "cancelled"
	StatusExpired         ReservationStatus = "expired"
)

// BlockingStatuses are the statuses that occupy a resource's calendar. Only
// reservations in one of these states participate in conflict checks.
var BlockingStatuses = []ReservationStatus{StatusPendingApproval, StatusActive}

// Blocks reports whether a reservation in this status occupies its slot.
func (s ReservationStatus) Blocks() bool {
	return s == StatusPendingApproval || s == StatusActive
}

// Reservation is a half-open booking [StartAt, EndAt) of one resource.
// Recurring series store the rule on every row; the first occurrence is the
// series parent and later occurrences point back at it through ParentID.
// Rows are never deleted, only status-transitioned.
type Reservation struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	Reference  string            `gorm:"type:varchar(36);uniqueIndex;not null" json:"reference"`
	ResourceID uint              `gorm:"index;not null" json:"resource_id"`
	OwnerID    uint              `gorm:"index;not null" json:"owner_id"`
	StartAt    time.Time         `gorm:"index;not null" json:"start_at"`
	EndAt      time.Time         `gorm:"not null" json:"end_at"`
	Status     ReservationStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	Notes      string            `json:"notes,omitempty"`

	RecurrenceRuleID *uint `gorm:"index" json:"recurrence_rule_id,omitempty"`
	ParentID         *uint `gorm:"index" json:"parent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Resource       *Resource       `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
	RecurrenceRule *RecurrenceRule `gorm:"foreignKey:RecurrenceRuleID" json:"recurrence_rule,omitempty"`
}

// Overlaps reports whether the reservation's window intersects [start, end).
// Half-open semantics: a window ending exactly when another starts is not an
// overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartAt.Before(end) && start.Before(r.EndAt)
}
