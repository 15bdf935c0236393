package models

import "time"

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistOffered   WaitlistStatus = "offered"
	WaitlistAccepted  WaitlistStatus = "accepted"
	WaitlistExpired   WaitlistStatus = "expired"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

// WaitlistEntry is one owner's place in line for a resource. Position is
// assigned once at join time, strictly increases per resource, and is never
// reassigned or reused, so relative order is stable across any number of
// offers, expiries and departures.
type WaitlistEntry struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ResourceID uint           `gorm:"index:idx_waitlist_resource_position,unique" json:"resource_id"`
	OwnerID    uint           `gorm:"index;not null" json:"owner_id"`
	Position   uint           `gorm:"index:idx_waitlist_resource_position,unique;not null" json:"position"`
	Status     WaitlistStatus `gorm:"type:varchar(15);index;not null" json:"status"`

	// The interval the owner wants. A non-flexible entry only matches a freed
	// window that contains it; a flexible entry matches any freed window at
	// least as long as the desired duration.
	DesiredStart time.Time `gorm:"not null" json:"desired_start"`
	DesiredEnd   time.Time `gorm:"not null" json:"desired_end"`
	Flexible     bool      `gorm:"not null;default:false" json:"flexible"`

	// The concrete window granted while the entry is offered.
	OfferStart     *time.Time `json:"offer_start,omitempty"`
	OfferEnd       *time.Time `json:"offer_end,omitempty"`
	OfferedAt      *time.Time `json:"offered_at,omitempty"`
	OfferExpiresAt *time.Time `gorm:"index" json:"offer_expires_at,omitempty"`

	// Set when the entry is accepted and its offer becomes a reservation.
	ReservationID *uint `json:"reservation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OfferOpen reports whether the entry holds an offer that is still claimable
// at the given instant. The deadline itself is past it: accepting exactly at
// OfferExpiresAt fails.
func (e *WaitlistEntry) OfferOpen(now time.Time) bool {
	return e.Status == WaitlistOffered && e.OfferExpiresAt != nil && now.Before(*e.OfferExpiresAt)
}
