package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

// EventPublisher pushes engine events onto the reservations topic exchange.
// Satisfied by the rabbitmq publisher; a nil publisher disables emission.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Routing keys for the reservations exchange. Downstream notification,
// webhook and audit consumers bind whichever subset they care about.
const (
	KeyReservationCreated   = "reservation.created"
	KeyReservationActivated = "reservation.activated"
	KeyReservationCancelled = "reservation.cancelled"
	KeyReservationExpired   = "reservation.expired"
	KeyWaitlistOffer        = "waitlist.offer"
	KeyWaitlistAccepted     = "waitlist.accepted"
	KeyWaitlistExpired      = "waitlist.expired"
)

// SystemActor marks transitions performed by the engine itself, such as
// sweeper expirations, rather than by a caller.
const SystemActor uint = 0

// ReservationEvent is the payload for all reservation.* keys.
type ReservationEvent struct {
	Type          string                   `json:"type"`
	ReservationID uint                     `json:"reservation_id"`
	Reference     string                   `json:"reference"`
	ResourceID    uint                     `json:"resource_id"`
	OwnerID       uint                     `json:"owner_id"`
	ActorID       uint                     `json:"actor_id"`
	StartAt       time.Time                `json:"start_at"`
	EndAt         time.Time                `json:"end_at"`
	Status        models.ReservationStatus `json:"status"`
	Occurrences   int                      `json:"occurrences,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
}

// WaitlistEvent is the payload for all waitlist.* keys.
type WaitlistEvent struct {
	Type           string     `json:"type"`
	EntryID        uint       `json:"entry_id"`
	ResourceID     uint       `json:"resource_id"`
	OwnerID        uint       `json:"owner_id"`
	ActorID        uint       `json:"actor_id"`
	Position       uint       `json:"position"`
	OfferStart     *time.Time `json:"offer_start,omitempty"`
	OfferEnd       *time.Time `json:"offer_end,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

func newReservationEvent(typ string, r *models.Reservation, actor uint, now time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          typ,
		ReservationID: r.ID,
		Reference:     r.Reference,
		ResourceID:    r.ResourceID,
		OwnerID:       r.OwnerID,
		ActorID:       actor,
		StartAt:       r.StartAt,
		EndAt:         r.EndAt,
		Status:        r.Status,
		Timestamp:     now,
	}
}

func newWaitlistEvent(typ string, e *models.WaitlistEntry, actor uint, now time.Time) WaitlistEvent {
	return WaitlistEvent{
		Type:           typ,
		EntryID:        e.ID,
		ResourceID:     e.ResourceID,
		OwnerID:        e.OwnerID,
		ActorID:        actor,
		Position:       e.Position,
		OfferStart:     e.OfferStart,
		OfferEnd:       e.OfferEnd,
		OfferExpiresAt: e.OfferExpiresAt,
		Timestamp:      now,
	}
}

// publish sends one event, tolerating both an absent publisher and broker
// failures. Events are best-effort notifications; a failed publish never
// fails the state transition that produced it.
func publish(pub EventPublisher, logger *zap.Logger, routingKey string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(routingKey, payload); err != nil && logger != nil {
		logger.Warn("event publish failed",
			zap.String("routing_key", routingKey),
			zap.Error(err))
	}
}
