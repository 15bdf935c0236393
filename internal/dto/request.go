package dto

import (
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
)

type CreateReservationRequest struct {
	OwnerID    uint               `json:"owner_id"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Notes      string             `json:"notes,omitempty"`
	Recurrence *RecurrenceRequest `json:"recurrence,omitempty"`
}

// RecurrenceRequest carries the rule for a recurring reservation. Exactly
// one of count and until may be set; neither means the series runs until the
// hard occurrence cap.
type RecurrenceRequest struct {
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval"`
	Weekdays  []int  `json:"weekdays,omitempty"`
	Count     int    `json:"count,omitempty"`
	Until     string `json:"until,omitempty"` // YYYY-MM-DD, inclusive
}

// ToRule validates the request into a recurrence rule. A date-only until is
// inclusive of the whole day, so it resolves to the last instant of that
// local day.
func (r *RecurrenceRequest) ToRule(loc *time.Location) (*models.RecurrenceRule, error) {
	weekdays := make([]time.Weekday, 0, len(r.Weekdays))
	for _, d := range r.Weekdays {
		weekdays = append(weekdays, time.Weekday(d))
	}

	term := models.Never()
	switch {
	case r.Count > 0 && r.Until != "":
		return nil, models.ErrUnknownTermination
	case r.Count > 0:
		term = models.AfterCount(r.Count)
	case r.Until != "":
		day, err := time.ParseInLocation("2006-01-02", r.Until, loc)
		if err != nil {
			return nil, err
		}
		term = models.OnDate(day.AddDate(0, 0, 1).Add(-time.Nanosecond))
	}

	return models.NewRecurrenceRule(models.Frequency(r.Frequency), r.Interval, weekdays, term)
}

type CancelReservationRequest struct {
	ActorID uint   `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

type ApprovalRequest struct {
	ActorID uint   `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

type JoinWaitlistRequest struct {
	OwnerID  uint      `json:"owner_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Flexible bool      `json:"flexible"`
}

type AcceptOfferRequest struct {
	OwnerID uint `json:"owner_id"`
}
