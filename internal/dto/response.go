package dto

import (
	"time"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

type ReservationResponse struct {
	ID               uint                     `json:"id"`
	Reference        string                   `json:"reference"`
	ResourceID       uint                     `json:"resource_id"`
	OwnerID          uint                     `json:"owner_id"`
	Start            time.Time                `json:"start"`
	End              time.Time                `json:"end"`
	Status           models.ReservationStatus `json:"status"`
	Notes            string                   `json:"notes,omitempty"`
	RecurrenceRuleID *uint                    `json:"recurrence_rule_id,omitempty"`
	ParentID         *uint                    `json:"parent_id,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
}

func ToReservationResponse(r *models.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:               r.ID,
		Reference:        r.Reference,
		ResourceID:       r.ResourceID,
		OwnerID:          r.OwnerID,
		Start:            r.StartAt,
		End:              r.EndAt,
		Status:           r.Status,
		Notes:            r.Notes,
		RecurrenceRuleID: r.RecurrenceRuleID,
		ParentID:         r.ParentID,
		CreatedAt:        r.CreatedAt,
	}
}

type SeriesResponse struct {
	Parent      ReservationResponse   `json:"parent"`
	Occurrences []ReservationResponse `json:"occurrences"`
	Count       int                   `json:"count"`
	Capped      bool                  `json:"capped"`
}

func ToSeriesResponse(result *service.SeriesResult) SeriesResponse {
	occ := make([]ReservationResponse, len(result.Occurrences))
	for i := range result.Occurrences {
		occ[i] = ToReservationResponse(&result.Occurrences[i])
	}
	return SeriesResponse{
		Parent:      ToReservationResponse(result.Parent),
		Occurrences: occ,
		Count:       len(occ),
		Capped:      result.Capped,
	}
}

type WaitlistEntryResponse struct {
	ID             uint                  `json:"id"`
	ResourceID     uint                  `json:"resource_id"`
	OwnerID        uint                  `json:"owner_id"`
	Position       uint                  `json:"position"`
	Status         models.WaitlistStatus `json:"status"`
	DesiredStart   time.Time             `json:"desired_start"`
	DesiredEnd     time.Time             `json:"desired_end"`
	Flexible       bool                  `json:"flexible"`
	OfferStart     *time.Time            `json:"offer_start,omitempty"`
	OfferEnd       *time.Time            `json:"offer_end,omitempty"`
	OfferedAt      *time.Time            `json:"offered_at,omitempty"`
	OfferExpiresAt *time.Time            `json:"offer_expires_at,omitempty"`
	ReservationID  *uint                 `json:"reservation_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

func ToWaitlistEntryResponse(e *models.WaitlistEntry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:             e.ID,
		ResourceID:     e.ResourceID,
		OwnerID:        e.OwnerID,
		Position:       e.Position,
		Status:         e.Status,
		DesiredStart:   e.DesiredStart,
		DesiredEnd:     e.DesiredEnd,
		Flexible:       e.Flexible,
		OfferStart:     e.OfferStart,
		OfferEnd:       e.OfferEnd,
		OfferedAt:      e.OfferedAt,
		OfferExpiresAt: e.OfferExpiresAt,
		ReservationID:  e.ReservationID,
		CreatedAt:      e.CreatedAt,
	}
}

type ResourceResponse struct {
	ID               uint                   `json:"id"`
	Name             string                 `json:"name"`
	Timezone         string                 `json:"timezone"`
	Available        bool                   `json:"available"`
	RequiresApproval bool                   `json:"requires_approval"`
	Hours            []models.BusinessHours `json:"hours,omitempty"`
	Blackouts        []models.BlackoutDate  `json:"blackouts,omitempty"`
}

func ToResourceResponse(res *models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:               res.ID,
		Name:             res.Name,
		Timezone:         res.Timezone,
		Available:        res.Available,
		RequiresApproval: res.RequiresApproval,
		Hours:            res.Hours,
		Blackouts:        res.Blackouts,
	}
}

type WindowResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ConflictResponse is the 409 body for a single-window conflict. Overlapping
// lists what is in the way so clients can suggest alternatives.
type ConflictResponse struct {
	Message     string           `json:"message"`
	ResourceID  uint             `json:"resource_id"`
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	Overlapping []WindowResponse `json:"overlapping"`
}

func ToConflictResponse(e *service.ConflictError) ConflictResponse {
	return ConflictResponse{
		Message:     e.Error(),
		ResourceID:  e.ResourceID,
		Start:       e.Start,
		End:         e.End,
		Overlapping: toWindows(e.Overlapping),
	}
}

type OccurrenceConflictResponse struct {
	Index       int              `json:"index"`
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	Overlapping []WindowResponse `json:"overlapping"`
}

// SeriesConflictResponse is the 409 body for an all-or-nothing series
// rejection, enumerating exactly which occurrence indices failed.
type SeriesConflictResponse struct {
	Message   string                       `json:"message"`
	Total     int                          `json:"total"`
	Indices   []int                        `json:"indices"`
	Conflicts []OccurrenceConflictResponse `json:"conflicts"`
}

func ToSeriesConflictResponse(e *service.PartialConflictError) SeriesConflictResponse {
	conflicts := make([]OccurrenceConflictResponse, len(e.Conflicts))
	for i, c := range e.Conflicts {
		conflicts[i] = OccurrenceConflictResponse{
			Index:       c.Index,
			Start:       c.Start,
			End:         c.End,
			Overlapping: toWindows(c.Overlapping),
		}
	}
	return SeriesConflictResponse{
		Message:   e.Error(),
		Total:     e.Total,
		Indices:   e.Indices(),
		Conflicts: conflicts,
	}
}

func toWindows(rs []models.Reservation) []WindowResponse {
	out := make([]WindowResponse, len(rs))
	for i, r := range rs {
		out[i] = WindowResponse{Start: r.StartAt, End: r.EndAt}
	}
	return out
}

type ErrorResponse struct {
	Message string `json:"message"`
}
