package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/dto"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/models"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

type ReservationHandler struct {
	svc service.ReservationService
}

func NewReservationHandler(svc service.ReservationService) *ReservationHandler {
	return &ReservationHandler{svc: svc}
}

func (h *ReservationHandler) RegisterRoutes(e *echo.Echo) {
	resources := e.Group("/api/v1/resources")
	resources.POST("/:id/reservations", h.Create)
	resources.GET("/:id/reservations", h.ListForResource)

	reservations := e.Group("/api/v1/reservations")
	reservations.GET("/:id", h.Get)
	reservations.DELETE("/:id", h.Cancel)
	reservations.POST("/:id/approve", h.Approve)
	reservations.POST("/:id/reject", h.Reject)
	reservations.GET("/:id/series", h.Series)

	e.GET("/api/v1/reservations/reference/:ref", h.GetByReference)
}

// Create books a single window, or a whole series when the request carries a
// recurrence rule.
func (h *ReservationHandler) Create(c echo.Context) error {
	resourceID, err := parseIDParam(c, "resource id")
	if err != nil {
		return err
	}

	var req dto.CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	ctx := c.Request().Context()

	if req.Recurrence == nil {
		reservation, err := h.svc.CreateSingle(ctx, resourceID, req.OwnerID, req.Start, req.End, req.Notes)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusCreated, dto.ToReservationResponse(reservation))
	}

	res, err := h.svc.Resource(ctx, resourceID)
	if err != nil {
		return toHTTPError(err)
	}
	rule, err := req.Recurrence.ToRule(res.Location())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.svc.CreateRecurring(ctx, resourceID, req.OwnerID, req.Start, req.End, rule, req.Notes)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToSeriesResponse(result))
}

func (h *ReservationHandler) ListForResource(c echo.Context) error {
	resourceID, err := parseIDParam(c, "resource id")
	if err != nil {
		return err
	}

	now := time.Now()
	from, to := now, now.AddDate(0, 0, 7)
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from, want RFC3339")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to, want RFC3339")
		}
	}

	statuses := []models.ReservationStatus{models.StatusActive}
	switch s := c.QueryParam("status"); s {
	case "", "active":
	case "all":
		statuses = nil
	case "blocking":
		statuses = models.BlockingStatuses
	default:
		statuses = []models.ReservationStatus{models.ReservationStatus(s)}
	}

	list, err := h.svc.ListForResource(c.Request().Context(), resourceID, from, to, statuses)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]dto.ReservationResponse, len(list))
	for i := range list {
		resp[i] = dto.ToReservationResponse(&list[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "reservation id")
	if err != nil {
		return err
	}
	reservation, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(reservation))
}

func (h *ReservationHandler) GetByReference(c echo.Context) error {
	reservation, err := h.svc.GetByReference(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(reservation))
}

func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := parseIDParam(c, "reservation id")
	if err != nil {
		return err
	}
	var req dto.CancelReservationRequest
	_ = c.Bind(&req) // body is optional on cancel

	reservation, err := h.svc.Cancel(c.Request().Context(), id, req.ActorID, req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(reservation))
}

func (h *ReservationHandler) Approve(c echo.Context) error {
	id, err := parseIDParam(c, "reservation id")
	if err != nil {
		return err
	}
	var req dto.ApprovalRequest
	_ = c.Bind(&req)

	reservation, err := h.svc.Activate(c.Request().Context(), id, req.ActorID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(reservation))
}

func (h *ReservationHandler) Reject(c echo.Context) error {
	id, err := parseIDParam(c, "reservation id")
	if err != nil {
		return err
	}
	var req dto.ApprovalRequest
	_ = c.Bind(&req)

	reservation, err := h.svc.Reject(c.Request().Context(), id, req.ActorID, req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToReservationResponse(reservation))
}

func (h *ReservationHandler) Series(c echo.Context) error {
	id, err := parseIDParam(c, "reservation id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListSeries(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]dto.ReservationResponse, len(list))
	for i := range list {
		resp[i] = dto.ToReservationResponse(&list[i])
	}
	return c.JSON(http.StatusOK, resp)
}
