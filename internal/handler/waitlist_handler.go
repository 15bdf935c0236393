package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/dto"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

type WaitlistHandler struct {
	svc service.WaitlistService
}

func NewWaitlistHandler(svc service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{svc: svc}
}

func (h *WaitlistHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/resources/:id/waitlist", h.Join)
	e.GET("/api/v1/resources/:id/waitlist", h.ListForResource)

	waitlist := e.Group("/api/v1/waitlist")
	waitlist.GET("/:id", h.Get)
	waitlist.POST("/:id/accept", h.Accept)
	waitlist.DELETE("/:id", h.Leave)

	e.GET("/api/v1/owners/:id/waitlist", h.ListForOwner)
}

func (h *WaitlistHandler) Join(c echo.Context) error {
	resourceID, err := parseIDParam(c, "resource id")
	if err != nil {
		return err
	}

	var req dto.JoinWaitlistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	entry, err := h.svc.Join(c.Request().Context(), resourceID, req.OwnerID, req.Start, req.End, req.Flexible)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToWaitlistEntryResponse(entry))
}

func (h *WaitlistHandler) Get(c echo.Context) error {
	entryID, err := parseIDParam(c, "waitlist entry id")
	if err != nil {
		return err
	}
	ownerID, err := ownerIDQuery(c)
	if err != nil {
		return err
	}

	entry, err := h.svc.Get(c.Request().Context(), entryID, ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToWaitlistEntryResponse(entry))
}

// Accept converts an open offer into a reservation, so on success the
// response body is the reservation rather than the waitlist entry.
func (h *WaitlistHandler) Accept(c echo.Context) error {
	entryID, err := parseIDParam(c, "waitlist entry id")
	if err != nil {
		return err
	}

	var req dto.AcceptOfferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	reservation, err := h.svc.Accept(c.Request().Context(), entryID, req.OwnerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToReservationResponse(reservation))
}

func (h *WaitlistHandler) Leave(c echo.Context) error {
	entryID, err := parseIDParam(c, "waitlist entry id")
	if err != nil {
		return err
	}
	ownerID, err := ownerIDQuery(c)
	if err != nil {
		return err
	}

	entry, err := h.svc.Leave(c.Request().Context(), entryID, ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToWaitlistEntryResponse(entry))
}

func (h *WaitlistHandler) ListForResource(c echo.Context) error {
	resourceID, err := parseIDParam(c, "resource id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListForResource(c.Request().Context(), resourceID)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]dto.WaitlistEntryResponse, len(list))
	for i := range list {
		resp[i] = dto.ToWaitlistEntryResponse(&list[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *WaitlistHandler) ListForOwner(c echo.Context) error {
	ownerID, err := parseIDParam(c, "owner id")
	if err != nil {
		return err
	}
	list, err := h.svc.ListForOwner(c.Request().Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]dto.WaitlistEntryResponse, len(list))
	for i := range list {
		resp[i] = dto.ToWaitlistEntryResponse(&list[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func ownerIDQuery(c echo.Context) (uint, error) {
	raw := c.QueryParam("owner_id")
	if raw == "" {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "owner_id query parameter is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid owner_id")
	}
	return uint(id), nil
}
