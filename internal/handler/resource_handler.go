package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/dto"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

type ResourceHandler struct {
	svc service.ReservationService
}

func NewResourceHandler(svc service.ReservationService) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

func (h *ResourceHandler) RegisterRoutes(e *echo.Echo) {
	resources := e.Group("/api/v1/resources")
	resources.GET("/:id", h.Get)
	resources.GET("/:id/schedule", h.Schedule)
}

func (h *ResourceHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "resource id")
	if err != nil {
		return err
	}
	res, err := h.svc.Resource(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToResourceResponse(res))
}

// Schedule returns the busy windows for one calendar day in the resource's
// timezone. The date defaults to today when the query parameter is absent.
func (h *ResourceHandler) Schedule(c echo.Context) error {
	id, err := parseIDParam(c, "resource id")
	if err != nil {
		return err
	}

	date := c.QueryParam("date")
	if date == "" {
		res, err := h.svc.Resource(c.Request().Context(), id)
		if err != nil {
			return toHTTPError(err)
		}
		date = time.Now().In(res.Location()).Format("2006-01-02")
	}

	schedule, err := h.svc.DaySchedule(c.Request().Context(), id, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, schedule)
}
