package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/dto"
	"github.com/sylvester-francis/Resource-Reserver-sub000/internal/service"
)

// toHTTPError maps the engine's error taxonomy onto status codes. Conflict
// classes return structured bodies so clients see exactly which windows or
// occurrence indices are in the way.
func toHTTPError(err error) error {
	var (
		ve *service.ValidationError
		be *service.BusinessHoursError
		ce *service.ConflictError
		pe *service.PartialConflictError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.As(err, &be):
		return echo.NewHTTPError(http.StatusBadRequest, be.Error())
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, dto.ToConflictResponse(ce))
	case errors.As(err, &pe):
		return echo.NewHTTPError(http.StatusConflict, dto.ToSeriesConflictResponse(pe))
	case errors.Is(err, service.ErrResourceNotFound),
		errors.Is(err, service.ErrReservationNotFound),
		errors.Is(err, service.ErrWaitlistEntryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrOfferExpired):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrResourceUnavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseIDParam(c echo.Context, label string) (uint, error) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+label)
	}
	return uint(v), nil
}
