package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders echo.HTTPError values as JSON. Handlers that attach a
// structured payload (conflict details and the like) get it back verbatim;
// plain string messages are wrapped in a {"message": ...} envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		default:
			_ = c.JSON(code, m)
			return
		}
	}

	_ = c.JSON(code, map[string]string{"message": msg})
}
