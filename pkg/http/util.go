package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	xutil "SignalFusion/pkg/util"
)

// QueryInt reads an int query parameter, clamped to [lo, hi].
func QueryInt(c echo.Context, name string, def, lo, hi int) int {
	return xutil.ClampInt(xutil.ParseIntDefault(c.QueryParam(name), def), lo, hi)
}

// QueryTime reads an RFC3339 or unix query parameter. An absent parameter
// yields def; a malformed one is a 400.
func QueryTime(c echo.Context, name string, def time.Time) (time.Time, *AppError) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	t, ok := xutil.ParseTime(raw)
	if !ok {
		return def, NewAppError("ERR_BAD_REQUEST", name, "expected RFC3339 or unix time", http.StatusBadRequest).WithParam("value", raw)
	}
	return t, nil
}
