package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/beat-license-registry/internal/logging"
)

// RequestContext copies the X-Request-ID assigned by echo's RequestID
// middleware into the request context so registry logs carry it.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.ContextWithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}
