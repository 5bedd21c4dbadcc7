package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/utils"
)

// ServiceKeyHeader carries the shared secret of trusted internal callers
// such as the payment webhook.
const ServiceKeyHeader = "X-Service-Key"

// RequireServiceKey admits only requests whose X-Service-Key matches the
// bcrypt hash.  An empty hash rejects everything.
func RequireServiceKey(hash string, logger *zap.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(ServiceKeyHeader)
			if key == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing service key"})
			}
			if !utils.VerifyServiceKey(hash, key) {
				logger.Warn("rejected internal call",
					zap.String("path", c.Path()),
					zap.String("remote_ip", c.RealIP()))
				return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid service key"})
			}
			return next(c)
		}
	}
}
