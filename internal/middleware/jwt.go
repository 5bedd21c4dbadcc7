package middleware // reusable HTTP middleware for the echo server

import (
	"net/http" // HTTP status codes for responses
	"strings"  // prefix checking and trimming

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/beat-license-registry/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores its subject under ContextUserID.  The secret must match the
// one the identity provider signs with.  Handlers read the caller with
// UserID.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			// ParseSubject rejects non-HMAC signatures, expired tokens and
			// tokens without a subject.
			sub, err := utils.ParseSubject(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(ContextUserID, sub)
			return next(c)
		}
	}
}
