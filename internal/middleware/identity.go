package middleware

import "github.com/labstack/echo/v4"

// ContextUserID is the echo context key holding the authenticated
// caller's user id.
const ContextUserID = "user_id"

// UserID returns the authenticated caller, if any.
func UserID(c echo.Context) (string, bool) {
	v, ok := c.Get(ContextUserID).(string)
	return v, ok && v != ""
}

// rateIdentity names the caller for rate limit keys; "anon" when no
// token was presented.
func rateIdentity(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return id
	}
	return "anon"
}
