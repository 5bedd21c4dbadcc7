package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/beat-license-registry/internal/middleware"
)

// RegisterPublic registers unauthenticated read endpoints.  All of them
// are rate limited.  Beat availability and tiers are cached in Redis and
// tagged by beat id, so a purchase or a tier change drops the cached copy.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger))

	beatCache := middleware.NewRedisCache(d.Cache, d.Redis, "id", d.Logger)
	// Whether the beat can still be licensed at all
	g.GET("/beats/:id/availability", d.Licenses.Availability, beatCache)
	// Enabled tiers with prices, or the reason none are offered
	g.GET("/beats/:id/tiers", d.Licenses.Tiers, beatCache)

	// License issued for a purchase (order confirmation page)
	g.GET("/purchases/:id/beat-license", d.Licenses.LicenseByPurchase)
	// A buyer's licenses, newest first
	g.GET("/users/:user_id/beat-licenses", d.Licenses.UserLicenses)
	// Does the buyer hold a license for this beat? ?tier= narrows the check
	g.GET("/users/:user_id/beats/:beat_id/license", d.Licenses.CheckLicense)
}
