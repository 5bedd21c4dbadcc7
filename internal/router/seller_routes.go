package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/beat-license-registry/internal/middleware"
)

// RegisterSeller registers endpoints that act on behalf of the caller.
// Every route requires a valid JWT; ownership is checked by the registry.
func RegisterSeller(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	// Sales ledger of the caller's store; ?limit= caps the page
	g.GET("/stores/:id/beat-sales", d.Licenses.StoreSales)
	// Buyer marks their contract PDF as generated
	g.POST("/beat-licenses/:id/contract", d.Licenses.MarkContract)
	// Producer replaces the tier catalog of an unsold beat
	g.PUT("/beats/:id/tiers", d.Licenses.UpdateTiers)
}
