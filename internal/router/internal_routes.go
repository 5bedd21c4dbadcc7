package router

// This file registers the service-to-service routes.  The payment
// webhook calls them once a charge has settled; end users never do.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/beat-license-registry/internal/middleware"
)

// RegisterInternal mounts /internal/v1 behind the shared service key.
func RegisterInternal(e *echo.Echo, d Deps) {
	g := e.Group("/internal/v1", middleware.RequireServiceKey(d.ServiceKeyHash, d.Logger))
	// Record a settled purchase and issue its license
	g.POST("/beat-licenses", d.Licenses.CreatePurchase)
	// Withdraw a beat after an exclusive sale recorded elsewhere
	g.POST("/beats/:id/exclusive-sale", d.Licenses.MarkExclusiveSale)
}
