package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/config"
	"github.com/iliyamo/beat-license-registry/internal/handler" // HTTP handlers
)

// Deps bundles what the route groups need.  Redis is optional; a nil
// client turns the cache and rate limiter into pass-throughs.
type Deps struct {
	Licenses       *handler.BeatLicenseHandler
	Ready          map[string]handler.Pinger
	JWTSecret      string
	ServiceKeyHash string
	Redis          *redis.Client
	Cache          config.CacheConfig
	RateLimit      config.RateLimitConfig
	Logger         *zap.Logger
}

// RegisterRoutes registers routes that do not require authentication and
// are not part of the public API: the liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Load balancers poll /healthz; /readyz additionally checks MySQL.
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.Ready))
}

// Register wires every route group onto e.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	RegisterRoutes(e, d)
	RegisterInternal(e, d)
	RegisterPublic(e, d)
	RegisterSeller(e, d)
}
