package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/config"
)

// tokenBucket refills continuously at rate tokens per millisecond and
// returns {allowed, remaining, retry_after_ms}.  Fractional tokens are
// kept in the hash so slow refill rates still add up.
var tokenBucket = redis.NewScript(`
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local now = tonumber(ARGV[1])
local b = redis.call('HMGET', KEYS[1], 't', 'ts')
local tokens = tonumber(b[1]) or capacity
local ts = tonumber(b[2]) or now
tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)
local allowed, retry = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.ceil((1 - tokens) / rate)
end
redis.call('HSET', KEYS[1], 't', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, math.floor(tokens), retry}
`)

// NewTokenBucket limits requests per key with a token bucket kept in a
// Redis hash.  Redis errors fail open so an outage never blocks reads.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.RefillInterval.Milliseconds()
	if interval <= 0 {
		interval = 1000
	}
	rate := float64(max(cfg.RefillTokens, 1)) / float64(interval)
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), cfg.Capacity, rate, cfg.TTL.Milliseconds()).Int64Slice()
			if err != nil || len(res) != 3 {
				logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if res[0] == 1 {
				return next(c)
			}
			secs := retryAfterSeconds(res[2])
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			logger.Debug("rate limited", zap.String("key", key), zap.Int64("retry_ms", res[2]))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// retryAfterSeconds rounds up and never returns less than one second.
func retryAfterSeconds(ms int64) int64 {
	if ms <= 0 {
		return 1
	}
	return (ms + 999) / 1000
}

// rateKey scopes the bucket.  "ip" shares one bucket across routes,
// "user_route" follows the JWT subject, anything else is per IP and route.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		return cfg.Prefix + ":ip:" + ip
	case "user_route":
		return cfg.Prefix + ":user:" + rateIdentity(c) + ":" + route
	default:
		return cfg.Prefix + ":ip:" + ip + ":" + route
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
