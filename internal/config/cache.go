package config

import (
	"strings"
	"time"
)

// CacheConfig controls the Redis response cache on the public beat
// routes.  Entries are tagged with the beat id so a purchase or a tier
// edit drops them before the TTL runs out.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool // only GET and HEAD are honoured
	TTL          time.Duration
	KeyStrategy  string // "route_query" or "path"
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_ENABLED, CACHE_METHODS, CACHE_TTL,
// CACHE_KEY_STRATEGY, CACHE_PREFIX and CACHE_MAX_BODY_BYTES.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      safeMethods(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "route_query")),
		Prefix:       envStr("CACHE_PREFIX", "beatcache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	// A missed invalidation must not hide an exclusive sale for long.
	if cfg.TTL > 10*time.Minute {
		cfg.TTL = 10 * time.Minute
	}
	if len(cfg.Methods) == 0 {
		cfg.Enabled = false
	}
	return cfg
}

// safeMethods parses a comma separated method list and drops anything
// that can change state.
func safeMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		switch p = strings.ToUpper(strings.TrimSpace(p)); p {
		case "GET", "HEAD":
			m[p] = true
		}
	}
	return m
}
