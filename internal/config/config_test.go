package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV": "test", "APP_PORT": "8080",
		"DB_USER": "root", "DB_HOST": "localhost", "DB_PORT": "3306", "DB_NAME": "beats",
		"JWT_SECRET": "s3cret", "SERVICE_KEY_HASH": "$2a$10$hash",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://broker:5672/")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RabbitURL != "amqp://broker:5672/" {
		t.Fatalf("RabbitURL = %q", cfg.RabbitURL)
	}
	if cfg.PurchaseQueue != "beat.license.purchased" || cfg.SideEffectTimeout != 10*time.Second ||
		!cfg.ConsumerEnabled || cfg.PurchaseLogDir != "logs" || cfg.LogLevel != "info" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.IsProduction() {
		t.Fatal("test env reported as production")
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("SIDE_EFFECT_TIMEOUT", "soon")
	t.Chdir(t.TempDir())

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"JWT_SECRET", "DB_HOST", "SIDE_EFFECT_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PURCHASE_QUEUE=from-file\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PURCHASE_QUEUE", "from-env")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PURCHASE_QUEUE"); got != "from-env" {
		t.Fatalf("PURCHASE_QUEUE = %q, want env value", got)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "debug" {
		t.Fatalf("LOG_LEVEL = %q, want value from file", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 1 {
		t.Fatalf("Capacity = %d, want 1", cfg.Capacity)
	}
	if cfg.TTL != 5*time.Minute {
		t.Fatalf("TTL = %v, want 5m", cfg.TTL)
	}
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "1")
	cfg := LoadRedisConfig()
	if cfg.Addr != "cache:6380" || cfg.DB != 2 || !cfg.TLS {
		t.Fatalf("redis config = %+v", cfg)
	}
	t.Setenv("REDIS_HOST", "r")
	t.Setenv("REDIS_PORT", "1")
	if got := LoadRedisConfig().Addr; got != "r:1" {
		t.Fatalf("Addr = %q, want r:1", got)
	}
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head, post")
	t.Setenv("CACHE_TTL", "2h")
	cfg := LoadCacheConfig()
	if !cfg.Methods["GET"] || !cfg.Methods["HEAD"] || cfg.Methods["POST"] {
		t.Fatalf("methods = %v", cfg.Methods)
	}
	if cfg.TTL != 10*time.Minute {
		t.Fatalf("TTL = %v, want 10m", cfg.TTL)
	}

	t.Setenv("CACHE_METHODS", "POST,PUT")
	if LoadCacheConfig().Enabled {
		t.Fatalf("cache enabled with no safe methods")
	}
}
