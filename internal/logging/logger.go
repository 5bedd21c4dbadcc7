// Package logging builds the process zap logger and carries request
// scoped fields through contexts.
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field keys.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldBeatID     = "beat_id"
	FieldPurchaseID = "purchase_id"
	FieldLicenseID  = "license_id"
	FieldTask       = "task"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string // json or console
	OutputPaths []string
	Development bool
}

// New constructs a zap logger.  Unknown levels fall back to info; an
// unknown format is an error.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "":
		if opts.Development {
			cfg.Encoding = "console"
		} else {
			cfg.Encoding = "json"
		}
	case "json":
		cfg.Encoding = "json"
	case "console":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = append([]string(nil), opts.OutputPaths...)
		cfg.ErrorOutputPaths = append([]string(nil), opts.OutputPaths...)
	}
	return cfg.Build()
}

// ForEnv returns the logger for an APP_ENV value: console output for
// dev and test, JSON otherwise.
func ForEnv(env, level string) (*zap.Logger, error) {
	dev := env == "dev" || env == "development" || env == "test"
	return New(Options{Level: level, Development: dev})
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches a correlation id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id stored in ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns logger augmented with the fields carried by ctx.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		return logger.With(zap.String(FieldRequestID, id))
	}
	return logger
}
