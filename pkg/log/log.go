// Package log bridges zap into logr.Logger, the interface the rest of
// the service logs through (engine, adapters, repositories). Nothing
// outside this package constructs a zap.Logger directly.
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the underlying zap encoder and level.
type Options struct {
	Development bool
	Level       zapcore.Level
	Format      string // "json" or "console"
}

// DevelopmentOptions returns options tuned for local runs and tests:
// console encoding, debug level, readable timestamps.
func DevelopmentOptions() Options {
	return Options{
		Development: true,
		Level:       zapcore.DebugLevel,
		Format:      "console",
	}
}

// ProductionOptions returns options tuned for the running service: JSON
// encoding, info level.
func ProductionOptions() Options {
	return Options{
		Development: false,
		Level:       zapcore.InfoLevel,
		Format:      "json",
	}
}

// NewLogger builds a logr.Logger backed by zap per opts.
func NewLogger(opts Options) logr.Logger {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(opts.Level)
	if opts.Format != "" {
		cfg.Encoding = opts.Format
	}

	zapLog, err := cfg.Build()
	if err != nil {
		// Falling back to a no-op zap logger keeps callers from having to
		// handle a logger-construction error on every startup path.
		zapLog = zap.NewNop()
	}

	return zapr.NewLogger(zapLog)
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to
// a zapcore.Level, defaulting to info for unrecognized values.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}
