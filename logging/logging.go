package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
)

type contextKey string

const loggerKey contextKey = "conductor.logger"

var (
	defaultOnce   sync.Once
	defaultLogger *slog.Logger
)

// New returns a structured logger writing colourised output to stderr.
func New(level slog.Level) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	return slog.New(handler)
}

// Default returns the shared engine logger (warn level). It is created
// lazily on first use.
func Default() *slog.Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(slog.LevelWarn)
	})
	return defaultLogger
}

// LevelFromString converts a textual level to slog.Level, defaulting to warn.
func LevelFromString(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// WithLogger returns a new context carrying the supplied logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns the logger stored in ctx, or the default engine logger.
func Ctx(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return Default()
}
