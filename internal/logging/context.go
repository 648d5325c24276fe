package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext returns the logger stored in ctx. Callers always get a usable
// logger; a context without one falls back to a plain info-level logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return New(Config{Level: "info", Format: "json"})
}

// WithLogger stores the logger in the context for request-scoped retrieval
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
