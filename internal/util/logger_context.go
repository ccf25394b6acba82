package util

import (
	"context"
	"log/slog"
)

type loggerContextKey struct{}

// ContextWithLogger stores a logger in the context. Middleware uses this
// to hand request-scoped loggers to handlers.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext returns the request-scoped logger, or the process
// default when none was attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
