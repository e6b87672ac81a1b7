package http

import (
	"context"
	"log/slog"

	"github.com/example/meetgrid/internal/logging"
)

type contextKey string

const clientOriginContextKey contextKey = "client_origin"

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// ContextWithClientOrigin records the caller's network origin.
func ContextWithClientOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, clientOriginContextKey, origin)
}

// ClientOriginFromContext returns the origin recorded by the ClientOrigin
// middleware, or "unknown".
func ClientOriginFromContext(ctx context.Context) string {
	if origin, ok := ctx.Value(clientOriginContextKey).(string); ok && origin != "" {
		return origin
	}
	return unknownOrigin
}
