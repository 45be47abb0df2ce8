// Package shield provides the HTTP middleware stack of the domwatch API:
// security headers, body limits, request IDs, panic recovery and HEAD
// handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.Recover(logger))
//	r.Use(shield.HeadToGet)
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(1 << 20))
//	r.Use(shield.RequestID(logger))
//
// Or apply the default stack in one call:
//
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody bounds request bodies of the default stack.
const DefaultMaxBody = 1 << 20

// DefaultStack returns the standard middleware stack, outermost first:
// Recover, HeadToGet, SecurityHeaders, MaxBody, RequestID.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return []func(http.Handler) http.Handler{
		Recover(logger),
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		RequestID(logger),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
