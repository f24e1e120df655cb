// Package shield holds the HTTP middleware in front of the evidence MCP
// endpoint: security headers, a request body cap, per-request trace IDs and
// a per-IP rate limit on capture calls.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger) {
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

// MaxMCPBody caps MCP request bodies (1 MiB). Tool arguments are URLs and
// header maps.
const MaxMCPBody int64 = 1 << 20

// APIStack returns the standard middleware for the serve router, outermost
// first: SecurityHeaders, MaxBody, TraceID.
func APIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(MaxMCPBody),
		TraceID(logger),
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
