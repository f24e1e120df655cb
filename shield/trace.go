package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/evidence/kit"
)

// TraceID generates a random trace ID for each request and injects it into
// the context (kit.TraceIDKey), the X-Trace-ID response header and a
// per-request logger stored under LoggerKey. Requests are tagged with the
// "http" transport.
func TraceID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := make([]byte, 4)
			rand.Read(id)
			traceID := hex.EncodeToString(id)

			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = kit.WithTransport(ctx, "http")
			w.Header().Set("X-Trace-ID", traceID)

			reqLogger := logger.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			reqLogger.Debug("shield: request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
