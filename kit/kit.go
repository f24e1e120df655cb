// Package kit is the transport-neutral endpoint layer: an Endpoint is a
// plain function that MCP tools (and anything else) wrap, with Middleware
// composed by Chain.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares so the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs each call with its duration and error, tagged with name and
// the transport found in ctx.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"endpoint", name, "transport", GetTransport(ctx), "duration", time.Since(start)}
			if id := GetRunID(ctx); id != "" {
				attrs = append(attrs, "run_id", id)
			}
			if tool := GetTool(ctx); tool != "" {
				attrs = append(attrs, "tool", tool)
			}
			if id := GetTraceID(ctx); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint done", attrs...)
			}
			return resp, err
		}
	}
}
