package kit

import "context"

type contextKey string

const (
	TransportKey contextKey = "kit_transport" // "cli", "mcp", "http"
	RunIDKey     contextKey = "kit_run_id"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "cli"
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}
func GetRunID(ctx context.Context) string {
	v, _ := ctx.Value(RunIDKey).(string)
	return v
}

// TraceIDKey holds the per-request trace ID set by HTTP middleware.
const TraceIDKey contextKey = "kit_trace_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// ToolKey holds the MCP tool name a call arrived through.
const ToolKey contextKey = "kit_tool"

func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolKey, name)
}
func GetTool(ctx context.Context) string {
	v, _ := ctx.Value(ToolKey).(string)
	return v
}
