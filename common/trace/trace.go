package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	requestIDKey contextKey = "request_id"
)

// NewID generates a new trace identifier
func NewID() string {
	return uuid.New().String()
}

// WithTraceID returns a context carrying the given trace id
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithRequestID returns a context carrying the given request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// TraceID returns the trace id from the context, or "" if absent
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// RequestID returns the request id from the context, or "" if absent
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Ensure returns a context that is guaranteed to carry a trace id,
// generating one when the incoming context has none.
func Ensure(ctx context.Context) context.Context {
	if TraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewID())
	}
	return ctx
}
