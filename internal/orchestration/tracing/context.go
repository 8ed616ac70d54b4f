// Package tracing provides distributed tracing for the control plane.
// It wraps OpenTelemetry span creation, export, and request middleware.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const traceIDKey contextKey = "trace_id"

// TraceIDFromContext extracts the trace id from the context, or ""
// when none is present.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(traceIDKey); v != nil {
		if traceID, ok := v.(string); ok {
			return traceID
		}
	}
	return ""
}

// ContextWithTraceID returns a context carrying the trace id. An empty
// id leaves the context unchanged.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GenerateTraceID creates a random 32-char hex trace id in the W3C
// Trace Context format. Used to correlate logs when tracing is off.
func GenerateTraceID() string {
	bytes := make([]byte, 16)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
