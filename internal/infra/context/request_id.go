package context

import (
	"context"
)

type contextKey string

const contextKeyRequestID = contextKey("requestID")

// RequestIDFromContext extracts the outgoing request ID from the context.
// Returns the ID and true if present, or empty string and false if not.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(contextKeyRequestID).(string)

	return requestID, ok
}

// WithRequestID creates a new context carrying the given request ID so that
// log records emitted while the request is in flight can be correlated with
// the server side.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
