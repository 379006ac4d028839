package logging

import (
	"context"
	"log/slog"

	context_ "github.com/felnan/snapfeed/internal/infra/context"
)

// RequestIDHandler wraps another slog.Handler to attach the outgoing request
// ID from the context to all log records, so that a single API call can be
// followed through the gateway and its callers.
type RequestIDHandler struct {
	h slog.Handler
}

var _ slog.Handler = (*RequestIDHandler)(nil)

// NewRequestIDHandler creates a new RequestIDHandler wrapping the given handler.
func NewRequestIDHandler(h slog.Handler) *RequestIDHandler {
	return &RequestIDHandler{h: h}
}

// Handle implements slog.Handler by adding request ID information if
// available in the context before delegating to the wrapped handler.
func (h *RequestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if requestID, ok := context_.RequestIDFromContext(ctx); ok {
		r.AddAttrs(slog.Group("request",
			slog.String("id", requestID),
		))
	}

	//nolint:wrapcheck
	return h.h.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *RequestIDHandler) WithAttrs(attrs []slog.Attr) Handler {
	return NewRequestIDHandler(h.h.WithAttrs(attrs))
}

// WithGroup implements slog.Handler.WithGroup.
func (h *RequestIDHandler) WithGroup(name string) Handler {
	return NewRequestIDHandler(h.h.WithGroup(name))
}

// Enabled implements slog.Handler.Enabled.
func (h *RequestIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}
