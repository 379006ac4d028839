package logging

import (
	"io"
	"log/slog"
)

// NewNopLogger creates a logger that discards all output. Used in tests and
// whenever the configured output is "discard".
func NewNopLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
