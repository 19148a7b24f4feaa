package errors

import (
	"log/slog"

	"github.com/go-drift/flow/internal/logging"
)

// LogHandler is an ErrorHandler that writes through the shared slog logger.
type LogHandler struct {
	// Verbose adds stack traces to the logged records.
	Verbose bool
}

// HandleError logs a FlowError at error level.
func (h *LogHandler) HandleError(err *FlowError) {
	if err == nil {
		return
	}
	attrs := []any{slog.String("op", err.Op), slog.String("kind", err.Kind.String()), slog.Any("err", err.Err)}
	if err.Frame != 0 {
		attrs = append(attrs, slog.Uint64("frame", err.Frame))
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}
	logging.Logger().Error("flow error", attrs...)
}

// HandlePanic logs a PanicError at error level.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	attrs := []any{slog.String("op", err.Op), slog.Any("value", err.Value)}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}
	logging.Logger().Error("flow panic", attrs...)
}

// HandleInvariant logs an InvariantError at error level. Invariant
// violations always carry their stack.
func (h *LogHandler) HandleInvariant(err *InvariantError) {
	if err == nil {
		return
	}
	logging.Logger().Error("invariant violated",
		slog.String("op", err.Op),
		slog.String("message", err.Message),
		slog.String("stack", err.StackTrace),
	)
}
