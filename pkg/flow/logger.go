package flow

import (
	"log/slog"

	"github.com/go-drift/flow/internal/logging"
)

// SetLogger configures the logger for flow and all its sub-packages.
// By default nothing is logged. Pass nil to restore the silent default.
//
// Levels used:
//   - [slog.LevelDebug]: per-frame detail (damage rects, diff statistics)
//   - [slog.LevelInfo]: lifecycle events (surface resize, debug server start)
//   - [slog.LevelWarn]: non-fatal failures (double submit, cache misses that
//     should not happen)
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}

// Logger returns the logger shared by the flow packages.
func Logger() *slog.Logger {
	return logging.Logger()
}
