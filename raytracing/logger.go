package raytracing

import (
	"log/slog"

	"raytrace-engine/internal/logging"
)

// SetLogger configures the logger for the ray-tracing extension and every
// backend and loader in this module. By default nothing is logged.
// Pass nil to restore the silent default.
//
// Levels in use:
//   - [slog.LevelDebug]: rebuilds, skipped frames, resource releases
//   - [slog.LevelInfo]: backend lifecycle (device opened, adapter selected)
//   - [slog.LevelWarn]: non-fatal issues (skipped glTF primitives, release errors)
//
// Example:
//
//	raytracing.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger. Backends call this so they share one
// configuration. Safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
