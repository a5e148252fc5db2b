package observability

import (
	"log/slog"
	"os"
)

// SetupLogger builds the process-wide structured logger. Every component
// receives this logger by constructor injection rather than reaching for a
// package-global, so tests can inject a discard logger.
func SetupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})

	logger := slog.New(handler).With(
		"service", "persontrack",
	)
	slog.SetDefault(logger)
	return logger
}
