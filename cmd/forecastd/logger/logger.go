// Package logger builds the structured logger used by the forecastd service.
package logger

import (
	"log/slog"
	"os"
)

// New creates a slog.Logger writing to stderr with the given level and
// format. Level is one of debug, info, warn, error; format is text or json.
// Unknown values fall back to info and text.
func New(level, format string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
