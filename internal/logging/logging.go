// Package logging configures the process-wide slog logger from the
// loaded LoggingConfig, matching the source's single logging-setup call
// site per node.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a slog default logger at the given level ("debug",
// "info", "warn", "error") and format ("json" or "text").
func Setup(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
