// Package log configures structured logging for stratum services.
package log

import (
	"log/slog"
	"os"
	"strings"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Setup installs the process-wide default logger. The handler writes text
// to stderr unless LOG_FORMAT=json is set. Unknown levels fall back to info.
func Setup(logLevel string) {
	level, ok := levels[strings.ToLower(logLevel)]
	if !ok {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithModule returns a logger tagged with the originating component.
func WithModule(module string) *slog.Logger {
	return slog.With("component", module)
}
