// Package logging configures the client's slog default logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to errors only.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Init installs a text handler on stderr at the level named by LOG_LEVEL.
// The default keeps the terminal quiet apart from errors.
func Init() {
	InitTo(os.Stderr, os.Getenv("LOG_LEVEL"))
}

// InitTo installs a text handler writing to w.
func InitTo(w io.Writer, level string) {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(level),
		}),
	)
	slog.SetDefault(logger)
}
