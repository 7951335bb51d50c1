// Package logger provides the application-wide structured logger.
//
// Log level comes from LOG_LEVEL (debug, info, warn, error; default info).
// When GO_ENV=production the logger emits JSON, otherwise human-readable text.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the *slog.Logger to the fx graph.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger builds a slog.Logger configured from the environment.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// Scope tags a log record with the subsystem it came from.
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error attaches an error to a log record under the "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
