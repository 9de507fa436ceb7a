// Package logging configures the process-wide slog logger.
//
// Usage:
//
//	logging.Setup(cfg.Environment, cfg.LogLevel)
//
// In development the output is colored text from tint on stderr. In
// every other environment it is JSON on stdout, one object per line.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs the default logger for environment at level.
func Setup(environment, level string) {
	slog.SetDefault(New(os.Stderr, os.Stdout, environment, ParseLevel(level)))
}

// New builds a logger. Development output goes to dev, anything else to
// prod.
func New(dev, prod io.Writer, environment string, level slog.Level) *slog.Logger {
	if environment == "" || environment == "development" {
		return slog.New(tint.NewHandler(dev, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}))
	}
	return slog.New(slog.NewJSONHandler(prod, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
