// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	AddSource bool
	Level     string
	// Format is FormatJSON (default) or FormatConsole.
	Format string
	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// New builds a logger from opt and installs it as the slog default.
// An unknown level falls back to info and is reported through err.
func New(opt *Options) (*slog.Logger, error) {
	if opt == nil {
		return nil, fmt.Errorf("logger options are required")
	}

	writer := opt.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level, err := ParseLevel(opt.Level)

	var handler slog.Handler

	switch strings.ToLower(opt.Format) {
	case FormatConsole:
		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			AddSource:  opt.AddSource,
			TimeFormat: time.TimeOnly,
		})
	default:
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			AddSource: opt.AddSource,
			Level:     level,
		})
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log, err
}

// ParseLevel converts a string level to slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}
