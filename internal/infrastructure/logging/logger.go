package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/config"
)

// Logger wraps slog.Logger with FreshTrack-specific defaults.
//
// It provides structured logging with default fields and level-based
// filtering. All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger from the logging configuration.
//
// Format "text" produces human-readable output for development; anything
// else produces JSON. Output "stderr" writes to stderr; anything else to
// stdout. The service name and version are attached to every record.
func New(cfg config.Logging, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "freshtrack"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
// Supported levels: debug, info, warn, error. Defaults to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	workerLog := logger.With("component", "deprovision-worker")
//	workerLog.Info("claimed job") // includes component=deprovision-worker
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON to stdout at info level.
func Default() *Logger {
	return New(config.Logging{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
