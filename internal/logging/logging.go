// Package logging builds the structured logger used by the client engine.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/UkralStul/confession-feed/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level slog.Level
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// New creates a logger writing to stderr.
func New(cfg config.Logging) *Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a logger with a custom writer
func NewWithWriter(cfg config.Logging, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler), level: level}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), level: slog.LevelError}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component), level: l.level}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// LogMutation logs the outcome of a like or post mutation.
func (l *Logger) LogMutation(op, subjectID string, duration time.Duration, err error) {
	if err != nil {
		l.Error("mutation failed",
			"operation", op,
			"subject", subjectID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return
	}
	l.Debug("mutation completed",
		"operation", op,
		"subject", subjectID,
		"duration_ms", duration.Milliseconds())
}

// LogInvalidation logs a scoped cache invalidation.
func (l *Logger) LogInvalidation(kind, scope string, removed int) {
	l.Debug("cache invalidated",
		"kind", kind,
		"scope", scope,
		"removed", removed)
}
