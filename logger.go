package shmtree

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with shmtree-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogBatchInsert logs a batch insert, warning when the batch was truncated to
// the remaining capacity.
func (l *Logger) LogBatchInsert(requested, inserted int) {
	if l == nil || l.Logger == nil {
		return
	}
	if inserted < requested {
		l.Warn("batch insert truncated to remaining capacity",
			"requested", requested,
			"inserted", inserted,
		)
	} else {
		l.Debug("batch insert completed",
			"count", inserted,
		)
	}
}

// LogUninitialized logs an operation attempted before initialization.
func (l *Logger) LogUninitialized(op string) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Warn("operation on uninitialized tree",
		"op", op,
	)
}

// LogResume logs a resume attach.
func (l *Logger) LogResume(capacity uint32, size int, err error) {
	if l == nil || l.Logger == nil {
		return
	}
	if err != nil {
		l.Error("resume failed",
			"capacity", capacity,
			"error", err,
		)
	} else {
		l.Info("resumed region",
			"capacity", capacity,
			"size", size,
		)
	}
}

// LogSnapshot logs a snapshot write or load.
func (l *Logger) LogSnapshot(op string, bytes int64, err error) {
	if l == nil || l.Logger == nil {
		return
	}
	if err != nil {
		l.Error("snapshot failed",
			"op", op,
			"error", err,
		)
	} else {
		l.Info("snapshot completed",
			"op", op,
			"bytes", bytes,
		)
	}
}
