package cubestore

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/cubestore/dataspace"
)

// Logger wraps slog.Logger with cubestore-specific context.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDataset adds a dataset field to the logger.
func (l *Logger) WithDataset(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", name),
	}
}

// WithBackend adds a backend field to the logger.
func (l *Logger) WithBackend(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("backend", id),
	}
}

// LogWrite logs a dataset write.
func (l *Logger) LogWrite(ctx context.Context, space *dataspace.Dataspace, fragments int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"region", region(space),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "write completed",
			"region", region(space),
			"fragments", fragments,
			"duration", d,
		)
	}
}

// LogRead logs a dataset read.
func (l *Logger) LogRead(ctx context.Context, space *dataspace.Dataspace, fragments int, filled int64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "read failed",
			"region", region(space),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "read completed",
			"region", region(space),
			"fragments", fragments,
			"filled", filled,
			"duration", d,
		)
	}
}

// LogCommit logs a dataset commit.
func (l *Logger) LogCommit(ctx context.Context, added, replaced int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"added", added,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "commit completed",
			"added", added,
			"replaced", replaced,
		)
	}
}

// LogOpen logs the loading of a dataset.
func (l *Logger) LogOpen(ctx context.Context, fragments int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "dataset opened",
			"fragments", fragments,
		)
	}
}

func region(space *dataspace.Dataspace) string {
	if space == nil {
		return "<nil>"
	}
	return space.Extents().String()
}
