package bkdgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with consistent field names.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithDims adds a dims field to the logger.
func (l *Logger) WithDims(dims int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dims", dims),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, value Value, inserted bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"value", value,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "insert completed",
		"value", value,
		"inserted", inserted,
	)
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, value Value, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"value", value,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "delete completed",
		"value", value,
		"found", found,
	)
}

// LogQuery logs a range query.
func (l *Logger) LogQuery(ctx context.Context, box Box, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"box", box,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query completed",
		"box", box,
		"results", results,
	)
}

// LogFlush logs a flush.
func (l *Logger) LogFlush(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "flush failed",
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "flush completed",
		"duration", duration,
	)
}
