package kvlookup

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with lookup-specific helpers.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithDuplicate tags every record with the duplicate number.
func (l *Logger) WithDuplicate(id int) *Logger {
	return &Logger{Logger: l.Logger.With("duplicate", id)}
}

// WithStage tags every record with the stage name.
func (l *Logger) WithStage(name string) *Logger {
	return &Logger{Logger: l.Logger.With("stage", name)}
}

// LogStoreOpen logs the physical open of a store.
func (l *Logger) LogStoreOpen(ctx context.Context, key ResourceKey, entries int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "store open failed",
			"location", key.Location,
			"map", key.MapName,
			"mode", key.Mode.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store opened",
		"location", key.Location,
		"map", key.MapName,
		"mode", key.Mode.String(),
		"entries", entries,
		"duration", d,
	)
}

// LogStoreShared logs a duplicate reusing an already opened store.
func (l *Logger) LogStoreShared(ctx context.Context, key ResourceKey, refs int) {
	l.InfoContext(ctx, "shared store already opened",
		"location", key.Location,
		"map", key.MapName,
		"refs", refs,
	)
}

// LogStoreClose logs the physical close of a store.
func (l *Logger) LogStoreClose(ctx context.Context, key ResourceKey, err error) {
	if err != nil {
		l.ErrorContext(ctx, "store close failed",
			"location", key.Location,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store closed", "location", key.Location)
}

// LogDocument logs the outcome of one document.
func (l *Logger) LogDocument(ctx context.Context, name string, r DocumentResult, err error) {
	if err != nil {
		l.ErrorContext(ctx, "look-up failed",
			"document", name,
			"matched", r.Matched,
			"unmatched", r.Unmatched,
			"skipped", r.Skipped,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "look-up complete",
		"document", name,
		"matched", r.Matched,
		"unmatched", r.Unmatched,
		"skipped", r.Skipped,
	)
}
