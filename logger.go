package arke

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Arke-Institute/arke/cid"
	"github.com/Arke-Institute/arke/pi"
	"github.com/Arke-Institute/arke/relation"
)

// Logger wraps slog.Logger with registry-specific helpers so operations
// log with consistent field names.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithPI adds a pi field to the logger (useful for tagging operations).
func (l *Logger) WithPI(p pi.PI) *Logger {
	return &Logger{
		Logger: l.Logger.With("pi", p),
	}
}

// LogCreate logs an entity creation.
func (l *Logger) LogCreate(ctx context.Context, p pi.PI, tip cid.CID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"pi", p,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "create completed",
			"pi", p,
			"tip", tip,
		)
	}
}

// LogAppend logs a version append.
func (l *Logger) LogAppend(ctx context.Context, p pi.PI, ver int, tip cid.CID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "append failed",
			"pi", p,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "append completed",
			"pi", p,
			"ver", ver,
			"tip", tip,
		)
	}
}

// LogList logs an enumeration page.
func (l *Logger) LogList(ctx context.Context, limit, returned int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "list failed",
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "list completed",
			"limit", limit,
			"returned", returned,
		)
	}
}

// LogRebuild logs an index snapshot rebuild.
func (l *Logger) LogRebuild(ctx context.Context, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index rebuild failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index rebuild completed",
			"elapsed", elapsed,
		)
	}
}

// LogSideEffect logs the terminal state of a relationship side effect.
func (l *Logger) LogSideEffect(effect relation.SideEffect, status relation.Status, err error) {
	if status == relation.StatusFailed {
		l.Error("side effect failed",
			"op", effect.Op,
			"target", effect.Target,
			"subject", effect.Subject,
			"error", err,
		)
	} else {
		l.Debug("side effect applied",
			"op", effect.Op,
			"target", effect.Target,
			"subject", effect.Subject,
		)
	}
}
