package blockfs

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with blockfs-specific context.
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

// WithFile adds a file name field to the logger.
func (l *Logger) WithFile(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", name),
	}
}

// LogWrite logs a write on the data path. The data path is synchronous
// and carries no context.
func (l *Logger) LogWrite(name string, off int64, n int, err error) {
	if err != nil {
		l.Error("write failed",
			"file", name,
			"offset", off,
			"error", err,
		)
	} else {
		l.Debug("write completed",
			"file", name,
			"offset", off,
			"bytes", n,
		)
	}
}

// LogRead logs a read on the data path.
func (l *Logger) LogRead(name string, off int64, n int, err error) {
	if err != nil {
		l.Error("read failed",
			"file", name,
			"offset", off,
			"error", err,
		)
	} else {
		l.Debug("read completed",
			"file", name,
			"offset", off,
			"bytes", n,
		)
	}
}

// LogAlloc logs a block allocation triggered by a first write.
func (l *Logger) LogAlloc(name string, block uint32, err error) {
	if err != nil {
		l.Error("block allocation failed",
			"file", name,
			"error", err,
		)
	} else {
		l.Debug("block allocated",
			"file", name,
			"block", block,
		)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, dest string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"dest", dest,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot written",
			"dest", dest,
			"bytes", bytes,
		)
	}
}
