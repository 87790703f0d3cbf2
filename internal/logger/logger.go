// Package logger provides structured logging for the signaling server and the
// peer tools.
//
// It wraps log/slog with a global DefaultLogger whose records are enriched with
// session, frame and request identifiers carried in context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized from LOG_LEVEL.
	DefaultLogger *slog.Logger

	output io.Writer = os.Stderr
	format           = "text"
)

func init() {
	DefaultLogger = newLogger(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if format == "json" {
		inner = slog.NewJSONHandler(output, opts)
	} else {
		inner = slog.NewTextHandler(output, opts)
	}
	return slog.New(NewContextHandler(inner))
}

// Configure sets the output format ("text" or "json"), level and writer.
// A nil writer keeps the current one.
func Configure(logFormat string, level slog.Level, w io.Writer) {
	if w != nil {
		output = w
	}
	format = strings.ToLower(logFormat)
	DefaultLogger = newLogger(level)
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	DefaultLogger = newLogger(level)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return DefaultLogger.With(args...)
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors such as a failed frame.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}
