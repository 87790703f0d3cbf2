package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// ContextKeySessionID identifies the rendezvous session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyPhase identifies the handshake or pipeline phase.
	ContextKeyPhase contextKey = "phase"

	// ContextKeyRole identifies the side of the handshake ("offer" or "answer").
	ContextKeyRole contextKey = "role"

	// ContextKeyRequestID identifies an individual HTTP request.
	ContextKeyRequestID contextKey = "request_id"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyPhase,
	ContextKeyRole,
	ContextKeyRequestID,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithPhase returns a new context with the phase set.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ContextKeyPhase, phase)
}

// WithRole returns a new context with the handshake role set.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// ContextHandler is a slog.Handler that copies known context values onto
// each record before delegating to the inner handler.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler creates a new ContextHandler wrapping the given handler.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds context fields to r and passes it on.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, key := range allContextKeys {
			if s, ok := ctx.Value(key).(string); ok && s != "" {
				r.AddAttrs(slog.String(string(key), s))
			}
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
