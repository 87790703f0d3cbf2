// Package errors provides the error taxonomy shared by the signaling server,
// the rendezvous protocol and the frame pipeline.
//
// ContextualError carries the component and operation that failed plus the
// session id and handshake phase, so an operator has enough to retry:
//
//	err := errors.New("rendezvous", "PollAnswer", errors.ErrRendezvousTimeout).
//		WithSession(id).WithPhase("polling")
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Sentinel errors. Wrap them (fmt.Errorf("%w: ...")) or use them as the Cause
// of a ContextualError; callers match with errors.Is.
var (
	ErrNotFound      = stderrors.New("not found")
	ErrAlreadyExists = stderrors.New("already exists")
	ErrInvalidID     = stderrors.New("invalid session id")
	ErrInvalidBody   = stderrors.New("invalid body")

	ErrSignalingWrite         = stderrors.New("signaling write failed")
	ErrRendezvousTimeout      = stderrors.New("rendezvous timed out")
	ErrUnknownSession         = stderrors.New("unknown session")
	ErrSessionAlreadyAnswered = stderrors.New("session already answered")
	ErrTransportApply         = stderrors.New("transport apply failed")
	ErrInferenceFailure       = stderrors.New("inference failed")
	ErrFinalizeMisuse         = stderrors.New("metrics window already finalized")
)

// Kind is the taxonomy category of an error.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindAlreadyExists          Kind = "already_exists"
	KindInvalid                Kind = "invalid"
	KindSignalingWrite         Kind = "signaling_write"
	KindRendezvousTimeout      Kind = "rendezvous_timeout"
	KindUnknownSession         Kind = "unknown_session"
	KindSessionAlreadyAnswered Kind = "session_already_answered"
	KindTransportApply         Kind = "transport_apply"
	KindInferenceFailure       Kind = "inference_failure"
	KindFinalizeMisuse         Kind = "finalize_misuse"
	KindCanceled               Kind = "canceled"
	KindAborted                Kind = "aborted"
)

// ordered from most to least specific
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrRendezvousTimeout, KindRendezvousTimeout},
	{ErrUnknownSession, KindUnknownSession},
	{ErrSessionAlreadyAnswered, KindSessionAlreadyAnswered},
	{ErrTransportApply, KindTransportApply},
	{ErrInferenceFailure, KindInferenceFailure},
	{ErrFinalizeMisuse, KindFinalizeMisuse},
	{ErrSignalingWrite, KindSignalingWrite},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidID, KindInvalid},
	{ErrInvalidBody, KindInvalid},
}

// Classify returns the most specific Kind matching err. Unknown errors are
// treated as an aborted session rather than ignored.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.kind
		}
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindAborted
}

// ContextualError is a structured error describing where and why a failure
// happened.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "signaling", "rendezvous").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// SessionID is the rendezvous session the error belongs to, if any.
	SessionID string

	// Phase is the handshake or pipeline phase, if any.
	Phase string

	// StatusCode is an optional HTTP status code.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.SessionID != "" {
		base += fmt.Sprintf(" session=%s", e.SessionID)
	}
	if e.Phase != "" {
		base += fmt.Sprintf(" phase=%s", e.Phase)
	}
	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithSession sets the session id.
func (e *ContextualError) WithSession(id string) *ContextualError {
	e.SessionID = id
	return e
}

// WithPhase sets the phase.
func (e *ContextualError) WithPhase(phase string) *ContextualError {
	e.Phase = phase
	return e
}

// WithStatusCode sets the status code.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
