package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextualError_Error(t *testing.T) {
	err := New("rendezvous", "PollAnswer", ErrRendezvousTimeout).
		WithSession("abc123").
		WithPhase("polling")

	assert.Equal(t, "[rendezvous] PollAnswer session=abc123 phase=polling: rendezvous timed out", err.Error())
	assert.True(t, stderrors.Is(err, ErrRendezvousTimeout))
}

func TestContextualError_StatusCode(t *testing.T) {
	err := New("signaling", "Get", ErrNotFound).WithStatusCode(404)
	assert.Equal(t, "[signaling] Get (status 404): not found", err.Error())
}

func TestContextualError_As(t *testing.T) {
	var wrapped error = fmt.Errorf("outer: %w", New("signaling", "Put", ErrSignalingWrite).WithSession("x1"))

	var ce *ContextualError
	assert.True(t, As(wrapped, &ce))
	assert.Equal(t, "x1", ce.SessionID)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"timeout", New("rendezvous", "Poll", ErrRendezvousTimeout), KindRendezvousTimeout},
		{"unknown session wins over not found", fmt.Errorf("%w: %w", ErrUnknownSession, ErrNotFound), KindUnknownSession},
		{"already answered wins over exists", fmt.Errorf("%w: %w", ErrSessionAlreadyAnswered, ErrAlreadyExists), KindSessionAlreadyAnswered},
		{"not found", ErrNotFound, KindNotFound},
		{"invalid", ErrInvalidID, KindInvalid},
		{"canceled", context.Canceled, KindCanceled},
		{"unknown", stderrors.New("boom"), KindAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
