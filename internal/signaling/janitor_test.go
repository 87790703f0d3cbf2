package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

func TestRunJanitor_SweepsExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "abc123", models.FieldOffer, []byte(`{}`)))

	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, store, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "abc123", models.FieldOffer)
		return apperrors.Is(err, apperrors.ErrNotFound)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

type plainStore struct{ Store }

func TestRunJanitor_ReturnsWithoutSweeper(t *testing.T) {
	done := make(chan struct{})
	go func() {
		RunJanitor(context.Background(), plainStore{}, time.Millisecond, time.Minute)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor should return for stores that expire on their own")
	}

	// zero ttl keeps records and returns at once
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "abc123", models.FieldOffer, []byte(`{}`)))
	RunJanitor(context.Background(), store, time.Millisecond, 0)
	_, err := store.Get(context.Background(), "abc123", models.FieldOffer)
	assert.NoError(t, err)
}
