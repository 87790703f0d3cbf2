package session

import (
	"context"
	"sync"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/pipeline"
	"github.com/gianglt2198/webrtc-detect/internal/rendezvous"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

// AnswerLink is the peer transport seen from the answering side.
type AnswerLink interface {
	rendezvous.AnswerTransport
	OnResult(fn func(models.DetectionResult))
}

// Viewer is the answering side: it joins an existing session and forwards
// every detection result it receives to its sinks.
type Viewer struct {
	id    string
	store signaling.Store
	link  AnswerLink
	sinks []pipeline.Sink

	mu       sync.Mutex
	received uint64
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	stopping bool
}

func NewViewer(id string, store signaling.Store, link AnswerLink, sinks ...pipeline.Sink) *Viewer {
	return &Viewer{id: id, store: store, link: link, sinks: sinks, done: make(chan struct{})}
}

func (v *Viewer) ID() string { return v.id }

// Received returns how many results arrived over the link.
func (v *Viewer) Received() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.received
}

// Run answers the offer and then relays results until ctx is done.
// Rendezvous failures are returned; a canceled context ends Run cleanly.
func (v *Viewer) Run(ctx context.Context) error {
	v.mu.Lock()
	if v.started {
		v.mu.Unlock()
		return errAlreadyRun
	}
	v.started = true
	if v.stopping {
		v.mu.Unlock()
		close(v.done)
		return nil
	}
	ctx, v.cancel = context.WithCancel(ctx)
	v.mu.Unlock()
	defer close(v.done)
	defer v.cancel()

	ctx = logger.WithRole(logger.WithSessionID(ctx, v.id), "answerer")

	v.link.OnResult(func(result models.DetectionResult) {
		v.mu.Lock()
		v.received++
		v.mu.Unlock()
		for _, sink := range v.sinks {
			if err := sink.Deliver(ctx, result); err != nil {
				logger.DebugContext(ctx, "Sink delivery failed", "frame_id", result.FrameID, "error", err)
			}
		}
	})

	if err := rendezvous.NewAnswerer(v.store, v.link).Run(ctx, v.id); err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Viewer stopped", "received", v.Received())
	return nil
}

// Stop ends Run and waits for it to return.
func (v *Viewer) Stop() {
	v.mu.Lock()
	v.stopping = true
	cancel, started := v.cancel, v.started
	v.mu.Unlock()
	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-v.done
}
