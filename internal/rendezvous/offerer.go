// Package rendezvous runs the offer/answer exchange between two peers that
// share nothing but a signaling store.
package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

// State is a rendezvous state machine state.
type State string

const (
	StateIdle            State = "idle"
	StateOfferPublished  State = "offer_published"
	StatePolling         State = "polling"
	StateAnswerReceived  State = "answer_received"
	StateEstablished     State = "established"
	StateTimedOut        State = "timed_out"
	StateOfferFetched    State = "offer_fetched"
	StateAnswerPublished State = "answer_published"
	StateFailed          State = "failed"
)

// OfferTransport builds the local offer and applies the peer's answer.
type OfferTransport interface {
	CreateOffer(ctx context.Context) (models.SessionDescription, error)
	ApplyAnswer(answer models.SessionDescription) error
}

// Options tunes a rendezvous attempt.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        Clock
	NewID        func() string
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = config.DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultRendezvousTimeout
	}
	if o.Clock == nil {
		o.Clock = RealClock
	}
	if o.NewID == nil {
		o.NewID = NewSessionID
	}
	return o
}

// Offerer is the offering side: Idle, OfferPublished, Polling, then
// AnswerReceived and Established, or TimedOut.
type Offerer struct {
	store     signaling.Store
	transport OfferTransport
	opts      Options

	mu        sync.Mutex
	state     State
	sessionID string
}

func NewOfferer(store signaling.Store, transport OfferTransport, opts Options) *Offerer {
	return &Offerer{
		store:     store,
		transport: transport,
		opts:      opts.withDefaults(),
		state:     StateIdle,
	}
}

// State returns the current state.
func (o *Offerer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID returns the id published by Publish.
func (o *Offerer) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

func (o *Offerer) transition(from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return fmt.Errorf("rendezvous: cannot move to %s from %s", to, o.state)
	}
	o.state = to
	return nil
}

func (o *Offerer) fail(phase string, err error) error {
	o.mu.Lock()
	if o.state != StateTimedOut {
		o.state = StateFailed
	}
	id := o.sessionID
	o.mu.Unlock()

	metrics.RecordRendezvous("offerer", string(apperrors.Classify(err)))
	return apperrors.New("rendezvous", "offer", err).WithSession(id).WithPhase(phase)
}

// maxPublishAttempts bounds session id regeneration on collisions.
const maxPublishAttempts = 3

// Publish generates a session id, builds the local offer and stores it.
// A taken id is replaced by a fresh one up to maxPublishAttempts times.
func (o *Offerer) Publish(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		defer o.mu.Unlock()
		return "", fmt.Errorf("rendezvous: publish from %s", o.state)
	}
	o.sessionID = o.opts.NewID()
	id := o.sessionID
	o.mu.Unlock()

	ctx = logger.WithSessionID(logger.WithRole(ctx, "offerer"), id)

	offer, err := o.transport.CreateOffer(ctx)
	if err != nil {
		return "", o.fail(string(StateIdle), fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err))
	}
	blob, err := json.Marshal(offer)
	if err != nil {
		return "", o.fail(string(StateIdle), err)
	}

	for attempt := 1; ; attempt++ {
		err = o.store.Put(ctx, id, models.FieldOffer, blob)
		if err == nil {
			break
		}
		if apperrors.Is(err, apperrors.ErrAlreadyExists) && attempt < maxPublishAttempts {
			// id collision with a live session: draw another one
			logger.WarnContext(ctx, "Session id taken, regenerating", "attempt", attempt)
			o.mu.Lock()
			o.sessionID = o.opts.NewID()
			id = o.sessionID
			o.mu.Unlock()
			ctx = logger.WithSessionID(ctx, id)
			continue
		}
		if !apperrors.Is(err, apperrors.ErrSignalingWrite) {
			err = fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
		}
		return "", o.fail(string(StateIdle), err)
	}

	if err := o.transition(StateIdle, StateOfferPublished); err != nil {
		return "", err
	}
	logger.InfoContext(ctx, "Offer published")
	return id, nil
}

// AwaitAnswer polls for the answer every PollInterval until it appears or
// Timeout has elapsed since polling began. Polling stops on the first hit.
func (o *Offerer) AwaitAnswer(ctx context.Context) (models.SessionDescription, error) {
	if err := o.transition(StateOfferPublished, StatePolling); err != nil {
		return models.SessionDescription{}, err
	}
	id := o.SessionID()
	ctx = logger.WithPhase(logger.WithSessionID(logger.WithRole(ctx, "offerer"), id), string(StatePolling))

	clock := o.opts.Clock
	deadline := clock.Now().Add(o.opts.Timeout)

	for {
		blob, err := o.store.Get(ctx, id, models.FieldAnswer)
		switch {
		case err == nil:
			var answer models.SessionDescription
			if err := json.Unmarshal(blob, &answer); err != nil {
				return models.SessionDescription{}, o.fail(string(StatePolling),
					fmt.Errorf("%w: malformed answer: %w", apperrors.ErrTransportApply, err))
			}
			if err := o.transition(StatePolling, StateAnswerReceived); err != nil {
				return models.SessionDescription{}, err
			}
			logger.InfoContext(ctx, "Answer received")
			return answer, nil
		case apperrors.Is(err, apperrors.ErrNotFound):
		case ctx.Err() != nil:
			return models.SessionDescription{}, o.fail(string(StatePolling), ctx.Err())
		default:
			logger.WarnContext(ctx, "Answer poll failed", "error", err)
		}

		now := clock.Now()
		if !now.Before(deadline) {
			o.mu.Lock()
			o.state = StateTimedOut
			o.mu.Unlock()
			logger.WarnContext(ctx, "Rendezvous timed out", "timeout", o.opts.Timeout)
			return models.SessionDescription{}, o.fail(string(StatePolling), apperrors.ErrRendezvousTimeout)
		}

		wait := o.opts.PollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return models.SessionDescription{}, o.fail(string(StatePolling), ctx.Err())
		case <-clock.After(wait):
		}
	}
}

// Establish applies the answer to the transport.
func (o *Offerer) Establish(answer models.SessionDescription) error {
	if o.State() != StateAnswerReceived {
		return fmt.Errorf("rendezvous: establish from %s", o.State())
	}
	if err := o.transport.ApplyAnswer(answer); err != nil {
		if !apperrors.Is(err, apperrors.ErrTransportApply) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err)
		}
		return o.fail(string(StateAnswerReceived), err)
	}
	if err := o.transition(StateAnswerReceived, StateEstablished); err != nil {
		return err
	}
	metrics.RecordRendezvous("offerer", "established")
	return nil
}

// Run drives the whole offering side. onPublished, if set, receives the
// session id as soon as the offer is stored.
func (o *Offerer) Run(ctx context.Context, onPublished func(id string)) (string, error) {
	id, err := o.Publish(ctx)
	if err != nil {
		return "", err
	}
	if onPublished != nil {
		onPublished(id)
	}

	answer, err := o.AwaitAnswer(ctx)
	if err != nil {
		return id, err
	}
	if err := o.Establish(answer); err != nil {
		return id, err
	}
	return id, nil
}
