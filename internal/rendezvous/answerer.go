package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

// AnswerTransport builds the local answer for a peer's offer. The offer is
// applied as part of building the answer.
type AnswerTransport interface {
	CreateAnswer(ctx context.Context, offer models.SessionDescription) (models.SessionDescription, error)
}

// Answerer is the answering side: Idle, OfferFetched, AnswerPublished,
// Established. It never polls.
type Answerer struct {
	store     signaling.Store
	transport AnswerTransport

	mu        sync.Mutex
	state     State
	sessionID string
}

func NewAnswerer(store signaling.Store, transport AnswerTransport) *Answerer {
	return &Answerer{store: store, transport: transport, state: StateIdle}
}

// State returns the current state.
func (a *Answerer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Answerer) transition(from, to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != from {
		return fmt.Errorf("rendezvous: cannot move to %s from %s", to, a.state)
	}
	a.state = to
	return nil
}

func (a *Answerer) fail(phase string, err error) error {
	a.mu.Lock()
	a.state = StateFailed
	id := a.sessionID
	a.mu.Unlock()

	metrics.RecordRendezvous("answerer", string(apperrors.Classify(err)))
	return apperrors.New("rendezvous", "answer", err).WithSession(id).WithPhase(phase)
}

// FetchOffer reads the offer for id. A missing offer is ErrUnknownSession.
func (a *Answerer) FetchOffer(ctx context.Context, id string) (models.SessionDescription, error) {
	a.mu.Lock()
	if a.state != StateIdle {
		defer a.mu.Unlock()
		return models.SessionDescription{}, fmt.Errorf("rendezvous: fetch from %s", a.state)
	}
	a.sessionID = id
	a.mu.Unlock()

	blob, err := a.store.Get(ctx, id, models.FieldOffer)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			err = fmt.Errorf("%w: %w", apperrors.ErrUnknownSession, err)
		}
		return models.SessionDescription{}, a.fail(string(StateIdle), err)
	}

	var offer models.SessionDescription
	if err := json.Unmarshal(blob, &offer); err != nil {
		return models.SessionDescription{}, a.fail(string(StateIdle),
			fmt.Errorf("%w: malformed offer: %w", apperrors.ErrTransportApply, err))
	}
	if err := a.transition(StateIdle, StateOfferFetched); err != nil {
		return models.SessionDescription{}, err
	}
	return offer, nil
}

// PublishAnswer builds the answer and stores it. A concurrent answer from
// another peer is ErrSessionAlreadyAnswered.
func (a *Answerer) PublishAnswer(ctx context.Context, offer models.SessionDescription) error {
	if a.State() != StateOfferFetched {
		return fmt.Errorf("rendezvous: publish answer from %s", a.State())
	}
	a.mu.Lock()
	id := a.sessionID
	a.mu.Unlock()
	ctx = logger.WithSessionID(logger.WithRole(ctx, "answerer"), id)

	answer, err := a.transport.CreateAnswer(ctx, offer)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrTransportApply) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err)
		}
		return a.fail(string(StateOfferFetched), err)
	}
	blob, err := json.Marshal(answer)
	if err != nil {
		return a.fail(string(StateOfferFetched), err)
	}

	if err := a.store.Put(ctx, id, models.FieldAnswer, blob); err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrAlreadyExists):
			err = fmt.Errorf("%w: %w", apperrors.ErrSessionAlreadyAnswered, err)
		case apperrors.Is(err, apperrors.ErrNotFound):
			err = fmt.Errorf("%w: %w", apperrors.ErrUnknownSession, err)
		case !apperrors.Is(err, apperrors.ErrSignalingWrite):
			err = fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
		}
		return a.fail(string(StateOfferFetched), err)
	}

	if err := a.transition(StateOfferFetched, StateAnswerPublished); err != nil {
		return err
	}
	if err := a.transition(StateAnswerPublished, StateEstablished); err != nil {
		return err
	}
	metrics.RecordRendezvous("answerer", "established")
	logger.InfoContext(ctx, "Answer published")
	return nil
}

// Run drives the whole answering side for id.
func (a *Answerer) Run(ctx context.Context, id string) error {
	offer, err := a.FetchOffer(ctx, id)
	if err != nil {
		return err
	}
	return a.PublishAnswer(ctx, offer)
}
