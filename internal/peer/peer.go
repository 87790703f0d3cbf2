package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// DataChannelLabel names the channel carrying detection results.
const DataChannelLabel = "detections"

var errChannelClosed = errors.New("detections channel is not open")

// Transport is one side of the peer link. The offering side adds recvonly
// media transceivers and opens the detections channel; the answering side
// accepts the channel from the offer.
type Transport struct {
	PeerConn *webrtc.PeerConnection

	mu       sync.RWMutex
	channel  *webrtc.DataChannel
	onResult func(models.DetectionResult)
	opened   chan struct{}
	openOnce sync.Once
}

// NewTransport creates a peer connection using the given STUN/TURN urls.
func NewTransport(iceServers []string) (*Transport, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &Transport{PeerConn: pc, opened: make(chan struct{})}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("ICE connection state changed", "state", state.String())
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == DataChannelLabel {
			t.attach(dc)
		}
	})
	return t, nil
}

// CreateOffer builds the offering description and waits for ICE gathering so
// the returned SDP carries every candidate.
func (t *Transport) CreateOffer(ctx context.Context) (models.SessionDescription, error) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := t.PeerConn.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return models.SessionDescription{}, fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}

	dc, err := t.PeerConn.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("failed to create data channel: %w", err)
	}
	t.attach(dc)

	offer, err := t.PeerConn.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	return t.publishLocal(ctx, offer)
}

// ApplyAnswer sets the peer's answer as the remote description.
func (t *Transport) ApplyAnswer(answer models.SessionDescription) error {
	if answer.Type != models.SDPTypeAnswer {
		return fmt.Errorf("%w: expected answer, got %q", apperrors.ErrTransportApply, answer.Type)
	}
	if err := t.PeerConn.SetRemoteDescription(toWebRTC(answer)); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err)
	}
	return nil
}

// CreateAnswer applies the peer's offer and builds the answering description.
func (t *Transport) CreateAnswer(ctx context.Context, offer models.SessionDescription) (models.SessionDescription, error) {
	if offer.Type != models.SDPTypeOffer {
		return models.SessionDescription{}, fmt.Errorf("%w: expected offer, got %q", apperrors.ErrTransportApply, offer.Type)
	}
	if err := t.PeerConn.SetRemoteDescription(toWebRTC(offer)); err != nil {
		return models.SessionDescription{}, fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err)
	}

	answer, err := t.PeerConn.CreateAnswer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("%w: %w", apperrors.ErrTransportApply, err)
	}
	return t.publishLocal(ctx, answer)
}

func (t *Transport) publishLocal(ctx context.Context, desc webrtc.SessionDescription) (models.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(t.PeerConn)
	if err := t.PeerConn.SetLocalDescription(desc); err != nil {
		return models.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return models.SessionDescription{}, ctx.Err()
	}

	local := t.PeerConn.LocalDescription()
	if local == nil {
		return models.SessionDescription{}, errors.New("local description not available")
	}
	return models.SessionDescription{Type: models.SDPType(local.Type.String()), SDP: local.SDP}, nil
}

func (t *Transport) attach(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.channel = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		logger.Debug("Detections channel open")
		t.openOnce.Do(func() { close(t.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var result models.DetectionResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			logger.Debug("Error unmarshaling detection result", "error", err)
			return
		}
		t.mu.RLock()
		fn := t.onResult
		t.mu.RUnlock()
		if fn != nil {
			fn(result)
		}
	})
}

// OnResult registers a callback for results arriving on the detections channel.
func (t *Transport) OnResult(fn func(models.DetectionResult)) {
	t.mu.Lock()
	t.onResult = fn
	t.mu.Unlock()
}

// WaitOpen blocks until the detections channel is open.
func (t *Transport) WaitOpen(ctx context.Context) error {
	select {
	case <-t.opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver sends a result over the detections channel.
func (t *Transport) Deliver(_ context.Context, result models.DetectionResult) error {
	t.mu.RLock()
	dc := t.channel
	t.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errChannelClosed
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func (t *Transport) Close() error {
	return t.PeerConn.Close()
}

func toWebRTC(d models.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(d.Type)), SDP: d.SDP}
}
