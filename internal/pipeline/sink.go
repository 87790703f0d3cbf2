package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// Sink receives each detection result once, in frame id order.
type Sink interface {
	Deliver(ctx context.Context, result models.DetectionResult) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, result models.DetectionResult) error

func (f SinkFunc) Deliver(ctx context.Context, result models.DetectionResult) error {
	return f(ctx, result)
}

// ChanSink forwards results to a channel, dropping them when the reader lags.
type ChanSink struct {
	C chan models.DetectionResult
}

func NewChanSink(size int) *ChanSink {
	return &ChanSink{C: make(chan models.DetectionResult, size)}
}

func (s *ChanSink) Deliver(_ context.Context, result models.DetectionResult) error {
	select {
	case s.C <- result:
		return nil
	default:
		return fmt.Errorf("result channel full, dropped frame %d", result.FrameID)
	}
}

// WebSocketSink publishes results to the detection relay for a session.
type WebSocketSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialRelay connects to the relay endpoint of baseURL (http or https) for id.
func DialRelay(ctx context.Context, baseURL, id, member string) (*WebSocketSink, error) {
	target := relayURL(baseURL, id, member)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", target, err)
	}
	return &WebSocketSink{conn: conn}, nil
}

func relayURL(baseURL, id, member string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	u += "/ws/detections/" + id
	if member != "" {
		u += "?member=" + url.QueryEscape(member)
	}
	return u
}

// relayMessage mirrors the relay envelope for outgoing detections.
type relayMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *WebSocketSink) Deliver(_ context.Context, result models.DetectionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(relayMessage{Type: "detection", Payload: payload})
}

func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
