package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/room"
)

var testEncoder = Encoder{Width: 320, Height: 240, Quality: 70}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func decodedSize(t *testing.T, payload []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(payload))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestDirSource_ScalesAndCycles(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 640, 480)
	writePNG(t, filepath.Join(dir, "a.png"), 100, 50)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))

	src, err := NewDirSource(dir, testEncoder)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	first, err := src.Capture(context.Background())
	require.NoError(t, err)
	w, h := decodedSize(t, first.Payload)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	assert.Equal(t, 320, first.Width)

	_, err = src.Capture(context.Background())
	require.NoError(t, err)
	third, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Payload, third.Payload)
}

func TestDirSource_Empty(t *testing.T) {
	_, err := NewDirSource(t.TempDir(), testEncoder)
	assert.Error(t, err)
}

func TestPatternSource(t *testing.T) {
	src := NewPatternSource(testEncoder)
	a, err := src.Capture(context.Background())
	require.NoError(t, err)
	b, err := src.Capture(context.Background())
	require.NoError(t, err)

	w, h := decodedSize(t, a.Payload)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	assert.NotEqual(t, a.Payload, b.Payload, "box moves between frames")
}

func TestMailboxSource_LatestWins(t *testing.T) {
	m := NewMailboxSource()
	_, err := m.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoInput)

	m.Push(Image{Payload: []byte{1}})
	m.Push(Image{Payload: []byte{2}})
	img, err := m.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, img.Payload)
	assert.Equal(t, uint64(1), m.Overwritten())

	_, err = m.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRelayURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:3000/ws/detections/abc123", relayURL("http://localhost:3000/", "abc123", ""))
	assert.Equal(t, "wss://x.example/ws/detections/abc?member=p+1", relayURL("https://x.example", "abc", "p 1"))
}

func TestWebSocketSink_ThroughRelay(t *testing.T) {
	mux := http.NewServeMux()
	room.NewRelay(room.NewManager()).Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	viewerURL := relayURL(ts.URL, "abc123", "viewer")
	viewer, _, err := websocket.DefaultDialer.Dial(viewerURL, nil)
	require.NoError(t, err)
	defer viewer.Close()

	var msg models.RelayMessage
	require.NoError(t, viewer.ReadJSON(&msg))
	require.Equal(t, room.TypeJoined, msg.Type)

	sink, err := DialRelay(context.Background(), ts.URL, "abc123", "producer")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, viewer.ReadJSON(&msg))
	require.Equal(t, room.TypeNewParticipant, msg.Type)

	result := models.DetectionResult{FrameID: 3, CaptureTS: 10, OverlayDisplayTS: 20, Detections: []models.Detection{}}
	require.NoError(t, sink.Deliver(context.Background(), result))

	require.NoError(t, viewer.ReadJSON(&msg))
	assert.Equal(t, room.TypeDetection, msg.Type)
	assert.Equal(t, "producer", msg.SenderID)
	assert.JSONEq(t, `{"frame_id":3,"capture_ts":10,"overlay_display_ts":20,"detections":[]}`, string(msg.Payload))
}
