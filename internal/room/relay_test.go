package room

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gianglt2198/webrtc-detect/internal/models"
)

func setupRelay(t *testing.T) (*Manager, string) {
	t.Helper()
	rooms := NewManager()
	mux := http.NewServeMux()
	NewRelay(rooms).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return rooms, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, base, session, member string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/detections/"+session+"?member="+member, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) models.RelayMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.RelayMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRelay_BroadcastsDetections(t *testing.T) {
	rooms, base := setupRelay(t)

	viewer := dial(t, base, "abc123", "viewer")
	assert.Equal(t, TypeJoined, read(t, viewer).Type)

	producer := dial(t, base, "abc123", "producer")
	assert.Equal(t, TypeJoined, read(t, producer).Type)

	joined := read(t, viewer)
	assert.Equal(t, TypeNewParticipant, joined.Type)
	assert.Equal(t, "producer", joined.SenderID)

	result := models.DetectionResult{FrameID: 7, CaptureTS: 1000, Detections: []models.Detection{
		{Label: "person", Score: 0.9, XMin: 0.1, YMin: 0.1, XMax: 0.5, YMax: 0.6},
	}}
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, producer.WriteJSON(models.RelayMessage{Type: TypeDetection, Payload: payload}))

	got := read(t, viewer)
	assert.Equal(t, TypeDetection, got.Type)
	assert.Equal(t, "abc123", got.SessionID)
	assert.Equal(t, "producer", got.SenderID)

	var decoded models.DetectionResult
	require.NoError(t, json.Unmarshal(got.Payload, &decoded))
	assert.Equal(t, result, decoded)

	r, ok := rooms.Get("abc123")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"producer"}, r.MemberIDs("viewer"))
}

func TestRelay_ParticipantsAndLeave(t *testing.T) {
	rooms, base := setupRelay(t)

	a := dial(t, base, "room01", "a")
	read(t, a)
	b := dial(t, base, "room01", "b")
	read(t, b)
	read(t, a)

	require.NoError(t, a.WriteJSON(models.RelayMessage{Type: TypeGetParticipants}))
	list := read(t, a)
	assert.Equal(t, TypeParticipantsList, list.Type)
	assert.Equal(t, []string{"b"}, list.Peers)

	require.NoError(t, b.WriteJSON(models.RelayMessage{Type: TypeLeave}))
	left := read(t, a)
	assert.Equal(t, TypeParticipantLeft, left.Type)
	assert.Equal(t, "b", left.SenderID)

	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool { return rooms.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_RejectsInvalidSession(t *testing.T) {
	_, base := setupRelay(t)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/detections/NOT_VALID", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManager_LeaveDeletesEmptyRoom(t *testing.T) {
	m := NewManager()
	r := m.Join("s1", &Member{ID: "x"})
	m.Join("s1", &Member{ID: "y"})
	assert.Equal(t, 1, m.Len())

	assert.False(t, m.Leave(r, "x"))
	assert.True(t, m.Leave(r, "y"))
	_, ok := m.Get("s1")
	assert.False(t, ok)
}
