package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gianglt2198/webrtc-detect/internal/models"
)

const writeWait = 5 * time.Second

// Member is one websocket connection in a relay room.
type Member struct {
	ID        string
	Conn      *websocket.Conn
	SendMutex sync.Mutex
}

// Send writes msg to the member. Writes are serialized per connection.
func (m *Member) Send(msg models.RelayMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m.SendMutex.Lock()
	defer m.SendMutex.Unlock()

	_ = m.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return m.Conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (m *Member) Close() error {
	return m.Conn.Close()
}
