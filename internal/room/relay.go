package room

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

// Message types on the relay websocket.
const (
	TypeJoined           = "joined"
	TypeDetection        = "detection"
	TypeNewParticipant   = "new-participant"
	TypeGetParticipants  = "get-participants"
	TypeParticipantLeft  = "participant-left"
	TypeParticipantsList = "participants-list"
	TypeLeave            = "leave"
)

// Relay fans detection results out to every viewer of a session.
type Relay struct {
	rooms    *Manager
	upgrader websocket.Upgrader
}

func NewRelay(rooms *Manager) *Relay {
	return &Relay{
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register adds GET /ws/detections/{id} to mux.
func (s *Relay) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/detections/{id}", s.ServeHTTP)
}

func (s *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := signaling.ValidateID(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	memberID := r.URL.Query().Get("member")
	if memberID == "" {
		memberID = uuid.NewString()
	}
	s.HandleWebSocket(conn, sessionID, memberID)
}

// HandleWebSocket serves one member until it leaves or the connection drops.
func (s *Relay) HandleWebSocket(conn *websocket.Conn, sessionID, memberID string) {
	defer conn.Close()

	member := &Member{ID: memberID, Conn: conn}
	r := s.rooms.Join(sessionID, member)
	defer s.handleLeave(r, memberID)

	ctx := logger.WithSessionID(logger.WithRole(context.Background(), "relay"), sessionID)
	logger.DebugContext(ctx, "Relay member joined", "member", memberID)

	s.send(member, models.RelayMessage{Type: TypeJoined, SessionID: sessionID, SenderID: memberID})
	s.broadcast(r, models.RelayMessage{Type: TypeNewParticipant, SessionID: sessionID, SenderID: memberID}, memberID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.DebugContext(ctx, "Relay read error", "member", memberID, "error", err)
			}
			return
		}

		var msg models.RelayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.DebugContext(ctx, "Error unmarshaling relay message", "error", err)
			continue
		}

		switch msg.Type {
		case TypeGetParticipants:
			s.send(member, models.RelayMessage{
				Type:      TypeParticipantsList,
				SessionID: sessionID,
				SenderID:  memberID,
				Peers:     r.MemberIDs(memberID),
			})
		case TypeLeave:
			return
		case TypeDetection:
			msg.SessionID = sessionID
			msg.SenderID = memberID
			s.broadcast(r, msg, memberID)
		default:
			logger.DebugContext(ctx, "Unknown relay message type", "type", msg.Type)
		}
	}
}

func (s *Relay) handleLeave(r *Room, memberID string) {
	if deleted := s.rooms.Leave(r, memberID); deleted {
		return
	}
	s.broadcast(r, models.RelayMessage{Type: TypeParticipantLeft, SessionID: r.ID, SenderID: memberID}, memberID)
}

func (s *Relay) broadcast(r *Room, msg models.RelayMessage, exclude string) {
	r.Lock.RLock()
	targets := make([]*Member, 0, len(r.Members))
	for id, m := range r.Members {
		if id != exclude {
			targets = append(targets, m)
		}
	}
	r.Lock.RUnlock()

	for _, m := range targets {
		s.send(m, msg)
	}
}

func (s *Relay) send(m *Member, msg models.RelayMessage) {
	if err := m.Send(msg); err != nil {
		logger.Debug("Error sending relay message", "member", m.ID, "error", err)
	}
}
