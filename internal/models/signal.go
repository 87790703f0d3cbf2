package models

import "encoding/json"

// Field names one half of a signaling record.
type Field string

const (
	FieldOffer  Field = "offer"
	FieldAnswer Field = "answer"
)

// Valid reports whether f is one of the two record fields.
func (f Field) Valid() bool {
	return f == FieldOffer || f == FieldAnswer
}

// SDPType tags a session description as an offer or an answer.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is the connection description one side publishes for the
// other. Its JSON form matches what browsers and pion produce.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// RelayMessage is the envelope exchanged on the detection relay websocket.
type RelayMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Peers     []string        `json:"peers,omitempty"`
}
