package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// Message type constants of the round stream protocol.
const (
	// server to client
	TypeSnapshot      = "snapshot"
	TypeRoundFinished = "round_finished"
	TypeError         = "error"
	TypeAck           = "ack"

	// client to server
	TypePose = "pose"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement of a client message.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// ErrorPayload reports a rejected client message.
type ErrorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// PosePayload carries a pose update from the client.
type PosePayload struct {
	Pose core.Pose `json:"pose"`
}

// Encode wraps payload in an Envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Ack builds the acknowledgement for a client message type.
func Ack(forType string) ([]byte, error) {
	return json.Marshal(AckMessage{Type: TypeAck, For: forType})
}
