package chat

import "silink/internal/repo"

// Event types pushed to websocket clients.
const (
	EventNewMessage = "new_message"
	EventAuthOK     = "auth_ok"
	EventError      = "error"
)

// Event is a server → client websocket frame.
type Event struct {
	Type    string            `json:"type"`
	Message *repo.ChatMessage `json:"message,omitempty"`
	UserID  string            `json:"userId,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// NewMessageEvent wraps a stored message for live delivery.
func NewMessageEvent(msg repo.ChatMessage) Event {
	return Event{Type: EventNewMessage, Message: &msg}
}

// Outcome classifies a live delivery attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeOffline   Outcome = "offline"
	OutcomeDropped   Outcome = "dropped"
)
