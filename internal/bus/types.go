package bus

import (
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
)

// Domain event names.
const (
	EventMessageSaved       = "message.saved"
	EventConversationOpened = "conversation.opened"
	EventConversationClosed = "conversation.closed"
)

// Event is an in-process domain event.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageSaved follows a successful persist. Delivered reports whether the
// recipient had a live connection at the time.
type MessageSaved struct {
	Message   chat.Message
	Delivered bool
}

// ConversationOpened follows a completed handshake.
type ConversationOpened struct {
	Key      chat.ConversationKey
	Identity string
	Role     chat.Role
}

// ConversationClosed follows an agency's close-conversation frame.
type ConversationClosed struct {
	Key        chat.ConversationKey
	AgencyID   string
	CustomerID string // empty when no counterpart could be resolved
	ClosedAt   time.Time
}

// EventHandler handles a published event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
