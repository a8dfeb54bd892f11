package chat

import (
	"time"

	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// Message is a persisted chat message. Only IsRead changes after creation,
// and that is owned by the external read-state service.
type Message struct {
	ID            string
	Key           ConversationKey
	SenderID      string
	ReceiverID    string
	Content       string
	CreatedAt     time.Time
	IsRead        bool
	CorrelationID string
}

// Involves reports whether the message was exchanged between a and b, in
// either direction.
func (m *Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Wire converts the message to its protocol form.
func (m *Message) Wire() protocol.Message {
	return protocol.Message{
		ID:            m.ID,
		ListingType:   string(m.Key.ListingType),
		ListingID:     m.Key.ListingID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
		IsRead:        m.IsRead,
		CorrelationID: m.CorrelationID,
	}
}

// WireAll converts a slice, never returning nil so the history payload
// always encodes as a JSON array.
func WireAll(msgs []Message) []protocol.Message {
	out := make([]protocol.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, msgs[i].Wire())
	}
	return out
}
