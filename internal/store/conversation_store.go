package store

import (
	"context"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
)

// ConversationClosure records an agency marking a conversation resolved.
type ConversationClosure struct {
	Key        chat.ConversationKey
	AgencyID   string
	CustomerID string // empty when the agency closed without a known counterpart
	ClosedAt   time.Time
}

// ConversationStore records conversation lifecycle state that lives outside
// the relay core.
type ConversationStore interface {
	CloseConversation(ctx context.Context, c ConversationClosure) error
}
