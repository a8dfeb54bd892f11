package store

import (
	"context"
	"sort"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
)

// MessageStore persists chat messages. Implementations must be safe for
// concurrent use.
type MessageStore interface {
	// SaveMessage assigns ID and CreatedAt, then inserts msg.
	SaveMessage(ctx context.Context, msg *chat.Message) error
	// ListMessages returns every message of the conversation in ascending
	// CreatedAt order.
	ListMessages(ctx context.Context, key chat.ConversationKey) ([]chat.Message, error)
	// ListMessagesBetween returns the conversation's messages exchanged
	// between a and b (either direction), ascending.
	ListMessagesBetween(ctx context.Context, key chat.ConversationKey, a, b string) ([]chat.Message, error)
}

// SortChronological orders msgs by CreatedAt, ties broken by ID (ids are
// UUID v7 and therefore time-ordered too).
func SortChronological(msgs []chat.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// FilterBetween keeps the messages exchanged between a and b.
func FilterBetween(msgs []chat.Message, a, b string) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Involves(a, b) {
			out = append(out, m)
		}
	}
	return out
}
