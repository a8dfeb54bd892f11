package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// ConversationStore records conversation closures.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) CloseConversation(ctx context.Context, c store.ConversationClosure) error {
	if c.ClosedAt.IsZero() {
		c.ClosedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_closures (id, listing_type, listing_id, agency_id, customer_id, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		store.GenNewID().String(), string(c.Key.ListingType), c.Key.ListingID, c.AgencyID, c.CustomerID, c.ClosedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: close conversation: %w", err)
	}
	return nil
}

// CountClosures returns how many times the conversation was closed.
func (s *ConversationStore) CountClosures(ctx context.Context, key chat.ConversationKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_closures WHERE listing_type = ? AND listing_id = ?`,
		string(key.ListingType), key.ListingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count closures: %w", err)
	}
	return n, nil
}
