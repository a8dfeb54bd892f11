package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// PGConversationStore records conversation closures.
type PGConversationStore struct {
	db *sqlx.DB
}

func NewPGConversationStore(db *sqlx.DB) *PGConversationStore {
	return &PGConversationStore{db: db}
}

func (s *PGConversationStore) CloseConversation(ctx context.Context, c store.ConversationClosure) error {
	if c.ClosedAt.IsZero() {
		c.ClosedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_closures (id, listing_type, listing_id, agency_id, customer_id, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		store.GenNewID(), string(c.Key.ListingType), c.Key.ListingID, c.AgencyID, c.CustomerID, c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("pg: close conversation: %w", err)
	}
	return nil
}
