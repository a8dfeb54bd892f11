package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// PGListingStore resolves listing owners from the listing_owners table,
// which is kept in sync by the listings service.
type PGListingStore struct {
	db *sqlx.DB
}

func NewPGListingStore(db *sqlx.DB) *PGListingStore {
	return &PGListingStore{db: db}
}

func (s *PGListingStore) ListingOwner(ctx context.Context, key chat.ConversationKey) (string, error) {
	var owner string
	err := s.db.GetContext(ctx, &owner,
		`SELECT owner_id FROM listing_owners
		 WHERE listing_type = $1 AND listing_id = $2 AND deleted_at IS NULL`,
		string(key.ListingType), key.ListingID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrListingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("pg: listing owner: %w", err)
	}
	return owner, nil
}
