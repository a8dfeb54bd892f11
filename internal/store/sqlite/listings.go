package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// ListingStore resolves listing owners from the local listing_owners table.
type ListingStore struct {
	db *sql.DB
}

func NewListingStore(db *sql.DB) *ListingStore {
	return &ListingStore{db: db}
}

func (s *ListingStore) ListingOwner(ctx context.Context, key chat.ConversationKey) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM listing_owners
		 WHERE listing_type = ? AND listing_id = ? AND deleted_at IS NULL`,
		string(key.ListingType), key.ListingID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrListingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: listing owner: %w", err)
	}
	return owner, nil
}

// UpsertOwner sets the owner of a listing. Standalone deployments seed
// ownership through it.
func (s *ListingStore) UpsertOwner(ctx context.Context, key chat.ConversationKey, ownerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listing_owners (listing_type, listing_id, owner_id, deleted_at)
		 VALUES (?, ?, ?, NULL)
		 ON CONFLICT (listing_type, listing_id) DO UPDATE SET owner_id = excluded.owner_id, deleted_at = NULL`,
		string(key.ListingType), key.ListingID, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: upsert owner: %w", err)
	}
	return nil
}

// MarkDeleted soft-deletes a listing; it then resolves as not found.
func (s *ListingStore) MarkDeleted(ctx context.Context, key chat.ConversationKey) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listing_owners SET deleted_at = ? WHERE listing_type = ? AND listing_id = ?`,
		time.Now().UnixNano(), string(key.ListingType), key.ListingID)
	if err != nil {
		return fmt.Errorf("sqlite: mark deleted: %w", err)
	}
	return nil
}
