package store

import (
	"context"
	"errors"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
)

// ErrListingNotFound is returned when a listing does not exist or was deleted.
var ErrListingNotFound = errors.New("listing not found")

// ListingStore resolves the owning agency identity of a listing.
type ListingStore interface {
	ListingOwner(ctx context.Context, key chat.ConversationKey) (string, error)
}
