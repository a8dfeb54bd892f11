// Package listing resolves which agency owns a listing.
package listing

import (
	"context"
	"errors"
	"strings"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// OwnerResolver answers listing ownership for the relay, translating backend
// errors into chat errors.
type OwnerResolver struct {
	source store.ListingStore
}

func NewOwnerResolver(source store.ListingStore) *OwnerResolver {
	return &OwnerResolver{source: source}
}

// Owner returns the owning agency's identity. An unknown listing yields an
// error that matches both chat.ErrListingLookup and store.ErrListingNotFound.
func (r *OwnerResolver) Owner(ctx context.Context, key chat.ConversationKey) (string, error) {
	if r == nil || r.source == nil {
		return "", chat.Errorf(chat.CodeListingLookup, "no listing source configured")
	}
	owner, err := r.source.ListingOwner(ctx, key)
	if errors.Is(err, store.ErrListingNotFound) {
		return "", chat.Wrap(chat.CodeListingLookup, "listing "+key.String()+" not found", err)
	}
	if err != nil {
		return "", chat.Wrap(chat.CodeListingLookup, "listing lookup failed", err)
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", chat.Errorf(chat.CodeListingLookup, "listing %s has no owner", key)
	}
	return owner, nil
}
