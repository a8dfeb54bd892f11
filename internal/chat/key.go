// Package chat holds the value types shared by the relay: listing-scoped
// conversation keys, party roles, messages and the error taxonomy.
package chat

import (
	"fmt"
	"strings"
)

// ListingType is the kind of listing a conversation is about.
type ListingType string

const (
	ListingTrip  ListingType = "trip"
	ListingCar   ListingType = "car"
	ListingHotel ListingType = "hotel"
	ListingRoom  ListingType = "room"
)

// ListingTypes lists every recognized kind.
var ListingTypes = []ListingType{ListingTrip, ListingCar, ListingHotel, ListingRoom}

// Valid reports whether t is one of the recognized kinds.
func (t ListingType) Valid() bool {
	switch t {
	case ListingTrip, ListingCar, ListingHotel, ListingRoom:
		return true
	}
	return false
}

// ParseListingType validates s without normalizing it.
func ParseListingType(s string) (ListingType, error) {
	t := ListingType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown listing type %q", s)
	}
	return t, nil
}

// ConversationKey identifies a listing-scoped channel. It is comparable and
// used directly as a map key; two keys are equal iff both fields match.
type ConversationKey struct {
	ListingType ListingType
	ListingID   string
}

// NewConversationKey validates both parts.
func NewConversationKey(listingType, listingID string) (ConversationKey, error) {
	t, err := ParseListingType(listingType)
	if err != nil {
		return ConversationKey{}, err
	}
	if strings.TrimSpace(listingID) == "" {
		return ConversationKey{}, fmt.Errorf("listing id is required")
	}
	if listingID != strings.TrimSpace(listingID) {
		return ConversationKey{}, fmt.Errorf("listing id %q has surrounding whitespace", listingID)
	}
	return ConversationKey{ListingType: t, ListingID: listingID}, nil
}

// String renders the key as {type}:{id}, for logs and store partition keys.
func (k ConversationKey) String() string {
	return string(k.ListingType) + ":" + k.ListingID
}
