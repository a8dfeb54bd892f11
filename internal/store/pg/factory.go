package pg

import (
	"fmt"

	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return store.NewStores(
		NewPGMessageStore(db),
		NewPGListingStore(db),
		NewPGConversationStore(db),
		db,
	), nil
}
