package sqlite

import (
	"fmt"

	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// NewSQLiteStores creates all stores backed by one SQLite file (standalone mode).
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return store.NewStores(
		NewMessageStore(db),
		NewListingStore(db),
		NewConversationStore(db),
		db,
	), nil
}
