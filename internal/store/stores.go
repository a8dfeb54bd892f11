package store

import "io"

// Stores is the top-level container for the storage backends the relay
// consumes. Listings is nil when listing ownership comes from the external
// HTTP listing API instead of the database.
type Stores struct {
	Messages      MessageStore
	Listings      ListingStore
	Conversations ConversationStore

	closer io.Closer
}

// NewStores bundles backends; closer (may be nil) releases the shared
// connection pool.
func NewStores(msgs MessageStore, listings ListingStore, convs ConversationStore, closer io.Closer) *Stores {
	return &Stores{Messages: msgs, Listings: listings, Conversations: convs, closer: closer}
}

// Close releases the underlying database handle, if any.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Mode        string // "standalone" (sqlite), "managed" (postgres), "dynamodb"
	PostgresDSN string
	SQLitePath  string
	DynamoTable string
}
