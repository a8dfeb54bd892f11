package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// openTestDB connects to BOOKI_TEST_POSTGRES_DSN and applies the schema.
// Tests are skipped without it.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("BOOKI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOOKI_TEST_POSTGRES_DSN not set")
	}
	db, err := OpenDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../../migrations/000001_init.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func uniqueRoom() chat.ConversationKey {
	return chat.ConversationKey{ListingType: chat.ListingRoom, ListingID: "test-" + uuid.NewString()}
}

func TestPGMessageStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewPGMessageStore(db)
	key := uniqueRoom()

	first := &chat.Message{Key: key, SenderID: "cust-1", ReceiverID: "ag-9", Content: "hello", CorrelationID: "c-1"}
	require.NoError(t, s.SaveMessage(ctx, first))
	require.NotEmpty(t, first.ID)
	require.False(t, first.IsRead)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.SaveMessage(ctx, &chat.Message{Key: key, SenderID: "ag-9", ReceiverID: "cust-1", Content: "hi back"}))
	require.NoError(t, s.SaveMessage(ctx, &chat.Message{Key: key, SenderID: "cust-2", ReceiverID: "ag-9", Content: "other"}))

	all, err := s.ListMessages(ctx, key)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "hello", all[0].Content)
	require.Equal(t, key, all[0].Key)
	require.Equal(t, "c-1", all[0].CorrelationID)
	// The acked timestamp must be the one replayed.
	require.Equal(t, first.ID, all[0].ID)
	require.True(t, all[0].CreatedAt.Equal(first.CreatedAt), "stored %s, acked %s", all[0].CreatedAt, first.CreatedAt)
	require.Equal(t, first.CreatedAt, first.CreatedAt.Truncate(time.Microsecond))

	between, err := s.ListMessagesBetween(ctx, key, "ag-9", "cust-1")
	require.NoError(t, err)
	require.Len(t, between, 2)

	empty, err := s.ListMessages(ctx, uniqueRoom())
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestPGMessageStore_RejectsSelfMessage(t *testing.T) {
	db := openTestDB(t)
	err := NewPGMessageStore(db).SaveMessage(context.Background(), &chat.Message{
		Key: uniqueRoom(), SenderID: "ag-9", ReceiverID: "ag-9", Content: "me",
	})
	require.Error(t, err)
}

func TestPGListingStore_Owner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewPGListingStore(db)
	key := uniqueRoom()

	_, err := s.ListingOwner(ctx, key)
	require.ErrorIs(t, err, store.ErrListingNotFound)

	_, err = db.Exec(`INSERT INTO listing_owners (listing_type, listing_id, owner_id) VALUES ($1, $2, $3)`,
		string(key.ListingType), key.ListingID, "ag-9")
	require.NoError(t, err)

	owner, err := s.ListingOwner(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "ag-9", owner)

	_, err = db.Exec(`UPDATE listing_owners SET deleted_at = NOW() WHERE listing_id = $1`, key.ListingID)
	require.NoError(t, err)
	_, err = s.ListingOwner(ctx, key)
	require.ErrorIs(t, err, store.ErrListingNotFound)
}

func TestPGConversationStore_Close(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	key := uniqueRoom()

	require.NoError(t, NewPGConversationStore(db).CloseConversation(ctx, store.ConversationClosure{
		Key: key, AgencyID: "ag-9", CustomerID: "cust-1",
	}))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM conversation_closures WHERE listing_id = $1`, key.ListingID))
	require.Equal(t, 1, n)
}
