package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sqlx.DB
}

func NewPGMessageStore(db *sqlx.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

const messageSelectCols = `id::text AS id, listing_type, listing_id, sender_id, receiver_id, content, created_at, is_read, correlation_id`

type messageRow struct {
	ID            string    `db:"id"`
	ListingType   string    `db:"listing_type"`
	ListingID     string    `db:"listing_id"`
	SenderID      string    `db:"sender_id"`
	ReceiverID    string    `db:"receiver_id"`
	Content       string    `db:"content"`
	CreatedAt     time.Time `db:"created_at"`
	IsRead        bool      `db:"is_read"`
	CorrelationID string    `db:"correlation_id"`
}

func (r messageRow) toMessage() chat.Message {
	return chat.Message{
		ID:            r.ID,
		Key:           chat.ConversationKey{ListingType: chat.ListingType(r.ListingType), ListingID: r.ListingID},
		SenderID:      r.SenderID,
		ReceiverID:    r.ReceiverID,
		Content:       r.Content,
		CreatedAt:     r.CreatedAt.UTC(),
		IsRead:        r.IsRead,
		CorrelationID: r.CorrelationID,
	}
}

func (s *PGMessageStore) SaveMessage(ctx context.Context, msg *chat.Message) error {
	msg.ID = store.GenNewID().String()
	msg.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	msg.IsRead = false

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, listing_type, listing_id, sender_id, receiver_id, content, created_at, is_read, correlation_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, string(msg.Key.ListingType), msg.Key.ListingID, msg.SenderID, msg.ReceiverID,
		msg.Content, msg.CreatedAt, msg.IsRead, msg.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("pg: save message: %w", err)
	}
	return nil
}

func (s *PGMessageStore) ListMessages(ctx context.Context, key chat.ConversationKey) ([]chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE listing_type = $1 AND listing_id = $2
		 ORDER BY created_at, id`,
		string(key.ListingType), key.ListingID)
	if err != nil {
		return nil, fmt.Errorf("pg: list messages: %w", err)
	}
	return toMessages(rows), nil
}

func (s *PGMessageStore) ListMessagesBetween(ctx context.Context, key chat.ConversationKey, a, b string) ([]chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE listing_type = $1 AND listing_id = $2
		   AND ((sender_id = $3 AND receiver_id = $4) OR (sender_id = $4 AND receiver_id = $3))
		 ORDER BY created_at, id`,
		string(key.ListingType), key.ListingID, a, b)
	if err != nil {
		return nil, fmt.Errorf("pg: list messages between: %w", err)
	}
	return toMessages(rows), nil
}

func toMessages(rows []messageRow) []chat.Message {
	msgs := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toMessage())
	}
	return msgs
}
