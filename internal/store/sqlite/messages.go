package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// MessageStore implements store.MessageStore on SQLite.
type MessageStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db, now: time.Now}
}

const messageSelectCols = `id, listing_type, listing_id, sender_id, receiver_id, content, created_at, is_read, correlation_id`

func (s *MessageStore) SaveMessage(ctx context.Context, msg *chat.Message) error {
	msg.ID = store.GenNewID().String()
	msg.CreatedAt = s.now().UTC()
	msg.IsRead = false

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Key.ListingType), msg.Key.ListingID, msg.SenderID, msg.ReceiverID,
		msg.Content, msg.CreatedAt.UnixNano(), 0, msg.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save message: %w", err)
	}
	return nil
}

func (s *MessageStore) ListMessages(ctx context.Context, key chat.ConversationKey) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE listing_type = ? AND listing_id = ?
		 ORDER BY created_at, id`,
		string(key.ListingType), key.ListingID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *MessageStore) ListMessagesBetween(ctx context.Context, key chat.ConversationKey, a, b string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageSelectCols+` FROM messages
		 WHERE listing_type = ? AND listing_id = ?
		   AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		 ORDER BY created_at, id`,
		string(key.ListingType), key.ListingID, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages between: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	msgs := []chat.Message{}
	for rows.Next() {
		var (
			m           chat.Message
			listingType string
			createdAt   int64
			isRead      int
		)
		if err := rows.Scan(
			&m.ID, &listingType, &m.Key.ListingID, &m.SenderID, &m.ReceiverID,
			&m.Content, &createdAt, &isRead, &m.CorrelationID,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.Key.ListingType = chat.ListingType(listingType)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		m.IsRead = isRead != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
