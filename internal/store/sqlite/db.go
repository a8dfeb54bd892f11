// Package sqlite implements the relay stores on an embedded SQLite file
// (standalone mode), using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id             TEXT PRIMARY KEY,
    listing_type   TEXT    NOT NULL,
    listing_id     TEXT    NOT NULL,
    sender_id      TEXT    NOT NULL,
    receiver_id    TEXT    NOT NULL,
    content        TEXT    NOT NULL,
    created_at     INTEGER NOT NULL,
    is_read        INTEGER NOT NULL DEFAULT 0,
    correlation_id TEXT    NOT NULL DEFAULT '',
    CHECK (sender_id <> receiver_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages (listing_type, listing_id, created_at, id);

CREATE TABLE IF NOT EXISTS listing_owners (
    listing_type TEXT NOT NULL,
    listing_id   TEXT NOT NULL,
    owner_id     TEXT NOT NULL,
    deleted_at   INTEGER,
    PRIMARY KEY (listing_type, listing_id)
);

CREATE TABLE IF NOT EXISTS conversation_closures (
    id           TEXT PRIMARY KEY,
    listing_type TEXT    NOT NULL,
    listing_id   TEXT    NOT NULL,
    agency_id    TEXT    NOT NULL,
    customer_id  TEXT    NOT NULL DEFAULT '',
    closed_at    INTEGER NOT NULL
);
`

// OpenDB opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serializes writers anyway; a single connection also keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return db, nil
}
