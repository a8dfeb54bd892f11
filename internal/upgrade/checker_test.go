package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func setVersion(t *testing.T, db *sql.DB, version uint, dirty bool) {
	t.Helper()
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty BOOLEAN NOT NULL)",
		"DELETE FROM schema_migrations",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)", version, dirty); err != nil {
		t.Fatal(err)
	}
}

func TestCheckSchema_FreshDatabase(t *testing.T) {
	s, err := CheckSchema(context.Background(), openDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if !s.NeedsMigration || s.Compatible {
		t.Errorf("status = %+v", s)
	}
	if !errors.Is(s.Err(), ErrSchemaOutdated) {
		t.Errorf("err = %v", s.Err())
	}
}

func TestCheckSchema_Versions(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		want    error
	}{
		{"current", RequiredSchemaVersion, false, nil},
		{"ahead", RequiredSchemaVersion + 1, false, ErrSchemaAhead},
		{"dirty", RequiredSchemaVersion, true, ErrSchemaDirty},
		{"behind", 0, false, ErrSchemaOutdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			setVersion(t, db, tt.version, tt.dirty)
			s, err := CheckSchema(context.Background(), db)
			if err != nil {
				t.Fatal(err)
			}
			if !errors.Is(s.Err(), tt.want) {
				t.Errorf("err = %v, want %v", s.Err(), tt.want)
			}
			if tt.want != nil && FormatError(s) == "" {
				t.Error("empty operator message")
			}
		})
	}
}

func TestFormatError_Dirty(t *testing.T) {
	msg := FormatError(&SchemaStatus{CurrentVersion: 3, RequiredVersion: 3, Dirty: true})
	if !strings.Contains(msg, "migrate force 2") {
		t.Errorf("message = %q", msg)
	}
}
