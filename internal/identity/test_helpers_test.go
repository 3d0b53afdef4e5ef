package identity

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hallgate/access-core/internal/clock"
)

// repoEpoch is the instant repository test clocks start at.
var repoEpoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// repoClock returns a fake clock for repository tests so created_at and
// updated_at are deterministic.
func repoClock() *clock.Fake {
	return clock.NewFake(repoEpoch)
}

// testDB creates a temporary SQLite database with the identities schema
// applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "identity-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE identities (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			email TEXT,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'moderator', 'admin')),
			is_active INTEGER NOT NULL DEFAULT 1,
			password_changed_at TEXT,
			refresh_token_hash TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX idx_identities_role ON identities(role);
		CREATE INDEX idx_identities_is_active ON identities(is_active);
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("creating identities table: %v", err)
	}

	return db
}

// seedRecord creates and persists a basic active identity for tests.
func seedRecord(t *testing.T, repo *SQLiteRepository, username string, role Role) *Record {
	t.Helper()

	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	rec := &Record{
		Username:     username,
		DisplayName:  "Test " + username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create(%q) error = %v", username, err)
	}
	return rec
}
