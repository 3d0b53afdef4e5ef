package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions restricts the store directory to owner and group.
	dirPermissions = 0750

	// filePermissions keeps the identity store readable by the owner only.
	// It holds password hashes and token state.
	filePermissions = 0600

	// msPerSecond converts the configured busy timeout to the pragma unit.
	msPerSecond = 1000

	// connectTimeout bounds the startup connectivity check.
	connectTimeout = 5 * time.Second

	// connMaxIdleTime is how long an idle connection is kept open.
	connMaxIdleTime = 30 * time.Minute
)

// DB is the SQLite-backed identity store. It wraps sql.DB with the
// schema migration runner and a health check, and is the single
// handle shared by the identity repository and the daemon.
type DB struct {
	*sql.DB
}

// Config holds the identity store settings from the database section
// of config.yaml.
type Config struct {
	// Path is the SQLite file holding identities and credential state.
	// Its directory is created on first open.
	Path string

	// WALMode enables Write-Ahead Logging so token verification reads
	// are not blocked by concurrent identity writes.
	WALMode bool

	// BusyTimeout is how long (seconds) a statement waits for the
	// write lock before failing with "database is locked".
	BusyTimeout int
}

// Open opens (creating if necessary) the identity store at cfg.Path
// and verifies connectivity before returning.
//
// The pool is pinned to a single connection: SQLite allows one writer,
// and identity mutations are low-volume enough that serialising them
// is simpler than managing reader/writer pools.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating identity store directory: %w", err)
	}

	// Foreign keys are always on; the token table references identities.
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening identity store: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying identity store connection: %w", err)
	}

	// Tighten the file mode. On a fresh open the file may not exist
	// until the first write, so a failure here is ignored.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // First run creates file later

	return db, nil
}

// Close releases the underlying connection. Called once at shutdown.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing identity store: %w", err)
	}
	return nil
}

// HealthCheck reports whether the identity store is reachable. It is
// registered with the readiness endpoint alongside the broker and
// metrics checks.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("identity store health check: %w", err)
	}
	return nil
}

// ExecContext executes a statement that returns no rows, wrapping the
// error so repository call sites do not have to.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// QueryRowContext executes a single-row query.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction. Used by the migration runner so each
// schema change and its bookkeeping row commit together.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
