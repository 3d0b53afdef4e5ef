package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hallgate/access-core/internal/clock"
)

// Repository defines the interface for identity record persistence.
//
// The refresh-token methods are the record store contract the token
// lifecycle depends on: at most one live refresh token hash is stored per
// subject, and SwapRefreshToken is an atomic compare-and-set so that two
// concurrent rotations of the same token cannot both succeed.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByUsername(ctx context.Context, username string) (*Record, error)
	List(ctx context.Context, includeInactive bool) ([]Record, error)
	Update(ctx context.Context, rec *Record) error
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	Deactivate(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	ReplaceRefreshToken(ctx context.Context, id, hash string) error
	SwapRefreshToken(ctx context.Context, id, expected, replacement string) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	clk clock.Clock
}

// NewRepository creates a new SQLite-backed identity repository. The
// clock drives created_at and updated_at; a nil clock falls back to the
// system clock.
func NewRepository(db *sql.DB, clk clock.Clock) *SQLiteRepository {
	if clk == nil {
		clk = clock.System()
	}
	return &SQLiteRepository{db: db, clk: clk}
}

const recordColumns = `id, username, display_name, email, password_hash, role, is_active,
	 password_changed_at, refresh_token_hash, created_at, updated_at`

// Create inserts a new identity record. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "usr-" + uuid.NewString()[:8]
	}

	now := r.clk.Now().UTC().Format(time.RFC3339)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	rec.UpdatedAt = rec.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, display_name, email, password_hash, role, is_active,
		 password_changed_at, refresh_token_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Username, rec.DisplayName, nullString(rec.Email),
		rec.PasswordHash, string(rec.Role), boolToInt(rec.IsActive),
		nullTime(rec.PasswordChangedAt), nullString(rec.RefreshTokenHash), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("creating identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity record by ID. Inactive records are
// returned as-is: token verification needs to see IsActive=false to
// classify the failure, not a generic not-found.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	return r.getRecord(ctx, "SELECT "+recordColumns+" FROM identities WHERE id = ?", id)
}

// GetByUsername retrieves an identity record by username.
func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*Record, error) {
	return r.getRecord(ctx, "SELECT "+recordColumns+" FROM identities WHERE username = ?", username)
}

// List returns identity records ordered by creation date. By default only
// active records are returned; includeInactive opts in to deactivated
// accounts (the restore path needs this).
func (r *SQLiteRepository) List(ctx context.Context, includeInactive bool) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM identities"
	if !includeInactive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecordFrom(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Update modifies an identity's mutable fields (display_name, email, role, is_active).
func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	now := r.clk.Now().UTC().Format(time.RFC3339)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET display_name = ?, email = ?, role = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		rec.DisplayName, nullString(rec.Email), string(rec.Role), boolToInt(rec.IsActive), now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating identity: %w", err)
	}

	return requireRow(result)
}

// UpdatePassword changes an identity's password hash and records the
// password-change epoch. Tokens issued before changedAt become invalid.
func (r *SQLiteRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	now := r.clk.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = ?, password_changed_at = ?, updated_at = ? WHERE id = ?`,
		passwordHash, changedAt.UTC().Format(time.RFC3339), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	return requireRow(result)
}

// Deactivate marks an identity as inactive without deleting it.
func (r *SQLiteRepository) Deactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, false)
}

// Restore re-activates a deactivated identity. The password-change epoch
// is left untouched: restoring an account does not resurrect tokens that
// a password change already invalidated.
func (r *SQLiteRepository) Restore(ctx context.Context, id string) error {
	return r.setActive(ctx, id, true)
}

func (r *SQLiteRepository) setActive(ctx context.Context, id string, active bool) error {
	now := r.clk.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), now, id,
	)
	if err != nil {
		return fmt.Errorf("setting identity active state: %w", err)
	}

	return requireRow(result)
}

// Delete removes an identity record by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM identities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}

	return requireRow(result)
}

// Count returns the total number of identity records.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting identities: %w", err)
	}
	return count, nil
}

// ReplaceRefreshToken unconditionally stores a new refresh token hash,
// superseding any prior value (rotation-on-issue).
func (r *SQLiteRepository) ReplaceRefreshToken(ctx context.Context, id, hash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE identities SET refresh_token_hash = ? WHERE id = ?",
		nullString(hash), id,
	)
	if err != nil {
		return fmt.Errorf("replacing refresh token: %w", err)
	}

	return requireRow(result)
}

// SwapRefreshToken atomically replaces the stored refresh token hash only
// if the current value equals expected. Returns false when the stored
// value has already moved on; the caller must treat the presented token
// as revoked. The compare and the write are a single UPDATE statement, so
// two concurrent swaps of the same expected value cannot both win.
func (r *SQLiteRepository) SwapRefreshToken(ctx context.Context, id, expected, replacement string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE identities SET refresh_token_hash = ? WHERE id = ? AND refresh_token_hash = ?",
		nullString(replacement), id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("swapping refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows == 1, nil
}

// ClearRefreshToken removes the stored refresh token hash. Used on logout
// and password change; afterwards every refresh attempt fails as revoked
// until the next issue.
func (r *SQLiteRepository) ClearRefreshToken(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE identities SET refresh_token_hash = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}

	return requireRow(result)
}

// getRecord executes a query and scans a single record result.
func (r *SQLiteRepository) getRecord(ctx context.Context, query string, args ...any) (*Record, error) {
	return scanRecordFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecordFrom scans an identity record from any scanner (Row or Rows).
func scanRecordFrom(s scanner) (*Record, error) {
	var rec Record
	var email, passwordChangedAt, refreshTokenHash sql.NullString
	var role string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&rec.ID, &rec.Username, &rec.DisplayName, &email,
		&rec.PasswordHash, &role, &isActive, &passwordChangedAt,
		&refreshTokenHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning identity: %w", err)
	}

	rec.Role = Role(role)
	rec.IsActive = isActive != 0
	if email.Valid {
		rec.Email = email.String
	}
	if refreshTokenHash.Valid {
		rec.RefreshTokenHash = refreshTokenHash.String
	}
	if passwordChangedAt.Valid {
		t, _ := time.Parse(time.RFC3339, passwordChangedAt.String) //nolint:errcheck // format is controlled
		rec.PasswordChangedAt = &t
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &rec, nil
}

// Helper functions.

// requireRow maps a zero-row UPDATE/DELETE to ErrNotFound.
func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "unique constraint")
}
