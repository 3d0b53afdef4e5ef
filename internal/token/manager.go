// Package token implements the credential lifecycle: issuing, verifying,
// rotating, and revoking signed access/refresh token pairs.
//
// Access tokens are stateless and verified by signature alone plus the
// subject's current account state. Refresh tokens are additionally checked
// against the single stored hash per subject: a new issuance immediately
// supersedes and invalidates the previous refresh token, and rotation is
// an atomic compare-and-set so a spent token can be redeemed at most once.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hallgate/access-core/internal/clock"
	"github.com/hallgate/access-core/internal/identity"
)

// Default token lifetimes.
const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Store is the slice of the record store the token lifecycle depends on.
// It reads account state and owns the subject's single stored refresh
// token hash. SwapRefreshToken must be atomic from the caller's
// perspective: of two concurrent swaps with the same expected value,
// exactly one succeeds.
type Store interface {
	GetByID(ctx context.Context, id string) (*identity.Record, error)
	ReplaceRefreshToken(ctx context.Context, id, hash string) error
	SwapRefreshToken(ctx context.Context, id, expected, replacement string) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
}

// Config contains token lifecycle settings. The two secrets must differ:
// compromise of one channel must not expose the other.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Pair is a freshly issued credential pair.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Manager issues, verifies, rotates, and revokes credential pairs.
//
// Thread Safety: all methods are safe for concurrent use. Verification is
// local signature math plus a single read; issuance and rotation perform
// one atomic write each.
type Manager struct {
	store Store
	clk   clock.Clock
	cfg   Config
}

// NewManager creates a token lifecycle manager. Zero TTLs fall back to
// the defaults (15 minutes access, 7 days refresh).
func NewManager(store Store, clk clock.Clock, cfg Config) (*Manager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{store: store, clk: clk, cfg: cfg}, nil
}

// Issue generates a credential pair for a subject and persists the new
// refresh token hash as the subject's sole live refresh token, atomically
// replacing any prior value. No other side effect.
func (m *Manager) Issue(ctx context.Context, subjectID string, role identity.Role) (*Pair, error) {
	pair, refreshHash, err := m.mint(subjectID, role)
	if err != nil {
		return nil, err
	}

	if err := m.store.ReplaceRefreshToken(ctx, subjectID, refreshHash); err != nil {
		return nil, fmt.Errorf("persisting refresh token: %w", err)
	}

	return pair, nil
}

// VerifyAccess validates an access token and returns the verified
// identity. This is the hot path: signature math plus one read, no
// writes, and it never touches the stored refresh token.
func (m *Manager) VerifyAccess(ctx context.Context, tokenString string) (*identity.Identity, error) {
	claims, err := parseToken(tokenString, m.cfg.AccessSecret, useAccess, m.clk.Now)
	if err != nil {
		return nil, err
	}

	rec, err := m.loadSubject(ctx, claims)
	if err != nil {
		return nil, err
	}

	return rec.Verified(), nil
}

// VerifyRefresh validates a refresh token: signature and expiry against
// the refresh secret, account state, and byte equality of the stored
// hash with the presented token. A mismatch means the token was already
// rotated out or explicitly revoked.
func (m *Manager) VerifyRefresh(ctx context.Context, tokenString string) (*identity.Identity, error) {
	rec, _, err := m.verifyRefreshRecord(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	return rec.Verified(), nil
}

// Rotate redeems a refresh token for a new credential pair. The swap of
// the stored hash is a single compare-and-set: if the stored value no
// longer equals the presented token's hash (a concurrent rotation
// already won, or the token was revoked), the rotation fails
// with ErrCredentialRevoked. A spent refresh token is therefore
// redeemable at most once.
func (m *Manager) Rotate(ctx context.Context, tokenString string) (*Pair, error) {
	rec, presentedHash, err := m.verifyRefreshRecord(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	pair, newHash, err := m.mint(rec.ID, rec.Role)
	if err != nil {
		return nil, err
	}

	swapped, err := m.store.SwapRefreshToken(ctx, rec.ID, presentedHash, newHash)
	if err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}
	if !swapped {
		return nil, ErrCredentialRevoked
	}

	return pair, nil
}

// Revoke clears the subject's stored refresh token. Used on logout and
// password change; until the next Issue, every refresh attempt for the
// subject fails with ErrCredentialRevoked.
func (m *Manager) Revoke(ctx context.Context, subjectID string) error {
	if err := m.store.ClearRefreshToken(ctx, subjectID); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// mint signs a fresh pair and returns it with the refresh token's hash.
func (m *Manager) mint(subjectID string, role identity.Role) (*Pair, string, error) {
	now := m.clk.Now()

	access, err := signToken(subjectID, role, useAccess, m.cfg.AccessSecret, now, m.cfg.AccessTTL)
	if err != nil {
		return nil, "", err
	}

	refresh, err := signToken(subjectID, role, useRefresh, m.cfg.RefreshSecret, now, m.cfg.RefreshTTL)
	if err != nil {
		return nil, "", err
	}

	pair := &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(m.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(m.cfg.RefreshTTL),
	}
	return pair, HashToken(refresh), nil
}

// verifyRefreshRecord performs full refresh-token verification and
// returns the backing record plus the presented token's hash (the
// expected value for a subsequent compare-and-set).
func (m *Manager) verifyRefreshRecord(ctx context.Context, tokenString string) (*identity.Record, string, error) {
	claims, err := parseToken(tokenString, m.cfg.RefreshSecret, useRefresh, m.clk.Now)
	if err != nil {
		return nil, "", err
	}

	rec, err := m.loadSubject(ctx, claims)
	if err != nil {
		return nil, "", err
	}

	presentedHash := HashToken(tokenString)
	if rec.RefreshTokenHash == "" || rec.RefreshTokenHash != presentedHash {
		return nil, "", ErrCredentialRevoked
	}

	return rec, presentedHash, nil
}

// loadSubject fetches the subject's record and enforces the account
// checks shared by access and refresh verification. Store I/O failure
// fails closed: the caller sees an error, never a verified identity.
func (m *Manager) loadSubject(ctx context.Context, claims *Claims) (*identity.Record, error) {
	rec, err := m.store.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Subject deleted after issuance: force re-authentication.
			return nil, ErrCredentialRevoked
		}
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	if !rec.IsActive {
		return nil, ErrAccountInactive
	}

	if rec.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		rec.PasswordChangedAt.After(claims.IssuedAt.Time) {
		return nil, ErrCredentialStale
	}

	return rec, nil
}
