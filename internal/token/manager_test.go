package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hallgate/access-core/internal/clock"
	"github.com/hallgate/access-core/internal/identity"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789ab"
	testRefreshSecret = "refresh-secret-for-tests-0123456789a"
)

// fakeStore is an in-memory Store for manager tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*identity.Record
	getErr  error
}

func newFakeStore(records ...*identity.Record) *fakeStore {
	s := &fakeStore{records: make(map[string]*identity.Record)}
	for _, rec := range records {
		cp := *rec
		s.records[rec.ID] = &cp
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) ReplaceRefreshToken(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return identity.ErrNotFound
	}
	rec.RefreshTokenHash = hash
	return nil
}

func (s *fakeStore) SwapRefreshToken(_ context.Context, id, expected, replacement string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, identity.ErrNotFound
	}
	if rec.RefreshTokenHash == "" || rec.RefreshTokenHash != expected {
		return false, nil
	}
	rec.RefreshTokenHash = replacement
	return true, nil
}

func (s *fakeStore) ClearRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return identity.ErrNotFound
	}
	rec.RefreshTokenHash = ""
	return nil
}

// mutate runs fn against the live record under the store lock.
func (s *fakeStore) mutate(t *testing.T, id string, fn func(*identity.Record)) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		t.Fatalf("mutate: record %s not found", id)
	}
	fn(rec)
}

func testRecord() *identity.Record {
	return &identity.Record{
		ID:       "usr-test1234",
		Username: "alice",
		Role:     identity.RoleUser,
		IsActive: true,
	}
}

func testManager(t *testing.T, store Store, clk clock.Clock) *Manager {
	t.Helper()
	m, err := NewManager(store, clk, Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManager_SecretValidation(t *testing.T) {
	store := newFakeStore()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing access secret", Config{RefreshSecret: testRefreshSecret}},
		{"missing refresh secret", Config{AccessSecret: testAccessSecret}},
		{"identical secrets", Config{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(store, nil, tt.cfg); err == nil {
				t.Error("NewManager() should reject invalid secrets")
			}
		})
	}
}

func TestManager_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore(testRecord())
	m := testManager(t, store, clk)

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Issue() returned empty tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens should differ")
	}
	if !pair.AccessExpiresAt.Equal(clk.Now().Add(defaultAccessTTL)) {
		t.Errorf("AccessExpiresAt = %v, want %v", pair.AccessExpiresAt, clk.Now().Add(defaultAccessTTL))
	}

	id, err := m.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if id.SubjectID != "usr-test1234" {
		t.Errorf("SubjectID = %q, want usr-test1234", id.SubjectID)
	}
	if id.Role != identity.RoleUser {
		t.Errorf("Role = %q, want %q", id.Role, identity.RoleUser)
	}

	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("VerifyRefresh() error = %v", err)
	}
}

func TestManager_VerifyAccess_Expired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore(testRecord())
	m := testManager(t, store, clk)

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clk.Advance(defaultAccessTTL + time.Minute)

	if _, err := m.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrCredentialExpired) {
		t.Errorf("VerifyAccess() after expiry error = %v, want ErrCredentialExpired", err)
	}

	// The refresh token outlives the access token.
	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("VerifyRefresh() error = %v, refresh token should still be valid", err)
	}
}

func TestManager_VerifyRefresh_Expired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore(testRecord())
	m := testManager(t, store, clk)

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clk.Advance(defaultRefreshTTL + time.Minute)

	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialExpired) {
		t.Errorf("VerifyRefresh() after expiry error = %v, want ErrCredentialExpired", err)
	}
}

func TestManager_VerifyAccess_Malformed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.VerifyAccess(ctx, tt.token); !errors.Is(err, ErrCredentialMalformed) {
				t.Errorf("VerifyAccess(%q) error = %v, want ErrCredentialMalformed", tt.token, err)
			}
		})
	}
}

func TestManager_VerifyAccess_WrongSignature(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	other, err := NewManager(store, clock.System(), Config{
		AccessSecret:  "a-completely-different-access-secret",
		RefreshSecret: "a-completely-different-refresh-secre",
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	pair, err := other.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := m.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrCredentialMalformed) {
		t.Errorf("VerifyAccess() with foreign signature error = %v, want ErrCredentialMalformed", err)
	}
}

func TestManager_UseClaimMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// A refresh token presented as an access token fails on signature
	// already (distinct secrets); an access token presented for refresh
	// likewise. Both must surface as malformed, never as valid.
	if _, err := m.VerifyAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialMalformed) {
		t.Errorf("VerifyAccess(refresh token) error = %v, want ErrCredentialMalformed", err)
	}
	if _, err := m.VerifyRefresh(ctx, pair.AccessToken); !errors.Is(err, ErrCredentialMalformed) {
		t.Errorf("VerifyRefresh(access token) error = %v, want ErrCredentialMalformed", err)
	}
}

func TestManager_UseClaimEnforcedWithSharedSigning(t *testing.T) {
	// Sign a token with the access secret but the refresh use claim, to
	// prove the use check holds even if an attacker knew both secrets
	// were the same key material in some deployment.
	now := time.Now()
	signed, err := signToken("usr-test1234", identity.RoleUser, useRefresh, testAccessSecret, now, time.Hour)
	if err != nil {
		t.Fatalf("signToken() error = %v", err)
	}

	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	_, err = m.VerifyAccess(context.Background(), signed)
	if !errors.Is(err, ErrCredentialMalformed) {
		t.Errorf("VerifyAccess() error = %v, want ErrCredentialMalformed", err)
	}
	if err != nil && !strings.Contains(err.Error(), "token use") {
		t.Errorf("error should name the use mismatch, got %v", err)
	}
}

func TestManager_Rotate(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore(testRecord())
	m := testManager(t, store, clk)

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clk.Advance(time.Minute)

	next, err := m.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("Rotate() should mint a new refresh token")
	}

	// The new pair works.
	if _, err := m.VerifyRefresh(ctx, next.RefreshToken); err != nil {
		t.Errorf("VerifyRefresh(new token) error = %v", err)
	}

	// Replaying the spent token fails.
	if _, err := m.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("Rotate(spent token) error = %v, want ErrCredentialRevoked", err)
	}
	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("VerifyRefresh(spent token) error = %v, want ErrCredentialRevoked", err)
	}
}

func TestManager_Issue_SupersedesPrevious(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore(testRecord())
	m := testManager(t, store, clk)

	first, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clk.Advance(time.Second)

	second, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := m.VerifyRefresh(ctx, first.RefreshToken); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("VerifyRefresh(superseded token) error = %v, want ErrCredentialRevoked", err)
	}
	if _, err := m.VerifyRefresh(ctx, second.RefreshToken); err != nil {
		t.Errorf("VerifyRefresh(current token) error = %v", err)
	}
}

func TestManager_Revoke(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := m.Revoke(ctx, "usr-test1234"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("VerifyRefresh() after revoke error = %v, want ErrCredentialRevoked", err)
	}
	if _, err := m.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("Rotate() after revoke error = %v, want ErrCredentialRevoked", err)
	}

	// Access tokens are stateless and survive refresh revocation.
	if _, err := m.VerifyAccess(ctx, pair.AccessToken); err != nil {
		t.Errorf("VerifyAccess() after revoke error = %v, access token should remain valid", err)
	}
}

func TestManager_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	store.mutate(t, "usr-test1234", func(rec *identity.Record) {
		rec.IsActive = false
	})

	if _, err := m.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("VerifyAccess() error = %v, want ErrAccountInactive", err)
	}
	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("VerifyRefresh() error = %v, want ErrAccountInactive", err)
	}
}

func TestManager_PasswordChangeEpoch(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore(testRecord())
	m := testManager(t, store, clk)

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Move the epoch past the token's issue time.
	clk.Advance(time.Minute)
	epoch := clk.Now()
	store.mutate(t, "usr-test1234", func(rec *identity.Record) {
		rec.PasswordChangedAt = &epoch
	})

	if _, err := m.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrCredentialStale) {
		t.Errorf("VerifyAccess() error = %v, want ErrCredentialStale", err)
	}
	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrCredentialStale) {
		t.Errorf("VerifyRefresh() error = %v, want ErrCredentialStale", err)
	}

	// Tokens issued after the epoch verify fine.
	clk.Advance(time.Minute)
	fresh, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := m.VerifyAccess(ctx, fresh.AccessToken); err != nil {
		t.Errorf("VerifyAccess(post-epoch token) error = %v", err)
	}
}

func TestManager_DeletedSubject(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	store.mu.Lock()
	delete(store.records, "usr-test1234")
	store.mu.Unlock()

	if _, err := m.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("VerifyAccess() for deleted subject error = %v, want ErrCredentialRevoked", err)
	}
}

func TestManager_StoreFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	storeErr := errors.New("disk on fire")
	store.mu.Lock()
	store.getErr = storeErr
	store.mu.Unlock()

	id, err := m.VerifyAccess(ctx, pair.AccessToken)
	if err == nil || id != nil {
		t.Fatal("VerifyAccess() should fail when the store is unavailable")
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("error should wrap the store failure, got %v", err)
	}
}

func TestManager_ConcurrentRotation_SingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testRecord())
	m := testManager(t, store, clock.System())

	pair, err := m.Issue(ctx, "usr-test1234", identity.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Rotate(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, revoked int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrCredentialRevoked):
			revoked++
		default:
			t.Errorf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("exactly one concurrent rotation should win, got %d", wins)
	}
	if revoked != racers-1 {
		t.Errorf("losers = %d, want %d", revoked, racers-1)
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("HashToken() should be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("HashToken() should differ for different inputs")
	}
	if len(HashToken("abc")) != 64 {
		t.Errorf("HashToken() length = %d, want 64 hex chars", len(HashToken("abc")))
	}
}
