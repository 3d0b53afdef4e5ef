// Package account orchestrates the identity write path: registration,
// login, password change, deactivation and restore. Every successful
// mutation publishes an identity event; reads go through the
// invalidation-coordinated cache.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/hallgate/access-core/internal/cache"
	"github.com/hallgate/access-core/internal/clock"
	"github.com/hallgate/access-core/internal/event"
	"github.com/hallgate/access-core/internal/identity"
	"github.com/hallgate/access-core/internal/token"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Service is the account management facade exposed to the transport
// layer. All methods are safe for concurrent use.
type Service struct {
	repo   identity.Repository
	tokens *token.Manager
	cache  *cache.Store
	bus    event.Publisher
	clk    clock.Clock
	logger Logger
}

// NewService creates an account service. A nil bus disables event
// publication (events are then dropped, and cache consistency relies on
// TTL alone).
func NewService(repo identity.Repository, tokens *token.Manager, store *cache.Store, bus event.Publisher, clk clock.Clock) *Service {
	if bus == nil {
		bus = event.NopPublisher{}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		repo:   repo,
		tokens: tokens,
		cache:  store,
		bus:    bus,
		clk:    clk,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Register creates a new identity and issues its first credential pair.
func (s *Service) Register(ctx context.Context, username, displayName, email, password string, role identity.Role) (*identity.Record, *token.Pair, error) {
	if !identity.IsValidUsername(username) {
		return nil, nil, identity.ErrInvalidUsername
	}
	if !identity.IsValidRole(role) {
		return nil, nil, identity.ErrInvalidRole
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	rec := &identity.Record{
		Username:     username,
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.Issue(ctx, rec.ID, rec.Role)
	if err != nil {
		return nil, nil, err
	}

	s.publish(event.TypeIdentityCreated, rec.ID)
	s.logger.Info("identity registered", "subject_id", rec.ID, "role", string(rec.Role))
	return rec, pair, nil
}

// Create provisions an identity without issuing credentials. Used for
// administrative account creation; the subject logs in themselves.
func (s *Service) Create(ctx context.Context, username, displayName, email, password string, role identity.Role) (*identity.Record, error) {
	if !identity.IsValidUsername(username) {
		return nil, identity.ErrInvalidUsername
	}
	if !identity.IsValidRole(role) {
		return nil, identity.ErrInvalidRole
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	rec := &identity.Record{
		Username:     username,
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.publish(event.TypeIdentityCreated, rec.ID)
	s.logger.Info("identity created", "subject_id", rec.ID, "role", string(rec.Role))
	return rec, nil
}

// Login verifies a username/password pair and issues fresh credentials,
// superseding any previously issued refresh token for the subject.
func (s *Service) Login(ctx context.Context, username, password string) (*token.Pair, error) {
	rec, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, err
	}

	if !rec.IsActive {
		return nil, identity.ErrInactive
	}

	ok, err := identity.VerifyPassword(password, rec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, identity.ErrInvalidCredentials
	}

	return s.tokens.Issue(ctx, rec.ID, rec.Role)
}

// Refresh redeems a refresh token for a new credential pair. A spent or
// revoked token fails with token.ErrCredentialRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	return s.tokens.Rotate(ctx, refreshToken)
}

// Logout revokes the subject's refresh token. Outstanding access tokens
// expire naturally at their short TTL.
func (s *Service) Logout(ctx context.Context, subjectID string) error {
	if err := s.tokens.Revoke(ctx, subjectID); err != nil {
		return err
	}
	s.publish(event.TypeLoggedOut, subjectID)
	return nil
}

// ChangePassword verifies the current password, stores the new hash with
// a password-change epoch, and revokes the refresh token. Every token
// issued before this call, access and refresh alike, becomes permanently
// invalid.
func (s *Service) ChangePassword(ctx context.Context, subjectID, current, replacement string) error {
	rec, err := s.repo.GetByID(ctx, subjectID)
	if err != nil {
		return err
	}

	ok, err := identity.VerifyPassword(current, rec.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return identity.ErrInvalidCredentials
	}

	hash, err := identity.HashPassword(replacement)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, subjectID, hash, s.clk.Now()); err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, subjectID); err != nil {
		return err
	}

	s.publish(event.TypePasswordChanged, subjectID)
	s.logger.Info("password changed", "subject_id", subjectID)
	return nil
}

// Get returns an identity record through the read-through cache. The
// returned record is the caller's own copy: mutating it cannot alter the
// cached value or race with concurrent readers of the same entry.
func (s *Service) Get(ctx context.Context, subjectID string) (*identity.Record, error) {
	value, err := s.cache.Get(ctx, cache.IdentityKey(subjectID), func(ctx context.Context) (any, error) {
		return s.repo.GetByID(ctx, subjectID)
	})
	if err != nil {
		return nil, err
	}

	rec, ok := value.(*identity.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected cache value for %q", subjectID)
	}

	out := *rec
	return &out, nil
}

// List returns identity records through the read-through cache. The
// active-only and include-inactive views cache under distinct listing
// keys; both are evicted on any identity mutation.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]identity.Record, error) {
	key := cache.ListingKey("active")
	if includeInactive {
		key = cache.ListingKey("all")
	}

	value, err := s.cache.Get(ctx, key, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx, includeInactive)
	})
	if err != nil {
		return nil, err
	}

	records, ok := value.([]identity.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected cache value for %q", key)
	}
	return records, nil
}

// Update modifies an identity's mutable fields.
func (s *Service) Update(ctx context.Context, rec *identity.Record) error {
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}
	s.publish(event.TypeIdentityUpdated, rec.ID)
	return nil
}

// Deactivate disables an account and revokes its refresh token. Further
// access-token verification fails with token.ErrAccountInactive.
func (s *Service) Deactivate(ctx context.Context, subjectID string) error {
	if err := s.repo.Deactivate(ctx, subjectID); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, subjectID); err != nil {
		return err
	}
	s.publish(event.TypeIdentityUpdated, subjectID)
	s.logger.Info("identity deactivated", "subject_id", subjectID)
	return nil
}

// Restore re-activates a deactivated account. The password-change epoch
// is deliberately left in place; the subject logs in again to obtain
// fresh credentials.
func (s *Service) Restore(ctx context.Context, subjectID string) error {
	if err := s.repo.Restore(ctx, subjectID); err != nil {
		return err
	}
	s.publish(event.TypeIdentityUpdated, subjectID)
	s.logger.Info("identity restored", "subject_id", subjectID)
	return nil
}

// Delete removes an account entirely.
func (s *Service) Delete(ctx context.Context, subjectID string) error {
	if err := s.repo.Delete(ctx, subjectID); err != nil {
		return err
	}
	s.publish(event.TypeIdentityDeleted, subjectID)
	s.logger.Info("identity deleted", "subject_id", subjectID)
	return nil
}

// publish emits an identity event without blocking the mutating
// operation. Delivery failures are logged, never surfaced to the caller:
// the write has already committed.
func (s *Service) publish(t event.Type, subjectID string) {
	ev := event.IdentityEvent{Type: t, SubjectID: subjectID, OccurredAt: s.clk.Now()}
	go func() {
		if err := s.bus.PublishIdentityEvent(ev); err != nil {
			s.logger.Warn("publishing identity event",
				"event", string(t),
				"subject_id", subjectID,
				"error", err,
			)
		}
	}()
}
