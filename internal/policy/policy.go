// Package policy makes authorisation decisions over already-verified
// identities. It performs no I/O and no authentication: callers must only
// invoke it with an Identity produced by a successful token verification.
package policy

import (
	"errors"

	"github.com/hallgate/access-core/internal/identity"
)

// ErrForbidden is returned when an authenticated identity lacks the role
// or ownership a decision requires. Not retryable without a privilege
// change.
var ErrForbidden = errors.New("insufficient role or ownership")

// Authorize returns nil iff the identity's role is in requiredRoles.
// Pure predicate, no side effects.
func Authorize(id *identity.Identity, requiredRoles ...identity.Role) error {
	if id == nil {
		return ErrForbidden
	}
	for _, r := range requiredRoles {
		if id.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

// AuthorizeOwnerOrRole returns nil iff the identity owns the resource or
// holds one of the required roles. This is the "admin or self" gate used
// for per-resource read/update operations.
func AuthorizeOwnerOrRole(id *identity.Identity, resourceOwnerID string, requiredRoles ...identity.Role) error {
	if id == nil {
		return ErrForbidden
	}
	if resourceOwnerID != "" && id.SubjectID == resourceOwnerID {
		return nil
	}
	return Authorize(id, requiredRoles...)
}
