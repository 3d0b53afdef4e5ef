package token

import "errors"

// Verification failure taxonomy. The transport layer maps each to a
// distinct client-visible status; none is ever converted into success.
//
// Retry semantics:
//   - ErrCredentialMalformed: client input error, never retried.
//   - ErrCredentialExpired: the only failure a client may answer with a
//     refresh cycle instead of a full re-login.
//   - ErrCredentialRevoked, ErrCredentialStale, ErrAccountInactive:
//     force re-authentication.
var (
	// ErrCredentialMalformed is returned for bad signatures, wrong signing
	// methods, token-use mismatches, and structurally invalid tokens.
	ErrCredentialMalformed = errors.New("credential is malformed")

	// ErrCredentialExpired is returned when a well-formed token is past
	// its stated expiry.
	ErrCredentialExpired = errors.New("credential has expired")

	// ErrCredentialRevoked is returned when a refresh token no longer
	// matches the stored value: it was rotated out, explicitly revoked,
	// or the subject no longer exists.
	ErrCredentialRevoked = errors.New("credential has been revoked")

	// ErrCredentialStale is returned when a token was issued before the
	// subject's password-change epoch, regardless of its stated expiry.
	ErrCredentialStale = errors.New("credential predates password change")

	// ErrAccountInactive is returned when the subject's account has been
	// deactivated.
	ErrAccountInactive = errors.New("account is inactive")
)
