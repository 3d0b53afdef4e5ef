package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hallgate/access-core/internal/identity"
)

// Token-use claim values. Access and refresh tokens are signed with
// distinct secrets, and additionally carry their intended use so that one
// can never pass verification as the other.
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims extends JWT registered claims with the fields this core asserts:
// the subject's role and the token's intended use.
type Claims struct {
	jwt.RegisteredClaims
	Role identity.Role `json:"role"`
	Use  string        `json:"use"`
}

// signToken creates a signed HS256 JWT for a subject.
func signToken(subjectID string, role identity.Role, use, secret string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
		Use:  use,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", use, err)
	}
	return signed, nil
}

// parseToken validates signature, expiry, and required fields, and maps
// library errors onto the package taxonomy. Expiry is the only failure
// distinguished from malformation, so callers can offer a refresh cycle.
func parseToken(tokenString, secret, use string, now func() time.Time) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrCredentialExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrCredentialMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrCredentialMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrCredentialMalformed)
	}
	if !identity.IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: missing or unknown role", ErrCredentialMalformed)
	}
	if claims.Use != use {
		return nil, fmt.Errorf("%w: token use %q, want %q", ErrCredentialMalformed, claims.Use, use)
	}

	return claims, nil
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw refresh tokens are never stored, only their hashes, and the
// stored-value equality check in VerifyRefresh compares hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
