package identity

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular account: owns its resources and nothing else.
	RoleUser Role = "user"

	// RoleModerator can read and moderate other users' content but cannot
	// manage accounts or system settings.
	RoleModerator Role = "moderator"

	// RoleAdmin has full control: accounts, content, system settings.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid account roles.
var ValidRoles = []Role{RoleUser, RoleModerator, RoleAdmin}

// IsValidRole returns true if the role is a valid account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Identity is the verified view of a subject produced by token
// verification. It carries only what authorisation decisions need.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
}

// Record is the stored identity record. The token lifecycle reads
// IsActive, PasswordChangedAt and RefreshTokenHash, and writes
// RefreshTokenHash; everything else belongs to account management.
type Record struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`

	// PasswordHash is the Argon2id PHC string. Never serialised.
	PasswordHash string `json:"-"`

	Role     Role `json:"role"`
	IsActive bool `json:"is_active"`

	// PasswordChangedAt is the password-change epoch: every token issued
	// before this instant is permanently invalid. Nil if the password has
	// never been changed since creation.
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`

	// RefreshTokenHash is the SHA-256 hash of the subject's single live
	// refresh token, or empty if none. Never serialised.
	RefreshTokenHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Verified returns the Identity view of a record.
func (r *Record) Verified() *Identity {
	return &Identity{SubjectID: r.ID, Role: r.Role}
}

// Sentinel errors for identity operations.
var (
	ErrNotFound           = errors.New("identity not found")
	ErrInactive           = errors.New("identity is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidUsername    = errors.New("invalid username")
)
