package identity

import (
	"strings"
	"testing"
)

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{"simple", "alice", true},
		{"with digits", "alice42", true},
		{"with dots", "alice.smith", true},
		{"with hyphen", "alice-smith", true},
		{"with underscore", "alice_smith", true},
		{"single char", "a", true},
		{"max length", strings.Repeat("a", 64), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 65), false},
		{"with space", "alice smith", false},
		{"with slash", "alice/smith", false},
		{"with at sign", "alice@example", false},
		{"unicode", "ålice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidUsername(tt.username); got != tt.want {
				t.Errorf("IsValidUsername(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"user", RoleUser, true},
		{"moderator", RoleModerator, true},
		{"admin", RoleAdmin, true},
		{"empty", Role(""), false},
		{"unknown", Role("superuser"), false},
		{"case sensitive", Role("Admin"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidRole(tt.role); got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRecord_Verified(t *testing.T) {
	rec := &Record{
		ID:       "usr-abc123",
		Username: "alice",
		Role:     RoleModerator,
	}

	id := rec.Verified()
	if id.SubjectID != "usr-abc123" {
		t.Errorf("SubjectID = %q, want usr-abc123", id.SubjectID)
	}
	if id.Role != RoleModerator {
		t.Errorf("Role = %q, want %q", id.Role, RoleModerator)
	}
}
