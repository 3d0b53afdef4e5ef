package policy

import "github.com/hallgate/access-core/internal/identity"

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermAccountRead     Permission = "account:read"
	PermAccountManage   Permission = "account:manage"
	PermContentRead     Permission = "content:read"
	PermContentWrite    Permission = "content:write"
	PermContentModerate Permission = "content:moderate"
	PermSystemAdmin     Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model;
// ownership checks layer on top via AuthorizeOwnerOrRole.
var rolePermissions = map[identity.Role][]Permission{
	identity.RoleUser: {
		PermContentRead,
		PermContentWrite,
	},
	identity.RoleModerator: {
		PermAccountRead,
		PermContentRead,
		PermContentWrite,
		PermContentModerate,
	},
	identity.RoleAdmin: {
		PermAccountRead,
		PermAccountManage,
		PermContentRead,
		PermContentWrite,
		PermContentModerate,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role identity.Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsFor returns a copy of the permissions granted to a role.
func PermissionsFor(role identity.Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
