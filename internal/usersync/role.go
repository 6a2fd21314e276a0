package usersync

import "github.com/ecocollect/identity-service/internal/identity"

// Realm role names as they exist in the provider. "employe" is the realm's
// actual spelling.
const (
	remoteRoleAdmin   = "admin"
	remoteRoleEmploye = "employe"
)

// ResolveRole maps a set of realm role names to exactly one local role.
// Priority is fixed and total: admin wins over employe, and anything else
// falls through to the default user role.
func ResolveRole(names []string) identity.Role {
	resolved := identity.RoleUser
	for _, name := range names {
		switch name {
		case remoteRoleAdmin:
			return identity.RoleAdmin
		case remoteRoleEmploye:
			resolved = identity.RoleEmployee
		}
	}
	return resolved
}
