package domain

type Identity string

// SessionCode is a short-lived, single-use token identifying a pending
// pairing request. It is unique while pending and consumed by the first
// successful join.
type SessionCode string

type Role string

const (
	RoleUser      Role = "user"
	RoleSuperuser Role = "superuser"
)

// HasRole reports whether the given role set contains the role.
func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
