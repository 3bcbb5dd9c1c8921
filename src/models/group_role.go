package models

import "slices"

const (
	OwnerRole  = "owner"
	MemberRole = "member"
)

// Role is a named permission set inside a group. Protected roles are the
// implicit owner and member roles and cannot be edited or removed.
type Role struct {
	Name        string       `json:"name"`
	Color       string       `json:"color"`
	Index       uint64       `json:"index"`
	Protected   bool         `json:"protected"`
	Permissions []Permission `json:"permissions"`
}

// DefaultRoles returns the implicit roles every group has.
func DefaultRoles() []Role {
	return []Role{
		{Name: OwnerRole, Color: "#000000", Index: 0, Protected: true, Permissions: FullPermissions()},
		{Name: MemberRole, Color: "#000000", Index: 1, Protected: true, Permissions: ReadOnlyPermissions()},
	}
}

func IsDefaultRole(name string) bool {
	return name == OwnerRole || name == MemberRole
}

func (r Role) Clone() Role {
	out := r
	out.Permissions = slices.Clone(r.Permissions)
	return out
}
