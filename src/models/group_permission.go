package models

// PermissionType is the resource kind a permission applies to.
type PermissionType string

const (
	PermissionGroup  PermissionType = "group"
	PermissionEvent  PermissionType = "event"
	PermissionMember PermissionType = "member"
	PermissionInvite PermissionType = "invite"
	PermissionReport PermissionType = "report"
)

// PermissionAction is what may be done with a resource kind.
type PermissionAction string

const (
	ActionRead   PermissionAction = "read"
	ActionWrite  PermissionAction = "write"
	ActionDelete PermissionAction = "delete"
)

// PermissionTypes lists every resource kind in a stable order.
func PermissionTypes() []PermissionType {
	return []PermissionType{PermissionGroup, PermissionEvent, PermissionMember, PermissionInvite, PermissionReport}
}

type PermissionActions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

func (a PermissionActions) Allows(action PermissionAction) bool {
	switch action {
	case ActionRead:
		return a.Read
	case ActionWrite:
		return a.Write
	case ActionDelete:
		return a.Delete
	default:
		return false
	}
}

// Union grants every action allowed by either side.
func (a PermissionActions) Union(other PermissionActions) PermissionActions {
	return PermissionActions{
		Read:   a.Read || other.Read,
		Write:  a.Write || other.Write,
		Delete: a.Delete || other.Delete,
	}
}

type Permission struct {
	Type    PermissionType    `json:"type"`
	Actions PermissionActions `json:"actions"`
}

// ReadOnlyPermissions grants read on every resource kind.
func ReadOnlyPermissions() []Permission {
	out := make([]Permission, 0, len(PermissionTypes()))
	for _, t := range PermissionTypes() {
		out = append(out, Permission{Type: t, Actions: PermissionActions{Read: true}})
	}
	return out
}

// FullPermissions grants every action on every resource kind.
func FullPermissions() []Permission {
	out := make([]Permission, 0, len(PermissionTypes()))
	for _, t := range PermissionTypes() {
		out = append(out, Permission{Type: t, Actions: PermissionActions{Read: true, Write: true, Delete: true}})
	}
	return out
}
