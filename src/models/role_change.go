package models

type RoleChangeKind string

const (
	RoleChangeAdd     RoleChangeKind = "add"
	RoleChangeRemove  RoleChangeKind = "remove"
	RoleChangeReplace RoleChangeKind = "replace"
)

// RoleChange is a signed history record of a member role mutation.
type RoleChange struct {
	ID        string         `json:"id"`
	GroupID   uint64         `json:"group_id"`
	Principal string         `json:"principal"`
	Roles     []string       `json:"roles"`
	Kind      RoleChangeKind `json:"kind"`
	CreatedAt int64          `json:"created_at"`
	EventID   string         `json:"event_id"`
	Signer    string         `json:"signer"`
	Sig       string         `json:"sig"`
}
