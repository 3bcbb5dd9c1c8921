package models

// InviteKind records who initiated a pending membership.
type InviteKind string

const (
	// InviteOwnerRequest is issued by the group and accepted by the invitee.
	InviteOwnerRequest InviteKind = "owner_request"
	// InviteUserRequest is a join request accepted by a group admin.
	InviteUserRequest InviteKind = "user_request"
)

// Invite is a pending membership for one group.
type Invite struct {
	Kind           InviteKind `json:"kind"`
	NotificationID string     `json:"notification_id,omitempty"`
	CreatedAt      int64      `json:"created_at"`
	UpdatedAt      int64      `json:"updated_at"`
}

// InvitedMember is an invite row of one group.
type InvitedMember struct {
	Principal      string     `json:"principal"`
	GroupID        uint64     `json:"group_id"`
	Kind           InviteKind `json:"kind"`
	NotificationID string     `json:"notification_id,omitempty"`
	CreatedAt      int64      `json:"created_at"`
}
