package models

type NotificationKind string

const (
	NotifyJoinPublicGroup          NotificationKind = "join_public_group"
	NotifyUserJoinRequest          NotificationKind = "user_join_request"
	NotifyUserJoinRequestResolved  NotificationKind = "user_join_request_resolved"
	NotifyOwnerJoinRequest         NotificationKind = "owner_join_request"
	NotifyOwnerJoinRequestResolved NotificationKind = "owner_join_request_resolved"
	NotifyLeaveGroup               NotificationKind = "leave_group"
	NotifyMemberRemoved            NotificationKind = "member_removed"
	NotifyInviteRemoved            NotificationKind = "invite_removed"
	NotifyMemberRoleChanged        NotificationKind = "member_role_changed"
)

// Notification is the payload handed to the notification dispatcher.
type Notification struct {
	ID         string           `json:"id"`
	Kind       NotificationKind `json:"kind"`
	GroupID    uint64           `json:"group_id"`
	Subject    string           `json:"subject"`
	Recipients []string         `json:"recipients"`
	Accepted   *bool            `json:"accepted,omitempty"`
	Roles      []string         `json:"roles,omitempty"`
	CreatedAt  int64            `json:"created_at"`
}
