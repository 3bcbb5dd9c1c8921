package models

type RewardSignalKind string

const (
	RewardGroupMemberCountChanged RewardSignalKind = "group_member_count_changed"
	RewardFirstGroupJoined        RewardSignalKind = "first_group_joined"
)

// RewardSignal is the one-way message consumed by the reward accrual job.
type RewardSignal struct {
	Kind      RewardSignalKind `json:"kind"`
	GroupID   uint64           `json:"group_id,omitempty"`
	Principal string           `json:"principal,omitempty"`
	CreatedAt int64            `json:"created_at"`
}
