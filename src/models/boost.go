package models

// Boost is a time-boxed promotion of a group.
type Boost struct {
	GroupID   uint64 `json:"group_id"`
	BoostedBy string `json:"boosted_by"`
	StartedAt int64  `json:"started_at"`
	EndsAt    int64  `json:"ends_at"`
}
