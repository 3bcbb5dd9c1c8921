package models

// GroupEvent links an event sub-resource to its group.
type GroupEvent struct {
	GroupID   uint64 `json:"group_id"`
	EventID   string `json:"event_id"`
	CreatedAt int64  `json:"created_at"`
}
