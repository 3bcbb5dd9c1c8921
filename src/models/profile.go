package models

// ProfileRef is a group a principal has starred or pinned on their profile.
type ProfileRef struct {
	Principal string `json:"principal"`
	GroupID   uint64 `json:"group_id"`
	Starred   bool   `json:"starred"`
	Pinned    bool   `json:"pinned"`
}
