package models

// TransferRequest is a pending ownership hand-over, at most one per group.
type TransferRequest struct {
	GroupID   uint64 `json:"group_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	CreatedAt int64  `json:"created_at"`
}
