package models

// MembershipStatus is the outcome of a join attempt.
type MembershipStatus string

const (
	StatusJoined  MembershipStatus = "joined"
	StatusPending MembershipStatus = "pending"
)

// GroupView is a group with its derived counters.
type GroupView struct {
	Group
	MemberCount int  `json:"member_count"`
	Boosted     bool `json:"boosted"`
}

type GroupSortField string

const (
	SortCreatedOn   GroupSortField = "created_on"
	SortUpdatedOn   GroupSortField = "updated_on"
	SortName        GroupSortField = "name"
	SortMemberCount GroupSortField = "member_count"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// GroupFilter narrows get_groups. Zero fields match everything.
type GroupFilter struct {
	Name              string   `json:"name,omitempty"`
	Owner             string   `json:"owner,omitempty"`
	Tag               string   `json:"tag,omitempty"`
	IDs               []uint64 `json:"ids,omitempty"`
	Joined            string   `json:"joined,omitempty"`
	OptionallyInvited string   `json:"optionally_invited,omitempty"`
}

type GroupListQuery struct {
	Limit     int            `json:"limit"`
	Page      int            `json:"page"`
	Filter    GroupFilter    `json:"filter"`
	Sort      GroupSortField `json:"sort"`
	Direction SortDirection  `json:"direction"`
}

type PagedGroups struct {
	Page          int         `json:"page"`
	Limit         int         `json:"limit"`
	Total         int         `json:"total"`
	NumberOfPages int         `json:"number_of_pages"`
	Data          []GroupView `json:"data"`
}
