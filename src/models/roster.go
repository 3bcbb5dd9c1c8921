package models

import (
	"maps"
	"slices"
)

// Roster is the group-centric mirror of Member: who has joined and who is
// invited. Values are the time the entry was added.
type Roster struct {
	GroupID uint64           `json:"group_id"`
	Members map[string]int64 `json:"members"`
	Invites map[string]int64 `json:"invites"`
}

func NewRoster(groupID uint64) Roster {
	return Roster{GroupID: groupID, Members: make(map[string]int64), Invites: make(map[string]int64)}
}

func (r Roster) IsMember(principal string) bool {
	_, ok := r.Members[principal]
	return ok
}

func (r Roster) IsInvited(principal string) bool {
	_, ok := r.Invites[principal]
	return ok
}

func (r Roster) MemberPrincipals() []string {
	return slices.Sorted(maps.Keys(r.Members))
}

func (r Roster) InvitePrincipals() []string {
	return slices.Sorted(maps.Keys(r.Invites))
}

func (r Roster) MemberCount() int {
	return len(r.Members)
}

func (r Roster) Clone() Roster {
	return Roster{GroupID: r.GroupID, Members: maps.Clone(r.Members), Invites: maps.Clone(r.Invites)}
}
