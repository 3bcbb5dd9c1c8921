package models

import (
	"maps"
	"slices"
)

// Join is a principal's membership in one group.
type Join struct {
	Roles     []string `json:"roles"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// Member is the principal-centric view of every group a principal has
// joined or been invited to. A group id is never in both maps.
type Member struct {
	Principal string            `json:"principal"`
	Joined    map[uint64]Join   `json:"joined"`
	Invites   map[uint64]Invite `json:"invites"`
	CreatedAt int64             `json:"created_at"`
}

// JoinedMember is a membership row of one group.
type JoinedMember struct {
	Principal string   `json:"principal"`
	GroupID   uint64   `json:"group_id"`
	Roles     []string `json:"roles"`
	JoinedAt  int64    `json:"joined_at"`
	UpdatedAt int64    `json:"updated_at"`
}

func NewMember(principal string, createdAt int64) Member {
	return Member{
		Principal: principal,
		Joined:    make(map[uint64]Join),
		Invites:   make(map[uint64]Invite),
		CreatedAt: createdAt,
	}
}

func (m Member) IsGroupJoined(groupID uint64) bool {
	_, ok := m.Joined[groupID]
	return ok
}

func (m Member) IsGroupInvited(groupID uint64) bool {
	_, ok := m.Invites[groupID]
	return ok
}

// HasPendingJoinRequest reports a UserRequest invite for the group.
func (m Member) HasPendingJoinRequest(groupID uint64) bool {
	invite, ok := m.Invites[groupID]
	return ok && invite.Kind == InviteUserRequest
}

// HasPendingGroupInvite reports an OwnerRequest invite for the group.
func (m Member) HasPendingGroupInvite(groupID uint64) bool {
	invite, ok := m.Invites[groupID]
	return ok && invite.Kind == InviteOwnerRequest
}

func (m Member) Roles(groupID uint64) []string {
	return slices.Clone(m.Joined[groupID].Roles)
}

func (m Member) HasRole(groupID uint64, role string) bool {
	return slices.Contains(m.Joined[groupID].Roles, role)
}

// JoinedGroupIDs returns joined group ids in ascending order.
func (m Member) JoinedGroupIDs() []uint64 {
	return slices.Sorted(maps.Keys(m.Joined))
}

// OwnedGroupIDs returns the joined groups where the principal holds the owner role.
func (m Member) OwnedGroupIDs() []uint64 {
	out := make([]uint64, 0)
	for _, id := range m.JoinedGroupIDs() {
		if m.HasRole(id, OwnerRole) {
			out = append(out, id)
		}
	}
	return out
}

func (m Member) JoinedView(groupID uint64) (JoinedMember, bool) {
	join, ok := m.Joined[groupID]
	if !ok {
		return JoinedMember{}, false
	}
	return JoinedMember{
		Principal: m.Principal,
		GroupID:   groupID,
		Roles:     slices.Clone(join.Roles),
		JoinedAt:  join.CreatedAt,
		UpdatedAt: join.UpdatedAt,
	}, true
}

func (m Member) Clone() Member {
	out := m
	out.Joined = make(map[uint64]Join, len(m.Joined))
	for id, join := range m.Joined {
		join.Roles = slices.Clone(join.Roles)
		out.Joined[id] = join
	}
	out.Invites = maps.Clone(m.Invites)
	if out.Invites == nil {
		out.Invites = make(map[uint64]Invite)
	}
	return out
}
