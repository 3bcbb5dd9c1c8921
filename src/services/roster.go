package services

import (
	"context"
	"slices"

	"group-registry/src/models"
)

// The helpers below are the only writers of membership state. Each one
// updates the member record and the group roster together and must run
// inside a store transaction.

func (s *GroupService) writeJoin(ctx context.Context, principal string, groupID uint64, join models.Join) error {
	if err := s.store.DeleteInvite(ctx, principal, groupID); err != nil {
		return err
	}
	if err := s.store.RemoveRosterInvite(ctx, groupID, principal); err != nil {
		return err
	}
	if err := s.store.PutJoin(ctx, principal, groupID, join); err != nil {
		return err
	}
	return s.store.AddRosterMember(ctx, groupID, principal, join.CreatedAt)
}

func (s *GroupService) writeInvite(ctx context.Context, principal string, groupID uint64, invite models.Invite) error {
	if err := s.store.PutInvite(ctx, principal, groupID, invite); err != nil {
		return err
	}
	return s.store.AddRosterInvite(ctx, groupID, principal, invite.CreatedAt)
}

func (s *GroupService) dropJoin(ctx context.Context, principal string, groupID uint64) error {
	if err := s.store.DeleteJoin(ctx, principal, groupID); err != nil {
		return err
	}
	return s.store.RemoveRosterMember(ctx, groupID, principal)
}

func (s *GroupService) dropInvite(ctx context.Context, principal string, groupID uint64) error {
	if err := s.store.DeleteInvite(ctx, principal, groupID); err != nil {
		return err
	}
	return s.store.RemoveRosterInvite(ctx, groupID, principal)
}

// RosterMismatch is a principal whose member record and group roster disagree.
type RosterMismatch struct {
	Principal        string `json:"principal"`
	MemberJoined     bool   `json:"member_joined"`
	RosterMember     bool   `json:"roster_member"`
	MemberInvited    bool   `json:"member_invited"`
	RosterInvited    bool   `json:"roster_invited"`
	JoinedAndInvited bool   `json:"joined_and_invited"`
}

// IsGroupJoined is the member-side membership check.
func (s *GroupService) IsGroupJoined(ctx context.Context, principal string, groupID uint64) (bool, error) {
	member, err := s.loadMember(ctx, principal)
	if err != nil {
		return false, err
	}
	return member.IsGroupJoined(groupID), nil
}

// IsRosterMember is the group-side membership check.
func (s *GroupService) IsRosterMember(ctx context.Context, groupID uint64, principal string) (bool, error) {
	roster, err := s.store.GetRoster(ctx, groupID)
	if err != nil {
		return false, notFound(err, "roster")
	}
	return roster.IsMember(principal), nil
}

// CheckRosterConsistency compares both views for every principal the
// roster knows about plus the given extra principals, and returns the
// disagreements.
func (s *GroupService) CheckRosterConsistency(ctx context.Context, groupID uint64, extra ...string) ([]RosterMismatch, error) {
	roster, err := s.store.GetRoster(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "roster")
	}

	principals := append(roster.MemberPrincipals(), roster.InvitePrincipals()...)
	principals = append(principals, extra...)
	slices.Sort(principals)
	principals = slices.Compact(principals)

	members, err := s.store.GetMembers(ctx, principals)
	if err != nil {
		return nil, err
	}
	byPrincipal := make(map[string]models.Member, len(members))
	for _, m := range members {
		byPrincipal[m.Principal] = m
	}

	out := make([]RosterMismatch, 0)
	for _, p := range principals {
		m := byPrincipal[p]
		check := RosterMismatch{
			Principal:     p,
			MemberJoined:  m.IsGroupJoined(groupID),
			RosterMember:  roster.IsMember(p),
			MemberInvited: m.IsGroupInvited(groupID),
			RosterInvited: roster.IsInvited(p),
		}
		check.JoinedAndInvited = check.MemberJoined && check.MemberInvited
		if check.MemberJoined != check.RosterMember || check.MemberInvited != check.RosterInvited || check.JoinedAndInvited {
			out = append(out, check)
		}
	}
	return out, nil
}
