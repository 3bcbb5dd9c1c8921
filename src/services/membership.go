package services

import (
	"context"
	"errors"
	"strings"

	"group-registry/src/apierr"
	"group-registry/src/models"
	"group-registry/src/storage"
)

// RegisterMember creates the member record for a principal. It runs once
// per principal, at profile creation.
func (s *GroupService) RegisterMember(ctx context.Context, principal string) (models.Member, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return models.Member{}, apierr.BadRequest("principal is required")
	}
	if err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.CreateMember(ctx, principal, s.timestamp())
	}); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Member{}, apierr.Duplicate("member already registered")
		}
		return models.Member{}, err
	}
	return s.loadMember(ctx, principal)
}

// checkJoinable holds every precondition of a self-service join that
// depends on stored state.
func checkJoinable(group models.Group, member models.Member) error {
	if group.IsBanned(member.Principal) {
		return apierr.Unauthorized("caller is banned from this group")
	}
	if member.IsGroupJoined(group.ID) {
		return apierr.BadRequest("already a member of this group")
	}
	if member.IsGroupInvited(group.ID) {
		return apierr.BadRequest("already has a pending invite for this group")
	}
	if group.Privacy.Kind == models.PrivacyInviteOnly {
		return apierr.BadRequest("group is invite only")
	}
	return nil
}

// JoinGroup runs in two phases. Phase one reads state and gathers gate
// evidence from verifiers without writing. Phase two re-reads everything
// under the group lock, re-checks the preconditions and commits; it never
// calls out.
func (s *GroupService) JoinGroup(ctx context.Context, caller string, groupID uint64, evidence Evidence) (models.MembershipStatus, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return "", err
	}
	member, err := s.loadMember(ctx, caller)
	if err != nil {
		return "", err
	}
	if err := checkJoinable(group, member); err != nil {
		return "", err
	}
	if group.Privacy.Kind == models.PrivacyGated && !s.joinLimiter.Allow(caller, s.now()) {
		return "", apierr.BadRequest("too many join attempts, try again later")
	}

	admission := s.gatekeeper.Evaluate(ctx, group, caller, evidence)
	if admission.Kind == AdmissionDenied {
		s.metrics.Inc("group_join_denied_total")
		return "", apierr.Unauthorized(admission.Reason)
	}

	var status models.MembershipStatus
	err = s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		current, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if !current.Privacy.Equal(group.Privacy) {
			return apierr.BadRequest("group privacy changed during join, retry")
		}
		member, err := s.loadMember(ctx, caller)
		if err != nil {
			return err
		}
		if err := checkJoinable(current, member); err != nil {
			return err
		}

		now := s.timestamp()
		admins, err := s.higherRoleMembers(ctx, current)
		if err != nil {
			return err
		}

		switch admission.Kind {
		case AdmissionGranted:
			roles := []string{models.MemberRole}
			if err := s.writeJoin(ctx, caller, groupID, models.Join{Roles: roles, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
			if err := s.recordRoles(ctx, groupID, caller, roles, models.RoleChangeAdd, now); err != nil {
				return err
			}
			effects.notify(models.NotifyJoinPublicGroup, groupID, caller, admins, now)
			s.rewardJoin(effects, member, groupID, now)
			status = models.StatusJoined
		case AdmissionPending:
			notificationID := effects.notify(models.NotifyUserJoinRequest, groupID, caller, admins, now)
			if err := s.writeInvite(ctx, caller, groupID, models.Invite{
				Kind:           admission.InviteKind,
				NotificationID: notificationID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}); err != nil {
				return err
			}
			status = models.StatusPending
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if status == models.StatusJoined {
		s.metrics.Inc("group_join_total")
	} else {
		s.metrics.Inc("group_join_request_total")
	}
	return status, nil
}

func (s *GroupService) rewardJoin(effects *sideEffects, member models.Member, groupID uint64, now int64) {
	if len(member.Joined) == 0 {
		effects.reward(models.RewardFirstGroupJoined, groupID, member.Principal, now)
	}
	effects.reward(models.RewardGroupMemberCountChanged, groupID, member.Principal, now)
}

// InviteToGroup issues an owner-side invite. It bypasses the privacy mode.
func (s *GroupService) InviteToGroup(ctx context.Context, caller string, groupID uint64, target string) (models.InvitedMember, error) {
	var invited models.InvitedMember
	err := s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, models.PermissionInvite, models.ActionWrite)
		if err != nil {
			return err
		}
		member, err := s.loadMember(ctx, target)
		if err != nil {
			return err
		}
		if group.IsBanned(target) {
			return apierr.BadRequest("principal is banned from this group")
		}
		if member.IsGroupJoined(groupID) {
			return apierr.BadRequest("principal is already a member of this group")
		}
		if member.IsGroupInvited(groupID) {
			return apierr.BadRequest("principal already has a pending invite for this group")
		}

		now := s.timestamp()
		notificationID := effects.notify(models.NotifyOwnerJoinRequest, groupID, target, []string{target}, now)
		invite := models.Invite{Kind: models.InviteOwnerRequest, NotificationID: notificationID, CreatedAt: now, UpdatedAt: now}
		if err := s.writeInvite(ctx, target, groupID, invite); err != nil {
			return err
		}
		invited = models.InvitedMember{
			Principal:      target,
			GroupID:        groupID,
			Kind:           invite.Kind,
			NotificationID: notificationID,
			CreatedAt:      now,
		}
		return nil
	})
	return invited, err
}

// AcceptOrDeclineUserRequest resolves a principal's join request. The
// caller needs invite write permission.
func (s *GroupService) AcceptOrDeclineUserRequest(ctx context.Context, caller string, groupID uint64, principal string, accept bool) error {
	return s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		if _, _, err := s.authorize(ctx, caller, groupID, models.PermissionInvite, models.ActionWrite); err != nil {
			return err
		}
		member, err := s.loadMember(ctx, principal)
		if err != nil {
			return err
		}
		if !member.HasPendingJoinRequest(groupID) {
			return apierr.BadRequest("no pending join request for this group")
		}

		now := s.timestamp()
		if accept {
			if err := s.acceptInvite(ctx, effects, member, groupID, now); err != nil {
				return err
			}
		} else if err := s.dropInvite(ctx, principal, groupID); err != nil {
			return err
		}
		effects.notify(models.NotifyUserJoinRequestResolved, groupID, principal, []string{principal}, now)
		effects.last().Accepted = &accept
		return nil
	})
}

// AcceptOrDeclineOwnerRequest lets the invitee resolve an owner-side invite.
func (s *GroupService) AcceptOrDeclineOwnerRequest(ctx context.Context, caller string, groupID uint64, accept bool) error {
	return s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		member, err := s.loadMember(ctx, caller)
		if err != nil {
			return err
		}
		invite, ok := member.Invites[groupID]
		if !ok {
			return apierr.NotFound("invite not found")
		}
		if invite.Kind != models.InviteOwnerRequest {
			return apierr.Unauthorized("pending invite is a join request awaiting group approval")
		}

		now := s.timestamp()
		if accept {
			if group.IsBanned(caller) {
				return apierr.Unauthorized("caller is banned from this group")
			}
			if err := s.acceptInvite(ctx, effects, member, groupID, now); err != nil {
				return err
			}
		} else if err := s.dropInvite(ctx, caller, groupID); err != nil {
			return err
		}

		admins, err := s.higherRoleMembers(ctx, group)
		if err != nil {
			return err
		}
		effects.notify(models.NotifyOwnerJoinRequestResolved, groupID, caller, admins, now)
		effects.last().Accepted = &accept
		return nil
	})
}

// acceptInvite turns an invite into a join. Roles are added to whatever the
// member holds, which for a fresh join is just "member".
func (s *GroupService) acceptInvite(ctx context.Context, effects *sideEffects, member models.Member, groupID uint64, now int64) error {
	roles := member.Roles(groupID)
	if !member.HasRole(groupID, models.MemberRole) {
		roles = append(roles, models.MemberRole)
	}
	if err := s.writeJoin(ctx, member.Principal, groupID, models.Join{Roles: roles, CreatedAt: now, UpdatedAt: now}); err != nil {
		return err
	}
	if err := s.recordRoles(ctx, groupID, member.Principal, []string{models.MemberRole}, models.RoleChangeAdd, now); err != nil {
		return err
	}
	s.rewardJoin(effects, member, groupID, now)
	s.metrics.Inc("group_join_total")
	return nil
}

// LeaveGroup removes the caller from the group; the owner must transfer first.
func (s *GroupService) LeaveGroup(ctx context.Context, caller string, groupID uint64) error {
	return s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		group, err := s.lockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		member, err := s.loadMember(ctx, caller)
		if err != nil {
			return err
		}
		if !member.IsGroupJoined(groupID) {
			return apierr.BadRequest("not a member of this group")
		}
		if group.Owner == caller {
			return apierr.BadRequest("owner cannot leave the group, transfer ownership first")
		}
		if err := s.dropJoin(ctx, caller, groupID); err != nil {
			return err
		}

		now := s.timestamp()
		remaining, err := s.store.GetRoster(ctx, groupID)
		if err != nil {
			return notFound(err, "roster")
		}
		effects.notify(models.NotifyLeaveGroup, groupID, caller, remaining.MemberPrincipals(), now)
		effects.reward(models.RewardGroupMemberCountChanged, groupID, caller, now)
		return nil
	})
}

// RemoveInvite withdraws the caller's own pending invite of either kind.
func (s *GroupService) RemoveInvite(ctx context.Context, caller string, groupID uint64) error {
	return s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		if _, err := s.lockGroup(ctx, groupID); err != nil {
			return err
		}
		member, err := s.loadMember(ctx, caller)
		if err != nil {
			return err
		}
		if !member.IsGroupInvited(groupID) {
			return apierr.BadRequest("no pending invite for this group")
		}
		return s.dropInvite(ctx, caller, groupID)
	})
}

// RemoveMemberFromGroup kicks a joined member out of the group.
func (s *GroupService) RemoveMemberFromGroup(ctx context.Context, caller string, groupID uint64, target string) error {
	return s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, models.PermissionMember, models.ActionWrite)
		if err != nil {
			return err
		}
		member, err := s.loadMember(ctx, target)
		if err != nil {
			return err
		}
		if !member.IsGroupJoined(groupID) {
			return apierr.BadRequest("principal is not a member of this group")
		}
		if group.Owner == target {
			return apierr.BadRequest("cannot remove the group owner")
		}
		if err := s.dropJoin(ctx, target, groupID); err != nil {
			return err
		}

		now := s.timestamp()
		effects.notify(models.NotifyMemberRemoved, groupID, target, []string{target}, now)
		effects.reward(models.RewardGroupMemberCountChanged, groupID, target, now)
		return nil
	})
}

// RemoveMemberInviteFromGroup withdraws a principal's pending invite.
func (s *GroupService) RemoveMemberInviteFromGroup(ctx context.Context, caller string, groupID uint64, target string) error {
	return s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		if _, _, err := s.authorize(ctx, caller, groupID, models.PermissionInvite, models.ActionWrite); err != nil {
			return err
		}
		member, err := s.loadMember(ctx, target)
		if err != nil {
			return err
		}
		if !member.IsGroupInvited(groupID) {
			return apierr.BadRequest("principal has no pending invite for this group")
		}
		if err := s.dropInvite(ctx, target, groupID); err != nil {
			return err
		}
		effects.notify(models.NotifyInviteRemoved, groupID, target, []string{target}, s.timestamp())
		return nil
	})
}

// BanMember marks target as blocked and removes any join or invite it holds.
func (s *GroupService) BanMember(ctx context.Context, caller string, groupID uint64, target string) error {
	return s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, models.PermissionMember, models.ActionWrite)
		if err != nil {
			return err
		}
		if group.Owner == target {
			return apierr.BadRequest("cannot ban the group owner")
		}
		if caller == target {
			return apierr.BadRequest("cannot ban yourself")
		}
		if group.IsBanned(target) {
			return apierr.BadRequest("principal is already banned")
		}
		member, err := s.loadMember(ctx, target)
		if err != nil {
			return err
		}

		now := s.timestamp()
		if group.SpecialMembers == nil {
			group.SpecialMembers = map[string]string{}
		}
		group.SpecialMembers[target] = models.RelationBlocked
		group.UpdatedAt = now
		if err := s.store.UpdateGroup(ctx, group, NameKey(group.Name)); err != nil {
			return err
		}

		if member.IsGroupJoined(groupID) {
			if err := s.dropJoin(ctx, target, groupID); err != nil {
				return err
			}
			effects.notify(models.NotifyMemberRemoved, groupID, target, []string{target}, now)
			effects.reward(models.RewardGroupMemberCountChanged, groupID, target, now)
		}
		if member.IsGroupInvited(groupID) {
			if err := s.dropInvite(ctx, target, groupID); err != nil {
				return err
			}
			effects.notify(models.NotifyInviteRemoved, groupID, target, []string{target}, now)
		}
		return nil
	})
}

// UnbanMember lifts a ban so the principal may join again.
func (s *GroupService) UnbanMember(ctx context.Context, caller string, groupID uint64, target string) error {
	_, err := s.updateGroup(ctx, caller, groupID, models.PermissionMember, models.ActionWrite, func(group *models.Group) error {
		if !group.IsBanned(target) {
			return apierr.BadRequest("principal is not banned")
		}
		delete(group.SpecialMembers, target)
		return nil
	})
	return err
}

// higherRoleMembers lists joined members holding invite write permission,
// the audience for join-request notifications.
func (s *GroupService) higherRoleMembers(ctx context.Context, group models.Group) ([]string, error) {
	return s.membersWithPermission(ctx, group, models.PermissionInvite, models.ActionWrite)
}

func (s *GroupService) membersWithPermission(ctx context.Context, group models.Group, permType models.PermissionType, action models.PermissionAction) ([]string, error) {
	roster, err := s.store.GetRoster(ctx, group.ID)
	if err != nil {
		return nil, notFound(err, "roster")
	}
	members, err := s.store.GetMembers(ctx, roster.MemberPrincipals())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for _, m := range members {
		if HasPermission(group, m, permType, action) {
			out = append(out, m.Principal)
		}
	}
	return out, nil
}
