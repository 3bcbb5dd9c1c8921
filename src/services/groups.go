package services

import (
	"context"
	"errors"
	"strings"

	"group-registry/src/apierr"
	"group-registry/src/models"
	"group-registry/src/storage"
)

// AddGroup creates a group owned by caller, auto-joins the caller with the
// owner role and initializes its empty roster.
func (s *GroupService) AddGroup(ctx context.Context, caller string, post models.PostGroup) (models.Group, error) {
	if err := validateGroupFields(groupFields{
		name:        post.Name,
		description: post.Description,
		website:     post.Website,
		tags:        post.Tags,
	}); err != nil {
		return models.Group{}, err
	}
	privacy, err := normalizePrivacy(post.Privacy)
	if err != nil {
		return models.Group{}, err
	}
	nameKey := NameKey(post.Name)

	var created models.Group
	err = s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		member, err := s.lockMember(ctx, caller)
		if err != nil {
			return err
		}
		if len(member.OwnedGroupIDs()) >= s.limit {
			return apierr.BadRequest("group creation limit reached")
		}

		if err := s.store.LockGroupName(ctx, nameKey); err != nil {
			return err
		}
		if _, err := s.store.FindGroupByNameKey(ctx, nameKey); err == nil {
			return apierr.Duplicate("group name already taken")
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		now := s.timestamp()
		created, err = s.store.InsertGroup(ctx, models.Group{
			Name:           strings.TrimSpace(post.Name),
			Description:    post.Description,
			Website:        post.Website,
			Tags:           cleanTags(post.Tags),
			Owner:          caller,
			CreatedBy:      caller,
			Privacy:        privacy,
			Roles:          []models.Role{},
			Wallets:        map[string]string{},
			SpecialMembers: map[string]string{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}, nameKey)
		if err != nil {
			return err
		}
		if err := s.store.CreateRoster(ctx, created.ID); err != nil {
			return err
		}

		roles := []string{models.OwnerRole}
		if err := s.writeJoin(ctx, caller, created.ID, models.Join{Roles: roles, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := s.recordRoles(ctx, created.ID, caller, roles, models.RoleChangeAdd, now); err != nil {
			return err
		}
		if len(member.Joined) == 0 {
			effects.reward(models.RewardFirstGroupJoined, created.ID, caller, now)
		}
		effects.reward(models.RewardGroupMemberCountChanged, created.ID, caller, now)
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}

	s.metrics.Inc("group_created_total")
	s.logger.Info("group created", "group_id", created.ID, "principal", caller, "privacy", created.Privacy.Kind)
	return created, nil
}

// EditGroup replaces the editable fields. The name is not re-checked for
// uniqueness on rename.
func (s *GroupService) EditGroup(ctx context.Context, caller string, groupID uint64, update models.UpdateGroup) (models.Group, error) {
	if err := validateGroupFields(groupFields{
		name:        update.Name,
		description: update.Description,
		website:     update.Website,
		tags:        update.Tags,
	}); err != nil {
		return models.Group{}, err
	}
	privacy, err := normalizePrivacy(update.Privacy)
	if err != nil {
		return models.Group{}, err
	}

	var updated models.Group
	err = s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, models.PermissionGroup, models.ActionWrite)
		if err != nil {
			return err
		}

		group.Name = strings.TrimSpace(update.Name)
		group.Description = update.Description
		group.Website = update.Website
		group.Tags = cleanTags(update.Tags)
		group.Privacy = privacy
		group.UpdatedAt = s.timestamp()
		if err := s.store.UpdateGroup(ctx, group, NameKey(group.Name)); err != nil {
			return err
		}
		updated = group
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return updated, nil
}

// DeleteGroup tears the group down: boost, profile references, every
// membership and invite, owned events, any transfer request, and finally
// the group row and its roster.
func (s *GroupService) DeleteGroup(ctx context.Context, caller string, groupID uint64) error {
	var hadBoost bool
	err := s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, models.PermissionGroup, models.ActionDelete)
		if err != nil {
			return err
		}

		if hadBoost, err = s.store.DeleteBoost(ctx, groupID); err != nil {
			return err
		}

		refs, err := s.store.ListProfileRefsByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if err := s.store.DeleteProfileRef(ctx, ref.Principal, groupID); err != nil {
				return err
			}
		}

		roster, err := s.store.GetRoster(ctx, groupID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		for _, principal := range roster.MemberPrincipals() {
			if err := s.dropJoin(ctx, principal, groupID); err != nil {
				return err
			}
		}
		for _, principal := range roster.InvitePrincipals() {
			if err := s.dropInvite(ctx, principal, groupID); err != nil {
				return err
			}
		}

		events, err := s.store.ListGroupEvents(ctx, groupID)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := s.store.DeleteGroupEvent(ctx, groupID, event.EventID); err != nil {
				return err
			}
		}

		if _, err := s.store.DeleteTransferRequest(ctx, groupID); err != nil {
			return err
		}
		if err := s.store.DeleteGroup(ctx, groupID); err != nil {
			return notFound(err, "group")
		}
		if err := s.store.DeleteRoster(ctx, groupID); err != nil {
			return err
		}

		if roster.MemberCount() > 0 {
			effects.reward(models.RewardGroupMemberCountChanged, groupID, group.Owner, s.timestamp())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if hadBoost {
		s.scheduler.Cancel(boostKey(groupID))
	}
	s.metrics.Inc("group_deleted_total")
	s.logger.Info("group deleted", "group_id", groupID, "principal", caller)
	return nil
}

func (s *GroupService) AddWalletToGroup(ctx context.Context, caller string, groupID uint64, address, description string) (models.Group, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Group{}, apierr.BadRequest("wallet address is required")
	}
	return s.updateGroup(ctx, caller, groupID, models.PermissionGroup, models.ActionWrite, func(group *models.Group) error {
		if group.Wallets == nil {
			group.Wallets = map[string]string{}
		}
		group.Wallets[address] = description
		return nil
	})
}

func (s *GroupService) RemoveWalletFromGroup(ctx context.Context, caller string, groupID uint64, address string) (models.Group, error) {
	return s.updateGroup(ctx, caller, groupID, models.PermissionGroup, models.ActionWrite, func(group *models.Group) error {
		if _, ok := group.Wallets[address]; !ok {
			return apierr.NotFound("wallet not found")
		}
		delete(group.Wallets, address)
		return nil
	})
}

// updateGroup applies fn to the locked group after a permission check and
// persists the result.
func (s *GroupService) updateGroup(
	ctx context.Context,
	caller string,
	groupID uint64,
	permType models.PermissionType,
	action models.PermissionAction,
	fn func(group *models.Group) error,
) (models.Group, error) {
	var updated models.Group
	err := s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, permType, action)
		if err != nil {
			return err
		}
		if err := fn(&group); err != nil {
			return err
		}
		group.UpdatedAt = s.timestamp()
		if err := s.store.UpdateGroup(ctx, group, NameKey(group.Name)); err != nil {
			return err
		}
		updated = group
		return nil
	})
	return updated, err
}

// authorize locks the group and checks the caller's permission in it.
func (s *GroupService) authorize(
	ctx context.Context,
	caller string,
	groupID uint64,
	permType models.PermissionType,
	action models.PermissionAction,
) (models.Group, models.Member, error) {
	group, err := s.lockGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, models.Member{}, err
	}
	actor, err := s.loadMember(ctx, caller)
	if err != nil {
		if apierr.CodeOf(err) == apierr.CodeNotFound {
			return models.Group{}, models.Member{}, apierr.Unauthorized("not authorized: caller is not registered")
		}
		return models.Group{}, models.Member{}, err
	}
	if err := requirePermission(group, actor, permType, action); err != nil {
		return models.Group{}, models.Member{}, err
	}
	return group, actor, nil
}

func (s *GroupService) AddGroupEvent(ctx context.Context, caller string, groupID uint64, eventID string) (models.GroupEvent, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return models.GroupEvent{}, apierr.BadRequest("event id is required")
	}
	var event models.GroupEvent
	err := s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		if _, _, err := s.authorize(ctx, caller, groupID, models.PermissionEvent, models.ActionWrite); err != nil {
			return err
		}
		event = models.GroupEvent{GroupID: groupID, EventID: eventID, CreatedAt: s.timestamp()}
		if err := s.store.AddGroupEvent(ctx, event); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apierr.Duplicate("event already attached to group")
			}
			return err
		}
		return nil
	})
	return event, err
}

func (s *GroupService) RemoveGroupEvent(ctx context.Context, caller string, groupID uint64, eventID string) error {
	return s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		if _, _, err := s.authorize(ctx, caller, groupID, models.PermissionEvent, models.ActionDelete); err != nil {
			return err
		}
		return s.store.DeleteGroupEvent(ctx, groupID, eventID)
	})
}

func (s *GroupService) GetGroupEvents(ctx context.Context, groupID uint64) ([]models.GroupEvent, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListGroupEvents(ctx, groupID)
}

// SetProfileRef stars or pins a group on the caller's profile. Clearing
// both flags removes the reference.
func (s *GroupService) SetProfileRef(ctx context.Context, caller string, groupID uint64, starred, pinned bool) error {
	return s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		if _, err := s.lockGroup(ctx, groupID); err != nil {
			return err
		}
		if _, err := s.loadMember(ctx, caller); err != nil {
			return err
		}
		if !starred && !pinned {
			return s.store.DeleteProfileRef(ctx, caller, groupID)
		}
		return s.store.PutProfileRef(ctx, models.ProfileRef{Principal: caller, GroupID: groupID, Starred: starred, Pinned: pinned})
	})
}

func (s *GroupService) GetProfileRefs(ctx context.Context, principal string) ([]models.ProfileRef, error) {
	return s.store.ListProfileRefs(ctx, principal)
}
