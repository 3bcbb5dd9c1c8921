package services

import (
	"context"
	"slices"
	"strings"

	"group-registry/src/apierr"
	"group-registry/src/models"
)

// AddRoleToGroup adds a custom role with read-only permissions.
func (s *GroupService) AddRoleToGroup(ctx context.Context, caller string, groupID uint64, name, color string, index uint64) (models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Role{}, apierr.BadRequest("role name is required")
	}
	role := models.Role{
		Name:        name,
		Color:       color,
		Index:       index,
		Protected:   false,
		Permissions: models.ReadOnlyPermissions(),
	}
	_, err := s.updateGroup(ctx, caller, groupID, models.PermissionGroup, models.ActionWrite, func(group *models.Group) error {
		if models.IsDefaultRole(name) || group.RoleIndex(name) >= 0 {
			return apierr.Duplicate("role already exists")
		}
		group.Roles = append(group.Roles, role)
		return nil
	})
	if err != nil {
		return models.Role{}, err
	}
	return role, nil
}

// RemoveGroupRole deletes a custom role and strips it from every member.
// A member left without roles gets the implicit member role.
func (s *GroupService) RemoveGroupRole(ctx context.Context, caller string, groupID uint64, name string) error {
	return s.mutate(ctx, func(ctx context.Context, _ *sideEffects) error {
		group, _, err := s.authorize(ctx, caller, groupID, models.PermissionGroup, models.ActionWrite)
		if err != nil {
			return err
		}
		if models.IsDefaultRole(name) {
			return apierr.BadRequest("default roles cannot be removed")
		}
		idx := group.RoleIndex(name)
		if idx < 0 {
			return apierr.NotFound("role not found")
		}

		now := s.timestamp()
		group.Roles = slices.Delete(group.Roles, idx, idx+1)
		group.UpdatedAt = now
		if err := s.store.UpdateGroup(ctx, group, NameKey(group.Name)); err != nil {
			return err
		}

		roster, err := s.store.GetRoster(ctx, groupID)
		if err != nil {
			return notFound(err, "roster")
		}
		members, err := s.store.GetMembers(ctx, roster.MemberPrincipals())
		if err != nil {
			return err
		}
		for _, member := range members {
			if !member.HasRole(groupID, name) {
				continue
			}
			if err := s.stripRole(ctx, member, groupID, name, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// stripRole removes one role from a member's join, falling back to the
// member role, and records both changes.
func (s *GroupService) stripRole(ctx context.Context, member models.Member, groupID uint64, name string, now int64) error {
	join := member.Joined[groupID]
	join.Roles = slices.DeleteFunc(slices.Clone(join.Roles), func(r string) bool { return r == name })
	fallback := len(join.Roles) == 0
	if fallback {
		join.Roles = []string{models.MemberRole}
	}
	join.UpdatedAt = now
	if err := s.store.PutJoin(ctx, member.Principal, groupID, join); err != nil {
		return err
	}
	if err := s.recordRoles(ctx, groupID, member.Principal, []string{name}, models.RoleChangeRemove, now); err != nil {
		return err
	}
	if fallback {
		return s.recordRoles(ctx, groupID, member.Principal, []string{models.MemberRole}, models.RoleChangeAdd, now)
	}
	return nil
}

func (s *GroupService) EditRolePermissions(ctx context.Context, caller string, groupID uint64, name string, permissions []models.Permission) (models.Role, error) {
	if err := validatePermissions(permissions); err != nil {
		return models.Role{}, err
	}
	var edited models.Role
	_, err := s.updateGroup(ctx, caller, groupID, models.PermissionGroup, models.ActionWrite, func(group *models.Group) error {
		if models.IsDefaultRole(name) {
			return apierr.BadRequest("default role permissions cannot be edited")
		}
		idx := group.RoleIndex(name)
		if idx < 0 {
			return apierr.NotFound("role not found")
		}
		group.Roles[idx].Permissions = slices.Clone(permissions)
		edited = group.Roles[idx].Clone()
		return nil
	})
	if err != nil {
		return models.Role{}, err
	}
	return edited, nil
}

// AssignRoleToMember replaces the member's role set with the single role.
func (s *GroupService) AssignRoleToMember(ctx context.Context, caller string, groupID uint64, target, role string) ([]string, error) {
	var roles []string
	err := s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		member, err := s.roleTarget(ctx, caller, groupID, target, role)
		if err != nil {
			return err
		}

		now := s.timestamp()
		join := member.Joined[groupID]
		join.Roles = []string{role}
		join.UpdatedAt = now
		if err := s.store.PutJoin(ctx, target, groupID, join); err != nil {
			return err
		}
		if err := s.recordRoles(ctx, groupID, target, join.Roles, models.RoleChangeReplace, now); err != nil {
			return err
		}
		roles = join.Roles
		effects.notify(models.NotifyMemberRoleChanged, groupID, target, []string{target}, now)
		effects.last().Roles = slices.Clone(roles)
		return nil
	})
	return roles, err
}

// RemoveRoleFromMember takes one role away. A member left without roles
// gets the implicit member role.
func (s *GroupService) RemoveRoleFromMember(ctx context.Context, caller string, groupID uint64, target, role string) ([]string, error) {
	var roles []string
	err := s.mutate(ctx, func(ctx context.Context, effects *sideEffects) error {
		member, err := s.roleTarget(ctx, caller, groupID, target, role)
		if err != nil {
			return err
		}
		if !member.HasRole(groupID, role) {
			return apierr.BadRequest("member does not hold this role")
		}

		now := s.timestamp()
		if err := s.stripRole(ctx, member, groupID, role, now); err != nil {
			return err
		}
		updated, err := s.loadMember(ctx, target)
		if err != nil {
			return err
		}
		roles = updated.Roles(groupID)
		effects.notify(models.NotifyMemberRoleChanged, groupID, target, []string{target}, now)
		effects.last().Roles = slices.Clone(roles)
		return nil
	})
	return roles, err
}

// roleTarget authorizes a member role change and loads its joined target.
// The owner role only moves through ownership transfer.
func (s *GroupService) roleTarget(ctx context.Context, caller string, groupID uint64, target, role string) (models.Member, error) {
	group, _, err := s.authorize(ctx, caller, groupID, models.PermissionMember, models.ActionWrite)
	if err != nil {
		return models.Member{}, err
	}
	if role == models.OwnerRole {
		return models.Member{}, apierr.BadRequest("the owner role changes through ownership transfer")
	}
	if !slices.ContainsFunc(group.AllRoles(), func(r models.Role) bool { return r.Name == role }) {
		return models.Member{}, apierr.BadRequest("unknown role " + role)
	}
	member, err := s.loadMember(ctx, target)
	if err != nil {
		return models.Member{}, err
	}
	if !member.IsGroupJoined(groupID) {
		return models.Member{}, apierr.BadRequest("principal is not a member of this group")
	}
	if member.HasRole(groupID, models.OwnerRole) {
		return models.Member{}, apierr.BadRequest("the owner's roles change through ownership transfer")
	}
	return member, nil
}
