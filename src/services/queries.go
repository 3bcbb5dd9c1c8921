package services

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"group-registry/src/apierr"
	"group-registry/src/models"
	"group-registry/src/storage"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (s *GroupService) view(ctx context.Context, group models.Group) (models.GroupView, error) {
	roster, err := s.store.GetRoster(ctx, group.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.GroupView{}, err
	}
	_, boostErr := s.store.GetBoost(ctx, group.ID)
	if boostErr != nil && !errors.Is(boostErr, storage.ErrNotFound) {
		return models.GroupView{}, boostErr
	}
	return models.GroupView{Group: group, MemberCount: roster.MemberCount(), Boosted: boostErr == nil}, nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID uint64) (models.GroupView, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return models.GroupView{}, err
	}
	return s.view(ctx, group)
}

// GetGroupByName looks a group up by its case-insensitive name.
func (s *GroupService) GetGroupByName(ctx context.Context, name string) (models.GroupView, error) {
	group, err := s.store.FindGroupByNameKey(ctx, NameKey(name))
	if err != nil {
		return models.GroupView{}, notFound(err, "group")
	}
	return s.view(ctx, group)
}

// GetGroups pages through groups visible to caller. Invite-only groups are
// only listed for their members.
func (s *GroupService) GetGroups(ctx context.Context, caller string, query models.GroupListQuery) (models.PagedGroups, error) {
	groups, err := s.store.ListGroups(ctx, storage.GroupQuery{
		IDs:          query.Filter.IDs,
		Owner:        query.Filter.Owner,
		NameContains: strings.TrimSpace(query.Filter.Name),
		Tag:          query.Filter.Tag,
	})
	if err != nil {
		return models.PagedGroups{}, err
	}
	rosters, err := s.store.ListRosters(ctx)
	if err != nil {
		return models.PagedGroups{}, err
	}
	boosts, err := s.store.ListBoosts(ctx)
	if err != nil {
		return models.PagedGroups{}, err
	}
	boosted := make(map[uint64]bool, len(boosts))
	for _, b := range boosts {
		boosted[b.GroupID] = true
	}

	f := query.Filter
	views := make([]models.GroupView, 0, len(groups))
	for _, group := range groups {
		roster := rosters[group.ID]
		if group.Privacy.Kind == models.PrivacyInviteOnly && !roster.IsMember(caller) {
			continue
		}
		if f.Joined != "" && !roster.IsMember(f.Joined) {
			continue
		}
		if f.OptionallyInvited != "" && !roster.IsMember(f.OptionallyInvited) && !roster.IsInvited(f.OptionallyInvited) {
			continue
		}
		views = append(views, models.GroupView{Group: group, MemberCount: roster.MemberCount(), Boosted: boosted[group.ID]})
	}

	sortGroupViews(views, query.Sort, query.Direction)
	return paginate(views, query.Limit, query.Page), nil
}

func sortGroupViews(views []models.GroupView, field models.GroupSortField, dir models.SortDirection) {
	compare := func(a, b models.GroupView) int {
		var c int
		switch field {
		case models.SortUpdatedOn:
			c = cmp.Compare(a.UpdatedAt, b.UpdatedAt)
		case models.SortName:
			c = strings.Compare(NameKey(a.Name), NameKey(b.Name))
		case models.SortMemberCount:
			c = cmp.Compare(a.MemberCount, b.MemberCount)
		default:
			c = cmp.Compare(a.CreatedAt, b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if dir == models.SortAsc {
			return c
		}
		return -c
	}
	slices.SortStableFunc(views, compare)
}

func paginate(views []models.GroupView, limit, page int) models.PagedGroups {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)
	page = max(page, 1)

	total := len(views)
	start := total
	if page-1 < (total+limit-1)/limit {
		start = (page - 1) * limit
	}
	end := min(start+limit, total)
	return models.PagedGroups{
		Page:          page,
		Limit:         limit,
		Total:         total,
		NumberOfPages: (total + limit - 1) / limit,
		Data:          slices.Clone(views[start:end]),
	}
}

func (s *GroupService) GetGroupMembers(ctx context.Context, groupID uint64) ([]models.JoinedMember, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	roster, err := s.store.GetRoster(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "roster")
	}
	members, err := s.store.GetMembers(ctx, roster.MemberPrincipals())
	if err != nil {
		return nil, err
	}
	out := make([]models.JoinedMember, 0, len(members))
	for _, m := range members {
		if view, ok := m.JoinedView(groupID); ok {
			out = append(out, view)
		}
	}
	return out, nil
}

func (s *GroupService) GetGroupMember(ctx context.Context, groupID uint64, principal string) (models.JoinedMember, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return models.JoinedMember{}, err
	}
	member, err := s.loadMember(ctx, principal)
	if err != nil {
		return models.JoinedMember{}, err
	}
	view, ok := member.JoinedView(groupID)
	if !ok {
		return models.JoinedMember{}, apierr.NotFound("member not found in group")
	}
	return view, nil
}

// GetGroupInvites lists pending invites of a group. The caller needs invite
// read permission.
func (s *GroupService) GetGroupInvites(ctx context.Context, caller string, groupID uint64) ([]models.InvitedMember, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	actor, err := s.loadMember(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(group, actor, models.PermissionInvite, models.ActionRead); err != nil {
		return nil, err
	}

	roster, err := s.store.GetRoster(ctx, groupID)
	if err != nil {
		return nil, notFound(err, "roster")
	}
	members, err := s.store.GetMembers(ctx, roster.InvitePrincipals())
	if err != nil {
		return nil, err
	}
	out := make([]models.InvitedMember, 0, len(members))
	for _, m := range members {
		invite, ok := m.Invites[groupID]
		if !ok {
			continue
		}
		out = append(out, models.InvitedMember{
			Principal:      m.Principal,
			GroupID:        groupID,
			Kind:           invite.Kind,
			NotificationID: invite.NotificationID,
			CreatedAt:      invite.CreatedAt,
		})
	}
	return out, nil
}

func (s *GroupService) GetGroupRoles(ctx context.Context, groupID uint64) ([]models.Role, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return group.AllRoles(), nil
}

func (s *GroupService) GetMemberRoles(ctx context.Context, groupID uint64, principal string) ([]string, error) {
	view, err := s.GetGroupMember(ctx, groupID, principal)
	if err != nil {
		return nil, err
	}
	return view.Roles, nil
}

func (s *GroupService) GetSelfMember(ctx context.Context, caller string) (models.Member, error) {
	return s.loadMember(ctx, caller)
}

// GetSelfGroups returns every group the caller has joined.
func (s *GroupService) GetSelfGroups(ctx context.Context, caller string) ([]models.GroupView, error) {
	member, err := s.loadMember(ctx, caller)
	if err != nil {
		return nil, err
	}
	ids := member.JoinedGroupIDs()
	if len(ids) == 0 {
		return []models.GroupView{}, nil
	}
	groups, err := s.store.ListGroups(ctx, storage.GroupQuery{IDs: ids})
	if err != nil {
		return nil, err
	}
	out := make([]models.GroupView, 0, len(groups))
	for _, group := range groups {
		view, err := s.view(ctx, group)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *GroupService) GetGroupMembersByPermission(ctx context.Context, groupID uint64, permType models.PermissionType, action models.PermissionAction) ([]string, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.membersWithPermission(ctx, group, permType, action)
}

// GetHigherRoleMembers lists members who may act on join requests.
func (s *GroupService) GetHigherRoleMembers(ctx context.Context, groupID uint64) ([]string, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.higherRoleMembers(ctx, group)
}

func (s *GroupService) GetRoleHistory(ctx context.Context, groupID uint64) ([]models.RoleChange, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.ListRoleChanges(ctx, groupID)
}

func (s *GroupService) GetBannedMembers(ctx context.Context, groupID uint64) ([]string, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return group.BannedPrincipals(), nil
}

// CheckPermission answers has_permission for a principal in a group.
func (s *GroupService) CheckPermission(ctx context.Context, principal string, groupID uint64, permType models.PermissionType, action models.PermissionAction) (bool, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	member, err := s.loadMember(ctx, principal)
	if err != nil {
		return false, err
	}
	return HasPermission(group, member, permType, action), nil
}
