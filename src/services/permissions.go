package services

import (
	"slices"

	"group-registry/src/apierr"
	"group-registry/src/models"
)

// EffectivePermissions unions the permissions of every role name the
// principal holds, resolved against the group's implicit and custom roles.
// Unknown role names contribute nothing.
func EffectivePermissions(group models.Group, roleNames []string) map[models.PermissionType]models.PermissionActions {
	out := make(map[models.PermissionType]models.PermissionActions)
	for _, role := range group.AllRoles() {
		if !slices.Contains(roleNames, role.Name) {
			continue
		}
		for _, perm := range role.Permissions {
			out[perm.Type] = out[perm.Type].Union(perm.Actions)
		}
	}
	return out
}

// HasPermission reports whether a joined member may perform action on
// resources of type permType in the group.
func HasPermission(group models.Group, member models.Member, permType models.PermissionType, action models.PermissionAction) bool {
	if !member.IsGroupJoined(group.ID) {
		return false
	}
	return EffectivePermissions(group, member.Roles(group.ID))[permType].Allows(action)
}

func requirePermission(group models.Group, member models.Member, permType models.PermissionType, action models.PermissionAction) error {
	if !member.IsGroupJoined(group.ID) {
		return apierr.Unauthorized("not authorized: not a member of this group")
	}
	if !HasPermission(group, member, permType, action) {
		return apierr.Unauthorized("not authorized: missing " + string(permType) + " " + string(action) + " permission")
	}
	return nil
}

func validatePermissions(perms []models.Permission) error {
	seen := make(map[models.PermissionType]bool, len(perms))
	for _, perm := range perms {
		if !slices.Contains(models.PermissionTypes(), perm.Type) {
			return apierr.BadRequest("unknown permission type " + string(perm.Type))
		}
		if seen[perm.Type] {
			return apierr.BadRequest("duplicate permission type " + string(perm.Type))
		}
		seen[perm.Type] = true
	}
	return nil
}
