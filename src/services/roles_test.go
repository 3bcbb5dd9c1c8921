package services

import (
	"context"
	"slices"
	"testing"

	"group-registry/src/apierr"
	"group-registry/src/models"
)

func setupRoles(t *testing.T) (*testEnv, models.Group) {
	t.Helper()
	env := newTestEnv(t)
	env.register(t, "owner", "alice", "bob")
	group := env.createGroup(t, "owner", "Alpha", public())
	for _, p := range []string{"alice", "bob"} {
		if _, err := env.svc.JoinGroup(context.Background(), p, group.ID, Evidence{}); err != nil {
			t.Fatalf("JoinGroup(%s) error = %v", p, err)
		}
	}
	if _, err := env.svc.AddRoleToGroup(context.Background(), "owner", group.ID, "moderator", "#00ff00", 2); err != nil {
		t.Fatalf("AddRoleToGroup() error = %v", err)
	}
	return env, group
}

func TestAddRoleToGroup(t *testing.T) {
	env, group := setupRoles(t)
	ctx := context.Background()

	roles, err := env.svc.GetGroupRoles(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroupRoles() error = %v", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	if !slices.Equal(names, []string{"owner", "member", "moderator"}) {
		t.Fatalf("roles = %v, want [owner member moderator]", names)
	}
	if !slices.Equal(roles[2].Permissions, models.ReadOnlyPermissions()) {
		t.Fatalf("new role permissions = %+v, want read only", roles[2].Permissions)
	}

	tests := []struct {
		name   string
		caller string
		role   string
		want   apierr.Code
	}{
		{"duplicate custom role", "owner", "moderator", apierr.CodeDuplicate},
		{"default role name", "owner", "member", apierr.CodeDuplicate},
		{"blank name", "owner", " ", apierr.CodeBadRequest},
		{"member lacks group write", "alice", "helper", apierr.CodeUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.AddRoleToGroup(ctx, tc.caller, group.ID, tc.role, "", 3)
			wantCode(t, err, tc.want)
		})
	}
}

func TestEditRolePermissions(t *testing.T) {
	env, group := setupRoles(t)
	ctx := context.Background()

	perms := []models.Permission{{Type: models.PermissionMember, Actions: models.PermissionActions{Read: true, Write: true}}}
	role, err := env.svc.EditRolePermissions(ctx, "owner", group.ID, "moderator", perms)
	if err != nil {
		t.Fatalf("EditRolePermissions() error = %v", err)
	}
	if !slices.Equal(role.Permissions, perms) {
		t.Fatalf("permissions = %+v, want %+v", role.Permissions, perms)
	}

	_, err = env.svc.EditRolePermissions(ctx, "owner", group.ID, "owner", perms)
	wantCode(t, err, apierr.CodeBadRequest)
	_, err = env.svc.EditRolePermissions(ctx, "owner", group.ID, "ghost", perms)
	wantCode(t, err, apierr.CodeNotFound)
	_, err = env.svc.EditRolePermissions(ctx, "owner", group.ID, "moderator", []models.Permission{{Type: "wallet"}})
	wantCode(t, err, apierr.CodeBadRequest)

	// The edited role now lets its holder remove members.
	if _, err := env.svc.AssignRoleToMember(ctx, "owner", group.ID, "alice", "moderator"); err != nil {
		t.Fatalf("AssignRoleToMember() error = %v", err)
	}
	if err := env.svc.RemoveMemberFromGroup(ctx, "alice", group.ID, "bob"); err != nil {
		t.Fatalf("RemoveMemberFromGroup() by moderator error = %v", err)
	}
}

func TestAssignAndRemoveMemberRoles(t *testing.T) {
	env, group := setupRoles(t)
	ctx := context.Background()

	roles, err := env.svc.AssignRoleToMember(ctx, "owner", group.ID, "alice", "moderator")
	if err != nil {
		t.Fatalf("AssignRoleToMember() error = %v", err)
	}
	if !slices.Equal(roles, []string{"moderator"}) {
		t.Fatalf("roles = %v, want [moderator]", roles)
	}
	changed := env.notifier.ofKind(models.NotifyMemberRoleChanged)
	if len(changed) != 1 || !slices.Equal(changed[0].Roles, []string{"moderator"}) {
		t.Fatalf("role changed notifications = %+v", changed)
	}

	roles, err = env.svc.RemoveRoleFromMember(ctx, "owner", group.ID, "alice", "moderator")
	if err != nil {
		t.Fatalf("RemoveRoleFromMember() error = %v", err)
	}
	if !slices.Equal(roles, []string{models.MemberRole}) {
		t.Fatalf("roles after removal = %v, want [member]", roles)
	}
	got, err := env.svc.GetMemberRoles(ctx, group.ID, "alice")
	if err != nil {
		t.Fatalf("GetMemberRoles() error = %v", err)
	}
	if !slices.Equal(got, []string{models.MemberRole}) {
		t.Fatalf("stored roles = %v, want [member]", got)
	}

	tests := []struct {
		name   string
		caller string
		target string
		role   string
		want   apierr.Code
	}{
		{"owner role is not assignable", "owner", "alice", models.OwnerRole, apierr.CodeBadRequest},
		{"unknown role", "owner", "alice", "ghost", apierr.CodeBadRequest},
		{"target is owner", "owner", "owner", "moderator", apierr.CodeBadRequest},
		{"target unregistered", "owner", "nobody", "moderator", apierr.CodeNotFound},
		{"caller lacks member write", "bob", "alice", "moderator", apierr.CodeUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.AssignRoleToMember(ctx, tc.caller, group.ID, tc.target, tc.role)
			wantCode(t, err, tc.want)
		})
	}

	_, err = env.svc.RemoveRoleFromMember(ctx, "owner", group.ID, "bob", "moderator")
	wantCode(t, err, apierr.CodeBadRequest)
}

func TestRemoveGroupRoleFallsBackToMember(t *testing.T) {
	env, group := setupRoles(t)
	ctx := context.Background()
	if _, err := env.svc.AssignRoleToMember(ctx, "owner", group.ID, "alice", "moderator"); err != nil {
		t.Fatalf("AssignRoleToMember() error = %v", err)
	}

	if err := env.svc.RemoveGroupRole(ctx, "owner", group.ID, "moderator"); err != nil {
		t.Fatalf("RemoveGroupRole() error = %v", err)
	}
	if roles := env.member(t, "alice").Roles(group.ID); !slices.Equal(roles, []string{models.MemberRole}) {
		t.Fatalf("alice roles = %v, want [member]", roles)
	}
	roles, err := env.svc.GetGroupRoles(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroupRoles() error = %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("roles = %+v, want only defaults", roles)
	}

	wantCode(t, env.svc.RemoveGroupRole(ctx, "owner", group.ID, "member"), apierr.CodeBadRequest)
	wantCode(t, env.svc.RemoveGroupRole(ctx, "owner", group.ID, "moderator"), apierr.CodeNotFound)

	history, err := env.svc.GetRoleHistory(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetRoleHistory() error = %v", err)
	}
	last := history[len(history)-2:]
	if last[0].Kind != models.RoleChangeRemove || last[1].Kind != models.RoleChangeAdd || last[1].Roles[0] != models.MemberRole {
		t.Fatalf("trailing history = %+v, want remove then add member", last)
	}
	for _, change := range history {
		if ok, err := VerifyRoleChange(change); err != nil || !ok {
			t.Fatalf("VerifyRoleChange(%+v) = %v, %v", change, ok, err)
		}
	}
}
