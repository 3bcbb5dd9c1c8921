package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"group-registry/src/models"
)

func TestPGStoreGroupRoundTripIntegration(t *testing.T) {
	ctx := context.Background()
	store := NewPGStore(openIntegrationPool(t))

	group, err := store.InsertGroup(ctx, models.Group{
		Name:      "Alpha",
		Tags:      []string{"dao", "icp"},
		Owner:     "owner",
		CreatedBy: "owner",
		Privacy: models.Privacy{Kind: models.PrivacyGated, Gated: &models.GatedType{
			Kind:              models.GatedToken,
			Tokens:            []models.TokenGated{{Contract: "ryjl3-tyaaa-aaaaa-aaaba-cai", Standard: models.StandardICRC, Amount: 5}},
			RequiredPassCount: 1,
		}},
		Wallets:   map[string]string{"ryjl3": "ICP"},
		CreatedAt: 10,
		UpdatedAt: 10,
	}, "alpha")
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}
	if group.ID == 0 {
		t.Fatalf("inserted group id = 0")
	}

	got, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if !got.Privacy.Equal(group.Privacy) {
		t.Fatalf("privacy = %+v, want %+v", got.Privacy, group.Privacy)
	}
	if got.Wallets["ryjl3"] != "ICP" {
		t.Fatalf("wallets = %v, want ryjl3 entry", got.Wallets)
	}

	found, err := store.FindGroupByNameKey(ctx, "alpha")
	if err != nil || found.ID != group.ID {
		t.Fatalf("FindGroupByNameKey() = %d, %v, want %d", found.ID, err, group.ID)
	}

	groups, err := store.ListGroups(ctx, GroupQuery{Tag: "icp", NameContains: "ALP"})
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("ListGroups() len = %d, want 1", len(groups))
	}

	if err := store.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := store.GetGroup(ctx, group.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetGroup() after delete error = %v, want %v", err, ErrNotFound)
	}
}

func TestPGStoreMembershipTxIntegration(t *testing.T) {
	ctx := context.Background()
	store := NewPGStore(openIntegrationPool(t))

	if err := store.CreateMember(ctx, "alice", 1); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := store.CreateMember(ctx, "alice", 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("CreateMember() duplicate error = %v, want %v", err, ErrConflict)
	}
	if err := store.CreateRoster(ctx, 42); err != nil {
		t.Fatalf("create roster: %v", err)
	}

	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.PutJoin(ctx, "alice", 42, models.Join{Roles: []string{models.MemberRole}, CreatedAt: 2, UpdatedAt: 2}); err != nil {
			return err
		}
		return store.AddRosterMember(ctx, 42, "alice", 2)
	})
	if err != nil {
		t.Fatalf("commit join: %v", err)
	}

	boom := errors.New("boom")
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.DeleteJoin(ctx, "alice", 42); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx() error = %v, want %v", err, boom)
	}

	member, err := store.GetMember(ctx, "alice")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !member.HasRole(42, models.MemberRole) {
		t.Fatalf("member roles = %v, want [member]", member.Roles(42))
	}
	roster, err := store.GetRoster(ctx, 42)
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if !roster.IsMember("alice") {
		t.Fatalf("roster members = %v, want alice", roster.MemberPrincipals())
	}

	if err := store.AddRosterInvite(ctx, 999, "alice", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddRosterInvite() missing roster error = %v, want %v", err, ErrNotFound)
	}
	if err := store.PutInvite(ctx, "nobody", 42, models.Invite{Kind: models.InviteUserRequest}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PutInvite() unknown member error = %v, want %v", err, ErrNotFound)
	}
}

func TestPGStoreLockMemberSerializesTxIntegration(t *testing.T) {
	ctx := context.Background()
	store := NewPGStore(openIntegrationPool(t))
	if err := store.CreateMember(ctx, "owner", 1); err != nil {
		t.Fatalf("create member: %v", err)
	}

	locked := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- store.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := store.LockMember(ctx, "owner"); err != nil {
				return err
			}
			close(locked)
			<-release
			return store.PutJoin(ctx, "owner", 7, models.Join{Roles: []string{models.OwnerRole}, CreatedAt: 2, UpdatedAt: 2})
		})
	}()
	<-locked

	second := make(chan models.Member, 1)
	secondErr := make(chan error, 1)
	go func() {
		secondErr <- store.RunInTx(ctx, func(ctx context.Context) error {
			member, err := store.LockMember(ctx, "owner")
			if err != nil {
				return err
			}
			second <- member
			return nil
		})
	}()

	select {
	case <-second:
		t.Fatalf("second LockMember() returned while the first tx held the row")
	case <-time.After(200 * time.Millisecond):
	}
	close(release)

	if err := <-first; err != nil {
		t.Fatalf("first tx error = %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("second tx error = %v", err)
	}
	if member := <-second; !member.IsGroupJoined(7) {
		t.Fatalf("second tx member = %+v, want the first tx's join", member)
	}

	if _, err := store.LockMember(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LockMember() missing error = %v, want %v", err, ErrNotFound)
	}
}
