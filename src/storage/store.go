package storage

import (
	"context"
	"errors"

	"group-registry/src/models"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when inserting a key that already exists.
	ErrConflict = errors.New("already exists")
)

// TxRunner runs fn inside one transaction. Nested calls join the outer
// transaction. Any error returned by fn rolls every write back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// GroupQuery narrows ListGroups. Zero values match everything.
type GroupQuery struct {
	IDs          []uint64
	Owner        string
	NameContains string
	Tag          string
}

type GroupStore interface {
	InsertGroup(ctx context.Context, group models.Group, nameKey string) (models.Group, error)
	GetGroup(ctx context.Context, id uint64) (models.Group, error)
	// LockGroup reads a group and holds it for the rest of the transaction.
	LockGroup(ctx context.Context, id uint64) (models.Group, error)
	UpdateGroup(ctx context.Context, group models.Group, nameKey string) error
	DeleteGroup(ctx context.Context, id uint64) error
	ListGroups(ctx context.Context, query GroupQuery) ([]models.Group, error)
	FindGroupByNameKey(ctx context.Context, nameKey string) (models.Group, error)
	// LockGroupName serializes creations competing for the same name.
	LockGroupName(ctx context.Context, nameKey string) error
}

// MemberStore holds the principal-centric side of membership.
type MemberStore interface {
	CreateMember(ctx context.Context, principal string, createdAt int64) error
	GetMember(ctx context.Context, principal string) (models.Member, error)
	// LockMember reads a member and holds it for the rest of the transaction.
	LockMember(ctx context.Context, principal string) (models.Member, error)
	GetMembers(ctx context.Context, principals []string) ([]models.Member, error)
	PutJoin(ctx context.Context, principal string, groupID uint64, join models.Join) error
	DeleteJoin(ctx context.Context, principal string, groupID uint64) error
	PutInvite(ctx context.Context, principal string, groupID uint64, invite models.Invite) error
	DeleteInvite(ctx context.Context, principal string, groupID uint64) error
}

// RosterStore holds the group-centric side of membership.
type RosterStore interface {
	CreateRoster(ctx context.Context, groupID uint64) error
	GetRoster(ctx context.Context, groupID uint64) (models.Roster, error)
	ListRosters(ctx context.Context) (map[uint64]models.Roster, error)
	AddRosterMember(ctx context.Context, groupID uint64, principal string, at int64) error
	RemoveRosterMember(ctx context.Context, groupID uint64, principal string) error
	AddRosterInvite(ctx context.Context, groupID uint64, principal string, at int64) error
	RemoveRosterInvite(ctx context.Context, groupID uint64, principal string) error
	DeleteRoster(ctx context.Context, groupID uint64) error
}

type TransferStore interface {
	GetTransferRequest(ctx context.Context, groupID uint64) (models.TransferRequest, error)
	InsertTransferRequest(ctx context.Context, req models.TransferRequest) error
	DeleteTransferRequest(ctx context.Context, groupID uint64) (bool, error)
	ListTransferRequests(ctx context.Context) ([]models.TransferRequest, error)
}

type HistoryStore interface {
	AppendRoleChange(ctx context.Context, change models.RoleChange) error
	ListRoleChanges(ctx context.Context, groupID uint64) ([]models.RoleChange, error)
}

// EventStore tracks the event sub-resources owned by a group.
type EventStore interface {
	AddGroupEvent(ctx context.Context, event models.GroupEvent) error
	ListGroupEvents(ctx context.Context, groupID uint64) ([]models.GroupEvent, error)
	DeleteGroupEvent(ctx context.Context, groupID uint64, eventID string) error
}

// ProfileStore holds starred/pinned group references on profiles.
type ProfileStore interface {
	PutProfileRef(ctx context.Context, ref models.ProfileRef) error
	ListProfileRefs(ctx context.Context, principal string) ([]models.ProfileRef, error)
	ListProfileRefsByGroup(ctx context.Context, groupID uint64) ([]models.ProfileRef, error)
	DeleteProfileRef(ctx context.Context, principal string, groupID uint64) error
}

type BoostStore interface {
	PutBoost(ctx context.Context, boost models.Boost) error
	GetBoost(ctx context.Context, groupID uint64) (models.Boost, error)
	DeleteBoost(ctx context.Context, groupID uint64) (bool, error)
	ListBoosts(ctx context.Context) ([]models.Boost, error)
}

// Store is everything the registry persists.
type Store interface {
	TxRunner
	GroupStore
	MemberStore
	RosterStore
	TransferStore
	HistoryStore
	EventStore
	ProfileStore
	BoostStore
}
