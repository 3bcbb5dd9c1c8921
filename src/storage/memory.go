package storage

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"group-registry/src/models"
)

type memoryTxKey struct{}

type memoryGroup struct {
	group   models.Group
	nameKey string
}

type memoryState struct {
	nextGroupID uint64
	groups      map[uint64]memoryGroup
	members     map[string]models.Member
	rosters     map[uint64]models.Roster
	transfers   map[uint64]models.TransferRequest
	history     map[uint64][]models.RoleChange
	events      map[uint64]map[string]models.GroupEvent
	profiles    map[string]map[uint64]models.ProfileRef
	boosts      map[uint64]models.Boost
}

func newMemoryState() memoryState {
	return memoryState{
		nextGroupID: 1,
		groups:      make(map[uint64]memoryGroup),
		members:     make(map[string]models.Member),
		rosters:     make(map[uint64]models.Roster),
		transfers:   make(map[uint64]models.TransferRequest),
		history:     make(map[uint64][]models.RoleChange),
		events:      make(map[uint64]map[string]models.GroupEvent),
		profiles:    make(map[string]map[uint64]models.ProfileRef),
		boosts:      make(map[uint64]models.Boost),
	}
}

func (st memoryState) clone() memoryState {
	out := newMemoryState()
	out.nextGroupID = st.nextGroupID
	for id, g := range st.groups {
		out.groups[id] = memoryGroup{group: g.group.Clone(), nameKey: g.nameKey}
	}
	for p, m := range st.members {
		out.members[p] = m.Clone()
	}
	for id, r := range st.rosters {
		out.rosters[id] = r.Clone()
	}
	maps.Copy(out.transfers, st.transfers)
	for id, changes := range st.history {
		out.history[id] = slices.Clone(changes)
	}
	for id, events := range st.events {
		out.events[id] = maps.Clone(events)
	}
	for p, refs := range st.profiles {
		out.profiles[p] = maps.Clone(refs)
	}
	maps.Copy(out.boosts, st.boosts)
	return out
}

// MemoryStore keeps everything in process memory. Transactions are
// serialized and write to a private copy of the state that replaces the
// committed state only when fn succeeds, so readers outside the
// transaction never see its writes.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state memoryState
}

// memoryTx is the working state of one open transaction.
type memoryTx struct {
	store *MemoryStore
	state memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) tx(ctx context.Context) *memoryTx {
	tx, _ := ctx.Value(memoryTxKey{}).(*memoryTx)
	if tx == nil || tx.store != s {
		return nil
	}
	return tx
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &memoryTx{store: s, state: s.state.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()
	return nil
}

// write applies fn to the transaction's working state, or to the committed
// state under both locks when ctx carries no transaction.
func (s *MemoryStore) write(ctx context.Context, fn func(st *memoryState) error) error {
	if tx := s.tx(ctx); tx != nil {
		return fn(&tx.state)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

// read sees the transaction's own writes inside a transaction and only
// committed state outside one.
func (s *MemoryStore) read(ctx context.Context, fn func(st *memoryState) error) error {
	if tx := s.tx(ctx); tx != nil {
		return fn(&tx.state)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (s *MemoryStore) InsertGroup(ctx context.Context, group models.Group, nameKey string) (models.Group, error) {
	var out models.Group
	err := s.write(ctx, func(st *memoryState) error {
		group.ID = st.nextGroupID
		st.nextGroupID++
		st.groups[group.ID] = memoryGroup{group: group.Clone(), nameKey: nameKey}
		out = group.Clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) GetGroup(ctx context.Context, id uint64) (models.Group, error) {
	var out models.Group
	err := s.read(ctx, func(st *memoryState) error {
		g, ok := st.groups[id]
		if !ok {
			return ErrNotFound
		}
		out = g.group.Clone()
		return nil
	})
	return out, err
}

// LockGroup is GetGroup; transactions are already serialized.
func (s *MemoryStore) LockGroup(ctx context.Context, id uint64) (models.Group, error) {
	return s.GetGroup(ctx, id)
}

func (s *MemoryStore) UpdateGroup(ctx context.Context, group models.Group, nameKey string) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.groups[group.ID]; !ok {
			return ErrNotFound
		}
		st.groups[group.ID] = memoryGroup{group: group.Clone(), nameKey: nameKey}
		return nil
	})
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id uint64) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.groups[id]; !ok {
			return ErrNotFound
		}
		delete(st.groups, id)
		delete(st.history, id)
		return nil
	})
}

func (s *MemoryStore) ListGroups(ctx context.Context, query GroupQuery) ([]models.Group, error) {
	out := make([]models.Group, 0)
	err := s.read(ctx, func(st *memoryState) error {
		for _, id := range slices.Sorted(maps.Keys(st.groups)) {
			g := st.groups[id].group
			if matchesGroupQuery(g, query) {
				out = append(out, g.Clone())
			}
		}
		return nil
	})
	return out, err
}

func matchesGroupQuery(g models.Group, q GroupQuery) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, g.ID) {
		return false
	}
	if q.Owner != "" && g.Owner != q.Owner {
		return false
	}
	if q.NameContains != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(q.NameContains)) {
		return false
	}
	if q.Tag != "" && !slices.Contains(g.Tags, q.Tag) {
		return false
	}
	return true
}

func (s *MemoryStore) FindGroupByNameKey(ctx context.Context, nameKey string) (models.Group, error) {
	var out models.Group
	err := s.read(ctx, func(st *memoryState) error {
		for _, id := range slices.Sorted(maps.Keys(st.groups)) {
			if g := st.groups[id]; g.nameKey == nameKey {
				out = g.group.Clone()
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (s *MemoryStore) LockGroupName(context.Context, string) error {
	return nil
}

func (s *MemoryStore) CreateMember(ctx context.Context, principal string, createdAt int64) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.members[principal]; ok {
			return ErrConflict
		}
		st.members[principal] = models.NewMember(principal, createdAt)
		return nil
	})
}

func (s *MemoryStore) GetMember(ctx context.Context, principal string) (models.Member, error) {
	var out models.Member
	err := s.read(ctx, func(st *memoryState) error {
		m, ok := st.members[principal]
		if !ok {
			return ErrNotFound
		}
		out = m.Clone()
		return nil
	})
	return out, err
}

// LockMember is GetMember; transactions are already serialized.
func (s *MemoryStore) LockMember(ctx context.Context, principal string) (models.Member, error) {
	return s.GetMember(ctx, principal)
}

func (s *MemoryStore) GetMembers(ctx context.Context, principals []string) ([]models.Member, error) {
	out := make([]models.Member, 0, len(principals))
	err := s.read(ctx, func(st *memoryState) error {
		for _, p := range principals {
			if m, ok := st.members[p]; ok {
				out = append(out, m.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) PutJoin(ctx context.Context, principal string, groupID uint64, join models.Join) error {
	return s.write(ctx, func(st *memoryState) error {
		m, ok := st.members[principal]
		if !ok {
			return ErrNotFound
		}
		join.Roles = slices.Clone(join.Roles)
		m.Joined[groupID] = join
		return nil
	})
}

func (s *MemoryStore) DeleteJoin(ctx context.Context, principal string, groupID uint64) error {
	return s.write(ctx, func(st *memoryState) error {
		if m, ok := st.members[principal]; ok {
			delete(m.Joined, groupID)
		}
		return nil
	})
}

func (s *MemoryStore) PutInvite(ctx context.Context, principal string, groupID uint64, invite models.Invite) error {
	return s.write(ctx, func(st *memoryState) error {
		m, ok := st.members[principal]
		if !ok {
			return ErrNotFound
		}
		m.Invites[groupID] = invite
		return nil
	})
}

func (s *MemoryStore) DeleteInvite(ctx context.Context, principal string, groupID uint64) error {
	return s.write(ctx, func(st *memoryState) error {
		if m, ok := st.members[principal]; ok {
			delete(m.Invites, groupID)
		}
		return nil
	})
}

func (s *MemoryStore) CreateRoster(ctx context.Context, groupID uint64) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.rosters[groupID]; ok {
			return ErrConflict
		}
		st.rosters[groupID] = models.NewRoster(groupID)
		return nil
	})
}

func (s *MemoryStore) GetRoster(ctx context.Context, groupID uint64) (models.Roster, error) {
	var out models.Roster
	err := s.read(ctx, func(st *memoryState) error {
		r, ok := st.rosters[groupID]
		if !ok {
			return ErrNotFound
		}
		out = r.Clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) ListRosters(ctx context.Context) (map[uint64]models.Roster, error) {
	out := make(map[uint64]models.Roster)
	err := s.read(ctx, func(st *memoryState) error {
		for id, r := range st.rosters {
			out[id] = r.Clone()
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) AddRosterMember(ctx context.Context, groupID uint64, principal string, at int64) error {
	return s.write(ctx, func(st *memoryState) error {
		r, ok := st.rosters[groupID]
		if !ok {
			return ErrNotFound
		}
		r.Members[principal] = at
		return nil
	})
}

func (s *MemoryStore) RemoveRosterMember(ctx context.Context, groupID uint64, principal string) error {
	return s.write(ctx, func(st *memoryState) error {
		if r, ok := st.rosters[groupID]; ok {
			delete(r.Members, principal)
		}
		return nil
	})
}

func (s *MemoryStore) AddRosterInvite(ctx context.Context, groupID uint64, principal string, at int64) error {
	return s.write(ctx, func(st *memoryState) error {
		r, ok := st.rosters[groupID]
		if !ok {
			return ErrNotFound
		}
		r.Invites[principal] = at
		return nil
	})
}

func (s *MemoryStore) RemoveRosterInvite(ctx context.Context, groupID uint64, principal string) error {
	return s.write(ctx, func(st *memoryState) error {
		if r, ok := st.rosters[groupID]; ok {
			delete(r.Invites, principal)
		}
		return nil
	})
}

func (s *MemoryStore) DeleteRoster(ctx context.Context, groupID uint64) error {
	return s.write(ctx, func(st *memoryState) error {
		delete(st.rosters, groupID)
		return nil
	})
}

func (s *MemoryStore) GetTransferRequest(ctx context.Context, groupID uint64) (models.TransferRequest, error) {
	var out models.TransferRequest
	err := s.read(ctx, func(st *memoryState) error {
		req, ok := st.transfers[groupID]
		if !ok {
			return ErrNotFound
		}
		out = req
		return nil
	})
	return out, err
}

func (s *MemoryStore) InsertTransferRequest(ctx context.Context, req models.TransferRequest) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.transfers[req.GroupID]; ok {
			return ErrConflict
		}
		st.transfers[req.GroupID] = req
		return nil
	})
}

func (s *MemoryStore) DeleteTransferRequest(ctx context.Context, groupID uint64) (bool, error) {
	var deleted bool
	err := s.write(ctx, func(st *memoryState) error {
		_, deleted = st.transfers[groupID]
		delete(st.transfers, groupID)
		return nil
	})
	return deleted, err
}

func (s *MemoryStore) ListTransferRequests(ctx context.Context) ([]models.TransferRequest, error) {
	var out []models.TransferRequest
	err := s.read(ctx, func(st *memoryState) error {
		out = slices.SortedFunc(maps.Values(st.transfers), func(a, b models.TransferRequest) int {
			return cmp.Compare(a.GroupID, b.GroupID)
		})
		return nil
	})
	return out, err
}

func (s *MemoryStore) AppendRoleChange(ctx context.Context, change models.RoleChange) error {
	return s.write(ctx, func(st *memoryState) error {
		change.Roles = slices.Clone(change.Roles)
		st.history[change.GroupID] = append(st.history[change.GroupID], change)
		return nil
	})
}

func (s *MemoryStore) ListRoleChanges(ctx context.Context, groupID uint64) ([]models.RoleChange, error) {
	var out []models.RoleChange
	err := s.read(ctx, func(st *memoryState) error {
		out = slices.Clone(st.history[groupID])
		if out == nil {
			out = make([]models.RoleChange, 0)
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) AddGroupEvent(ctx context.Context, event models.GroupEvent) error {
	return s.write(ctx, func(st *memoryState) error {
		events, ok := st.events[event.GroupID]
		if !ok {
			events = make(map[string]models.GroupEvent)
			st.events[event.GroupID] = events
		}
		if _, ok := events[event.EventID]; ok {
			return ErrConflict
		}
		events[event.EventID] = event
		return nil
	})
}

func (s *MemoryStore) ListGroupEvents(ctx context.Context, groupID uint64) ([]models.GroupEvent, error) {
	var out []models.GroupEvent
	err := s.read(ctx, func(st *memoryState) error {
		out = slices.SortedFunc(maps.Values(st.events[groupID]), func(a, b models.GroupEvent) int {
			if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.EventID, b.EventID)
		})
		return nil
	})
	return out, err
}

func (s *MemoryStore) DeleteGroupEvent(ctx context.Context, groupID uint64, eventID string) error {
	return s.write(ctx, func(st *memoryState) error {
		events := st.events[groupID]
		delete(events, eventID)
		if len(events) == 0 {
			delete(st.events, groupID)
		}
		return nil
	})
}

func (s *MemoryStore) PutProfileRef(ctx context.Context, ref models.ProfileRef) error {
	return s.write(ctx, func(st *memoryState) error {
		refs, ok := st.profiles[ref.Principal]
		if !ok {
			refs = make(map[uint64]models.ProfileRef)
			st.profiles[ref.Principal] = refs
		}
		refs[ref.GroupID] = ref
		return nil
	})
}

func (s *MemoryStore) ListProfileRefs(ctx context.Context, principal string) ([]models.ProfileRef, error) {
	var out []models.ProfileRef
	err := s.read(ctx, func(st *memoryState) error {
		out = slices.SortedFunc(maps.Values(st.profiles[principal]), func(a, b models.ProfileRef) int {
			return cmp.Compare(a.GroupID, b.GroupID)
		})
		return nil
	})
	return out, err
}

func (s *MemoryStore) ListProfileRefsByGroup(ctx context.Context, groupID uint64) ([]models.ProfileRef, error) {
	out := make([]models.ProfileRef, 0)
	err := s.read(ctx, func(st *memoryState) error {
		for _, p := range slices.Sorted(maps.Keys(st.profiles)) {
			if ref, ok := st.profiles[p][groupID]; ok {
				out = append(out, ref)
			}
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) DeleteProfileRef(ctx context.Context, principal string, groupID uint64) error {
	return s.write(ctx, func(st *memoryState) error {
		refs := st.profiles[principal]
		delete(refs, groupID)
		if len(refs) == 0 {
			delete(st.profiles, principal)
		}
		return nil
	})
}

func (s *MemoryStore) PutBoost(ctx context.Context, boost models.Boost) error {
	return s.write(ctx, func(st *memoryState) error {
		st.boosts[boost.GroupID] = boost
		return nil
	})
}

func (s *MemoryStore) GetBoost(ctx context.Context, groupID uint64) (models.Boost, error) {
	var out models.Boost
	err := s.read(ctx, func(st *memoryState) error {
		b, ok := st.boosts[groupID]
		if !ok {
			return ErrNotFound
		}
		out = b
		return nil
	})
	return out, err
}

func (s *MemoryStore) DeleteBoost(ctx context.Context, groupID uint64) (bool, error) {
	var deleted bool
	err := s.write(ctx, func(st *memoryState) error {
		_, deleted = st.boosts[groupID]
		delete(st.boosts, groupID)
		return nil
	})
	return deleted, err
}

func (s *MemoryStore) ListBoosts(ctx context.Context) ([]models.Boost, error) {
	var out []models.Boost
	err := s.read(ctx, func(st *memoryState) error {
		out = slices.SortedFunc(maps.Values(st.boosts), func(a, b models.Boost) int {
			return cmp.Compare(a.GroupID, b.GroupID)
		})
		return nil
	})
	return out, err
}

var _ Store = (*MemoryStore)(nil)
