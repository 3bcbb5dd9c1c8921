package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"group-registry/src/models"
)

const (
	rosterStateMember = "member"
	rosterStateInvite = "invite"
)

func (s *PGStore) CreateMember(ctx context.Context, principal string, createdAt int64) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO members (principal, created_at) VALUES ($1, $2)
	`, principal, createdAt); err != nil {
		return translate("create member", err)
	}
	return nil
}

func (s *PGStore) GetMember(ctx context.Context, principal string) (models.Member, error) {
	members, err := s.loadMembers(ctx, []string{principal})
	if err != nil {
		return models.Member{}, err
	}
	if len(members) == 0 {
		return models.Member{}, ErrNotFound
	}
	return members[0], nil
}

func (s *PGStore) LockMember(ctx context.Context, principal string) (models.Member, error) {
	var locked string
	err := s.q(ctx).QueryRow(ctx, `SELECT principal FROM members WHERE principal = $1 FOR UPDATE`, principal).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Member{}, ErrNotFound
	}
	if err != nil {
		return models.Member{}, fmt.Errorf("lock member: %w", err)
	}
	return s.GetMember(ctx, principal)
}

func (s *PGStore) GetMembers(ctx context.Context, principals []string) ([]models.Member, error) {
	if len(principals) == 0 {
		return []models.Member{}, nil
	}
	return s.loadMembers(ctx, principals)
}

// loadMembers reads member rows with their joins and invites in one round trip.
func (s *PGStore) loadMembers(ctx context.Context, principals []string) ([]models.Member, error) {
	batch := &pgx.Batch{}
	batch.Queue(`SELECT principal, created_at FROM members WHERE principal = ANY($1)`, principals)
	batch.Queue(`
		SELECT principal, group_id, roles, created_at, updated_at
		FROM member_joins
		WHERE principal = ANY($1)
	`, principals)
	batch.Queue(`
		SELECT principal, group_id, kind, notification_id, created_at, updated_at
		FROM member_invites
		WHERE principal = ANY($1)
	`, principals)

	br := s.q(ctx).SendBatch(ctx, batch)
	defer br.Close()

	byPrincipal := make(map[string]models.Member, len(principals))

	rows, err := br.Query()
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	for rows.Next() {
		var principal string
		var createdAt int64
		if err := rows.Scan(&principal, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		byPrincipal[principal] = models.NewMember(principal, createdAt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member rows: %w", err)
	}

	rows, err = br.Query()
	if err != nil {
		return nil, fmt.Errorf("query member joins: %w", err)
	}
	for rows.Next() {
		var principal string
		var groupID uint64
		var join models.Join
		if err := rows.Scan(&principal, &groupID, &join.Roles, &join.CreatedAt, &join.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member join row: %w", err)
		}
		if member, ok := byPrincipal[principal]; ok {
			member.Joined[groupID] = join
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member join rows: %w", err)
	}

	rows, err = br.Query()
	if err != nil {
		return nil, fmt.Errorf("query member invites: %w", err)
	}
	for rows.Next() {
		var principal string
		var groupID uint64
		var invite models.Invite
		var kind string
		if err := rows.Scan(&principal, &groupID, &kind, &invite.NotificationID, &invite.CreatedAt, &invite.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member invite row: %w", err)
		}
		invite.Kind = models.InviteKind(kind)
		if member, ok := byPrincipal[principal]; ok {
			member.Invites[groupID] = invite
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member invite rows: %w", err)
	}

	out := make([]models.Member, 0, len(byPrincipal))
	for _, principal := range principals {
		if member, ok := byPrincipal[principal]; ok {
			out = append(out, member)
			delete(byPrincipal, principal)
		}
	}
	return out, nil
}

func (s *PGStore) PutJoin(ctx context.Context, principal string, groupID uint64, join models.Join) error {
	roles := join.Roles
	if roles == nil {
		roles = []string{}
	}
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO member_joins (principal, group_id, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal, group_id) DO UPDATE
		SET roles = EXCLUDED.roles,
			updated_at = EXCLUDED.updated_at
	`, principal, int64(groupID), roles, join.CreatedAt, join.UpdatedAt); err != nil {
		return translate("put member join", err)
	}
	return nil
}

func (s *PGStore) DeleteJoin(ctx context.Context, principal string, groupID uint64) error {
	if _, err := s.q(ctx).Exec(ctx, `
		DELETE FROM member_joins WHERE principal = $1 AND group_id = $2
	`, principal, int64(groupID)); err != nil {
		return fmt.Errorf("delete member join: %w", err)
	}
	return nil
}

func (s *PGStore) PutInvite(ctx context.Context, principal string, groupID uint64, invite models.Invite) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO member_invites (principal, group_id, kind, notification_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (principal, group_id) DO UPDATE
		SET kind = EXCLUDED.kind,
			notification_id = EXCLUDED.notification_id,
			updated_at = EXCLUDED.updated_at
	`, principal, int64(groupID), string(invite.Kind), invite.NotificationID, invite.CreatedAt, invite.UpdatedAt); err != nil {
		return translate("put member invite", err)
	}
	return nil
}

func (s *PGStore) DeleteInvite(ctx context.Context, principal string, groupID uint64) error {
	if _, err := s.q(ctx).Exec(ctx, `
		DELETE FROM member_invites WHERE principal = $1 AND group_id = $2
	`, principal, int64(groupID)); err != nil {
		return fmt.Errorf("delete member invite: %w", err)
	}
	return nil
}

func (s *PGStore) CreateRoster(ctx context.Context, groupID uint64) error {
	if _, err := s.q(ctx).Exec(ctx, `INSERT INTO group_rosters (group_id) VALUES ($1)`, int64(groupID)); err != nil {
		return translate("create roster", err)
	}
	return nil
}

func (s *PGStore) GetRoster(ctx context.Context, groupID uint64) (models.Roster, error) {
	var exists bool
	if err := s.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_rosters WHERE group_id = $1)
	`, int64(groupID)).Scan(&exists); err != nil {
		return models.Roster{}, fmt.Errorf("get roster: %w", err)
	}
	if !exists {
		return models.Roster{}, ErrNotFound
	}

	rosters, err := s.scanRosterEntries(ctx, `
		SELECT group_id, principal, state, added_at
		FROM group_roster_entries
		WHERE group_id = $1
	`, int64(groupID))
	if err != nil {
		return models.Roster{}, err
	}
	if roster, ok := rosters[groupID]; ok {
		return roster, nil
	}
	return models.NewRoster(groupID), nil
}

func (s *PGStore) ListRosters(ctx context.Context) (map[uint64]models.Roster, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT group_id FROM group_rosters`)
	if err != nil {
		return nil, fmt.Errorf("query rosters: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect roster rows: %w", err)
	}

	rosters, err := s.scanRosterEntries(ctx, `
		SELECT group_id, principal, state, added_at
		FROM group_roster_entries
	`)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := rosters[uint64(id)]; !ok {
			rosters[uint64(id)] = models.NewRoster(uint64(id))
		}
	}
	return rosters, nil
}

func (s *PGStore) scanRosterEntries(ctx context.Context, query string, args ...any) (map[uint64]models.Roster, error) {
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query roster entries: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]models.Roster)
	for rows.Next() {
		var groupID uint64
		var principal, state string
		var addedAt int64
		if err := rows.Scan(&groupID, &principal, &state, &addedAt); err != nil {
			return nil, fmt.Errorf("scan roster entry row: %w", err)
		}
		roster, ok := out[groupID]
		if !ok {
			roster = models.NewRoster(groupID)
			out[groupID] = roster
		}
		switch state {
		case rosterStateMember:
			roster.Members[principal] = addedAt
		case rosterStateInvite:
			roster.Invites[principal] = addedAt
		default:
			return nil, fmt.Errorf("scan roster entry row: %w: %q", errUnknownRosterState, state)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster entry rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) addRosterEntry(ctx context.Context, groupID uint64, principal, state string, at int64) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO group_roster_entries (group_id, principal, state, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, principal, state) DO UPDATE
		SET added_at = EXCLUDED.added_at
	`, int64(groupID), principal, state, at); err != nil {
		return translate("add roster "+state, err)
	}
	return nil
}

func (s *PGStore) removeRosterEntry(ctx context.Context, groupID uint64, principal, state string) error {
	if _, err := s.q(ctx).Exec(ctx, `
		DELETE FROM group_roster_entries
		WHERE group_id = $1 AND principal = $2 AND state = $3
	`, int64(groupID), principal, state); err != nil {
		return fmt.Errorf("remove roster %s: %w", state, err)
	}
	return nil
}

func (s *PGStore) AddRosterMember(ctx context.Context, groupID uint64, principal string, at int64) error {
	return s.addRosterEntry(ctx, groupID, principal, rosterStateMember, at)
}

func (s *PGStore) RemoveRosterMember(ctx context.Context, groupID uint64, principal string) error {
	return s.removeRosterEntry(ctx, groupID, principal, rosterStateMember)
}

func (s *PGStore) AddRosterInvite(ctx context.Context, groupID uint64, principal string, at int64) error {
	return s.addRosterEntry(ctx, groupID, principal, rosterStateInvite, at)
}

func (s *PGStore) RemoveRosterInvite(ctx context.Context, groupID uint64, principal string) error {
	return s.removeRosterEntry(ctx, groupID, principal, rosterStateInvite)
}

func (s *PGStore) DeleteRoster(ctx context.Context, groupID uint64) error {
	if _, err := s.q(ctx).Exec(ctx, `DELETE FROM group_rosters WHERE group_id = $1`, int64(groupID)); err != nil {
		return fmt.Errorf("delete roster: %w", err)
	}
	return nil
}

var errUnknownRosterState = errors.New("unknown roster state")
