package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"group-registry/src/models"
)

func (s *PGStore) GetTransferRequest(ctx context.Context, groupID uint64) (models.TransferRequest, error) {
	var req models.TransferRequest
	err := s.q(ctx).QueryRow(ctx, `
		SELECT group_id, from_principal, to_principal, created_at
		FROM group_transfer_requests
		WHERE group_id = $1
	`, int64(groupID)).Scan(&req.GroupID, &req.From, &req.To, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TransferRequest{}, ErrNotFound
		}
		return models.TransferRequest{}, fmt.Errorf("get transfer request: %w", err)
	}
	return req, nil
}

func (s *PGStore) InsertTransferRequest(ctx context.Context, req models.TransferRequest) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO group_transfer_requests (group_id, from_principal, to_principal, created_at)
		VALUES ($1, $2, $3, $4)
	`, int64(req.GroupID), req.From, req.To, req.CreatedAt); err != nil {
		return translate("insert transfer request", err)
	}
	return nil
}

func (s *PGStore) DeleteTransferRequest(ctx context.Context, groupID uint64) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM group_transfer_requests WHERE group_id = $1`, int64(groupID))
	if err != nil {
		return false, fmt.Errorf("delete transfer request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ListTransferRequests(ctx context.Context) ([]models.TransferRequest, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT group_id, from_principal, to_principal, created_at
		FROM group_transfer_requests
		ORDER BY group_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transfer requests: %w", err)
	}
	defer rows.Close()

	out := make([]models.TransferRequest, 0)
	for rows.Next() {
		var req models.TransferRequest
		if err := rows.Scan(&req.GroupID, &req.From, &req.To, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer request row: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer request rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) AppendRoleChange(ctx context.Context, change models.RoleChange) error {
	roles := change.Roles
	if roles == nil {
		roles = []string{}
	}
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO group_role_history (
			id, group_id, principal, roles, kind, created_at, event_id, signer, sig
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		change.ID, int64(change.GroupID), change.Principal, roles, string(change.Kind),
		change.CreatedAt, change.EventID, change.Signer, change.Sig,
	); err != nil {
		return translate("append role change", err)
	}
	return nil
}

func (s *PGStore) ListRoleChanges(ctx context.Context, groupID uint64) ([]models.RoleChange, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, group_id, principal, roles, kind, created_at, event_id, signer, sig
		FROM group_role_history
		WHERE group_id = $1
		ORDER BY seq ASC
	`, int64(groupID))
	if err != nil {
		return nil, fmt.Errorf("query role history: %w", err)
	}
	defer rows.Close()

	out := make([]models.RoleChange, 0)
	for rows.Next() {
		var change models.RoleChange
		var kind string
		if err := rows.Scan(&change.ID, &change.GroupID, &change.Principal, &change.Roles, &kind,
			&change.CreatedAt, &change.EventID, &change.Signer, &change.Sig); err != nil {
			return nil, fmt.Errorf("scan role history row: %w", err)
		}
		change.Kind = models.RoleChangeKind(kind)
		out = append(out, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role history rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) AddGroupEvent(ctx context.Context, event models.GroupEvent) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO group_events (group_id, event_id, created_at) VALUES ($1, $2, $3)
	`, int64(event.GroupID), event.EventID, event.CreatedAt); err != nil {
		return translate("add group event", err)
	}
	return nil
}

func (s *PGStore) ListGroupEvents(ctx context.Context, groupID uint64) ([]models.GroupEvent, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT group_id, event_id, created_at
		FROM group_events
		WHERE group_id = $1
		ORDER BY created_at ASC, event_id ASC
	`, int64(groupID))
	if err != nil {
		return nil, fmt.Errorf("query group events: %w", err)
	}
	defer rows.Close()

	out := make([]models.GroupEvent, 0)
	for rows.Next() {
		var event models.GroupEvent
		if err := rows.Scan(&event.GroupID, &event.EventID, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group event row: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group event rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) DeleteGroupEvent(ctx context.Context, groupID uint64, eventID string) error {
	if _, err := s.q(ctx).Exec(ctx, `
		DELETE FROM group_events WHERE group_id = $1 AND event_id = $2
	`, int64(groupID), eventID); err != nil {
		return fmt.Errorf("delete group event: %w", err)
	}
	return nil
}

func (s *PGStore) PutProfileRef(ctx context.Context, ref models.ProfileRef) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO profile_group_refs (principal, group_id, starred, pinned)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal, group_id) DO UPDATE
		SET starred = EXCLUDED.starred,
			pinned = EXCLUDED.pinned
	`, ref.Principal, int64(ref.GroupID), ref.Starred, ref.Pinned); err != nil {
		return fmt.Errorf("put profile ref: %w", err)
	}
	return nil
}

func (s *PGStore) listProfileRefs(ctx context.Context, query string, arg any) ([]models.ProfileRef, error) {
	rows, err := s.q(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query profile refs: %w", err)
	}
	defer rows.Close()

	out := make([]models.ProfileRef, 0)
	for rows.Next() {
		var ref models.ProfileRef
		if err := rows.Scan(&ref.Principal, &ref.GroupID, &ref.Starred, &ref.Pinned); err != nil {
			return nil, fmt.Errorf("scan profile ref row: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile ref rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListProfileRefs(ctx context.Context, principal string) ([]models.ProfileRef, error) {
	return s.listProfileRefs(ctx, `
		SELECT principal, group_id, starred, pinned
		FROM profile_group_refs
		WHERE principal = $1
		ORDER BY group_id ASC
	`, principal)
}

func (s *PGStore) ListProfileRefsByGroup(ctx context.Context, groupID uint64) ([]models.ProfileRef, error) {
	return s.listProfileRefs(ctx, `
		SELECT principal, group_id, starred, pinned
		FROM profile_group_refs
		WHERE group_id = $1
		ORDER BY principal ASC
	`, int64(groupID))
}

func (s *PGStore) DeleteProfileRef(ctx context.Context, principal string, groupID uint64) error {
	if _, err := s.q(ctx).Exec(ctx, `
		DELETE FROM profile_group_refs WHERE principal = $1 AND group_id = $2
	`, principal, int64(groupID)); err != nil {
		return fmt.Errorf("delete profile ref: %w", err)
	}
	return nil
}

func (s *PGStore) PutBoost(ctx context.Context, boost models.Boost) error {
	if _, err := s.q(ctx).Exec(ctx, `
		INSERT INTO group_boosts (group_id, boosted_by, started_at, ends_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id) DO UPDATE
		SET boosted_by = EXCLUDED.boosted_by,
			started_at = EXCLUDED.started_at,
			ends_at = EXCLUDED.ends_at
	`, int64(boost.GroupID), boost.BoostedBy, boost.StartedAt, boost.EndsAt); err != nil {
		return fmt.Errorf("put boost: %w", err)
	}
	return nil
}

func (s *PGStore) GetBoost(ctx context.Context, groupID uint64) (models.Boost, error) {
	var boost models.Boost
	err := s.q(ctx).QueryRow(ctx, `
		SELECT group_id, boosted_by, started_at, ends_at
		FROM group_boosts
		WHERE group_id = $1
	`, int64(groupID)).Scan(&boost.GroupID, &boost.BoostedBy, &boost.StartedAt, &boost.EndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Boost{}, ErrNotFound
		}
		return models.Boost{}, fmt.Errorf("get boost: %w", err)
	}
	return boost, nil
}

func (s *PGStore) DeleteBoost(ctx context.Context, groupID uint64) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM group_boosts WHERE group_id = $1`, int64(groupID))
	if err != nil {
		return false, fmt.Errorf("delete boost: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ListBoosts(ctx context.Context) ([]models.Boost, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT group_id, boosted_by, started_at, ends_at
		FROM group_boosts
		ORDER BY group_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query boosts: %w", err)
	}
	defer rows.Close()

	out := make([]models.Boost, 0)
	for rows.Next() {
		var boost models.Boost
		if err := rows.Scan(&boost.GroupID, &boost.BoostedBy, &boost.StartedAt, &boost.EndsAt); err != nil {
			return nil, fmt.Errorf("scan boost row: %w", err)
		}
		out = append(out, boost)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boost rows: %w", err)
	}
	return out, nil
}
