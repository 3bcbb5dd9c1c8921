package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"group-registry/src/models"
)

const groupColumns = `id, name, description, website, tags, owner, created_by,
	privacy, roles, wallets, special_members, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type groupJSON struct {
	privacy, roles, wallets, specialMembers []byte
}

func encodeGroupJSON(group models.Group) (groupJSON, error) {
	var out groupJSON
	var err error
	if out.privacy, err = json.Marshal(group.Privacy); err != nil {
		return out, fmt.Errorf("encode privacy: %w", err)
	}
	roles := group.Roles
	if roles == nil {
		roles = []models.Role{}
	}
	if out.roles, err = json.Marshal(roles); err != nil {
		return out, fmt.Errorf("encode roles: %w", err)
	}
	if out.wallets, err = json.Marshal(nonNilMap(group.Wallets)); err != nil {
		return out, fmt.Errorf("encode wallets: %w", err)
	}
	if out.specialMembers, err = json.Marshal(nonNilMap(group.SpecialMembers)); err != nil {
		return out, fmt.Errorf("encode special members: %w", err)
	}
	return out, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func scanGroup(row rowScanner) (models.Group, error) {
	var group models.Group
	var raw groupJSON
	if err := row.Scan(&group.ID, &group.Name, &group.Description, &group.Website, &group.Tags,
		&group.Owner, &group.CreatedBy, &raw.privacy, &raw.roles, &raw.wallets, &raw.specialMembers,
		&group.CreatedAt, &group.UpdatedAt); err != nil {
		return models.Group{}, err
	}
	if err := json.Unmarshal(raw.privacy, &group.Privacy); err != nil {
		return models.Group{}, fmt.Errorf("decode privacy: %w", err)
	}
	if err := json.Unmarshal(raw.roles, &group.Roles); err != nil {
		return models.Group{}, fmt.Errorf("decode roles: %w", err)
	}
	if err := json.Unmarshal(raw.wallets, &group.Wallets); err != nil {
		return models.Group{}, fmt.Errorf("decode wallets: %w", err)
	}
	if err := json.Unmarshal(raw.specialMembers, &group.SpecialMembers); err != nil {
		return models.Group{}, fmt.Errorf("decode special members: %w", err)
	}
	if group.Tags == nil {
		group.Tags = []string{}
	}
	return group, nil
}

func (s *PGStore) InsertGroup(ctx context.Context, group models.Group, nameKey string) (models.Group, error) {
	raw, err := encodeGroupJSON(group)
	if err != nil {
		return models.Group{}, err
	}
	if group.Tags == nil {
		group.Tags = []string{}
	}

	row := s.q(ctx).QueryRow(ctx, `
		INSERT INTO groups (
			name, name_key, description, website, tags, owner, created_by,
			privacy, roles, wallets, special_members, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)
		RETURNING id
	`,
		group.Name, nameKey, group.Description, group.Website, group.Tags, group.Owner, group.CreatedBy,
		raw.privacy, raw.roles, raw.wallets, raw.specialMembers, group.CreatedAt, group.UpdatedAt,
	)
	if err := row.Scan(&group.ID); err != nil {
		return models.Group{}, fmt.Errorf("insert group: %w", err)
	}
	return group, nil
}

func (s *PGStore) getGroup(ctx context.Context, id uint64, lock bool) (models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	group, err := scanGroup(s.q(ctx).QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

func (s *PGStore) GetGroup(ctx context.Context, id uint64) (models.Group, error) {
	return s.getGroup(ctx, id, false)
}

func (s *PGStore) LockGroup(ctx context.Context, id uint64) (models.Group, error) {
	return s.getGroup(ctx, id, true)
}

func (s *PGStore) UpdateGroup(ctx context.Context, group models.Group, nameKey string) error {
	raw, err := encodeGroupJSON(group)
	if err != nil {
		return err
	}
	if group.Tags == nil {
		group.Tags = []string{}
	}

	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE groups
		SET name = $2,
			name_key = $3,
			description = $4,
			website = $5,
			tags = $6,
			owner = $7,
			privacy = $8,
			roles = $9,
			wallets = $10,
			special_members = $11,
			updated_at = $12
		WHERE id = $1
	`,
		int64(group.ID), group.Name, nameKey, group.Description, group.Website, group.Tags, group.Owner,
		raw.privacy, raw.roles, raw.wallets, raw.specialMembers, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteGroup(ctx context.Context, id uint64) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM groups WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := s.q(ctx).Exec(ctx, `DELETE FROM group_role_history WHERE group_id = $1`, int64(id)); err != nil {
		return fmt.Errorf("delete group role history: %w", err)
	}
	return nil
}

func (s *PGStore) ListGroups(ctx context.Context, query GroupQuery) ([]models.Group, error) {
	var b strings.Builder
	args := make([]any, 0, 4)
	argIdx := 1

	b.WriteString(`SELECT ` + groupColumns + `
		FROM groups
		WHERE 1=1
	`)

	if len(query.IDs) > 0 {
		ids := make([]int64, 0, len(query.IDs))
		for _, id := range query.IDs {
			ids = append(ids, int64(id))
		}
		b.WriteString(fmt.Sprintf("AND id = ANY($%d)\n", argIdx))
		args = append(args, ids)
		argIdx++
	}
	if query.Owner != "" {
		b.WriteString(fmt.Sprintf("AND owner = $%d\n", argIdx))
		args = append(args, query.Owner)
		argIdx++
	}
	if query.NameContains != "" {
		b.WriteString(fmt.Sprintf("AND strpos(lower(name), lower($%d)) > 0\n", argIdx))
		args = append(args, query.NameContains)
		argIdx++
	}
	if query.Tag != "" {
		b.WriteString(fmt.Sprintf("AND $%d = ANY(tags)\n", argIdx))
		args = append(args, query.Tag)
	}
	b.WriteString("ORDER BY id ASC")

	rows, err := s.q(ctx).Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}

func (s *PGStore) FindGroupByNameKey(ctx context.Context, nameKey string) (models.Group, error) {
	group, err := scanGroup(s.q(ctx).QueryRow(ctx, `
		SELECT `+groupColumns+`
		FROM groups
		WHERE name_key = $1
		ORDER BY id ASC
		LIMIT 1
	`, nameKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, fmt.Errorf("find group by name: %w", err)
	}
	return group, nil
}

// LockGroupName takes a transaction-scoped advisory lock on the folded name.
func (s *PGStore) LockGroupName(ctx context.Context, nameKey string) error {
	if _, err := s.q(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, nameKey); err != nil {
		return fmt.Errorf("lock group name: %w", err)
	}
	return nil
}
