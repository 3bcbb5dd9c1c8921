package models

import "slices"

// RelationBlocked marks a principal banned from a group.
const RelationBlocked = "blocked"

// Group is a community registry entry.
type Group struct {
	ID             uint64            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Website        string            `json:"website"`
	Tags           []string          `json:"tags"`
	Owner          string            `json:"owner"`
	CreatedBy      string            `json:"created_by"`
	Privacy        Privacy           `json:"privacy"`
	Roles          []Role            `json:"roles"`
	Wallets        map[string]string `json:"wallets"`
	SpecialMembers map[string]string `json:"special_members"`
	CreatedAt      int64             `json:"created_at"`
	UpdatedAt      int64             `json:"updated_at"`
}

// PostGroup is the caller-supplied payload for group creation.
type PostGroup struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Website     string   `json:"website"`
	Tags        []string `json:"tags"`
	Privacy     Privacy  `json:"privacy"`
}

// UpdateGroup is the caller-supplied payload for group edits.
type UpdateGroup struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Website     string   `json:"website"`
	Tags        []string `json:"tags"`
	Privacy     Privacy  `json:"privacy"`
}

func (g Group) IsBanned(principal string) bool {
	return g.SpecialMembers[principal] == RelationBlocked
}

func (g Group) BannedPrincipals() []string {
	out := make([]string, 0)
	for principal, relation := range g.SpecialMembers {
		if relation == RelationBlocked {
			out = append(out, principal)
		}
	}
	slices.Sort(out)
	return out
}

// RoleIndex returns the position of a custom role, or -1.
func (g Group) RoleIndex(name string) int {
	return slices.IndexFunc(g.Roles, func(r Role) bool { return r.Name == name })
}

// AllRoles returns the implicit roles followed by the group's custom roles.
func (g Group) AllRoles() []Role {
	roles := DefaultRoles()
	for _, role := range g.Roles {
		roles = append(roles, role.Clone())
	}
	return roles
}

func (g Group) Clone() Group {
	out := g
	out.Tags = slices.Clone(g.Tags)
	out.Privacy = g.Privacy.Clone()
	out.Roles = make([]Role, 0, len(g.Roles))
	for _, role := range g.Roles {
		out.Roles = append(out.Roles, role.Clone())
	}
	out.Wallets = cloneStringMap(g.Wallets)
	out.SpecialMembers = cloneStringMap(g.SpecialMembers)
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
