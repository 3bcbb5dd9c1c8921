package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"group-registry/src/apierr"
	"group-registry/src/models"
	"group-registry/src/services"
)

// PrincipalHeader carries the authenticated caller, set by the gateway in
// front of the registry.
const PrincipalHeader = "X-Principal"

type GroupRoutes struct {
	Service *services.GroupService
	Logger  *slog.Logger
}

func RegisterGroupRoutes(mux *http.ServeMux, routes GroupRoutes) {
	mux.HandleFunc("POST /members", routes.withCaller(routes.handleRegisterMember))
	mux.HandleFunc("GET /members/self", routes.withCaller(routes.handleSelfMember))
	mux.HandleFunc("GET /members/self/groups", routes.withCaller(routes.handleSelfGroups))
	mux.HandleFunc("GET /members/{principal}/profile-refs", routes.handleProfileRefs)
	mux.HandleFunc("GET /members/{principal}/transfers/{direction}", routes.handleMemberTransfers)

	mux.HandleFunc("GET /groups", routes.handleListGroups)
	mux.HandleFunc("POST /groups", routes.withCaller(routes.handleAddGroup))
	mux.HandleFunc("GET /groups/lookup", routes.handleGroupByName)
	mux.HandleFunc("GET /groups/boosted", routes.handleBoostedGroups)
	mux.HandleFunc("GET /groups/{id}", routes.withGroup(routes.handleGetGroup))
	mux.HandleFunc("PUT /groups/{id}", routes.withCallerGroup(routes.handleEditGroup))
	mux.HandleFunc("DELETE /groups/{id}", routes.withCallerGroup(routes.handleDeleteGroup))

	mux.HandleFunc("POST /groups/{id}/wallets", routes.withCallerGroup(routes.handleAddWallet))
	mux.HandleFunc("DELETE /groups/{id}/wallets/{address}", routes.withCallerGroup(routes.handleRemoveWallet))
	mux.HandleFunc("GET /groups/{id}/events", routes.withGroup(routes.handleGroupEvents))
	mux.HandleFunc("POST /groups/{id}/events", routes.withCallerGroup(routes.handleAddGroupEvent))
	mux.HandleFunc("DELETE /groups/{id}/events/{event}", routes.withCallerGroup(routes.handleRemoveGroupEvent))
	mux.HandleFunc("PUT /groups/{id}/profile-ref", routes.withCallerGroup(routes.handleProfileRef))
	mux.HandleFunc("POST /groups/{id}/boost", routes.withCallerGroup(routes.handleBoost))

	mux.HandleFunc("POST /groups/{id}/join", routes.withCallerGroup(routes.handleJoin))
	mux.HandleFunc("GET /groups/{id}/invites", routes.withCallerGroup(routes.handleListInvites))
	mux.HandleFunc("POST /groups/{id}/invites", routes.withCallerGroup(routes.handleInvite))
	mux.HandleFunc("DELETE /groups/{id}/invites/self", routes.withCallerGroup(routes.handleRemoveOwnInvite))
	mux.HandleFunc("POST /groups/{id}/invites/self/decision", routes.withCallerGroup(routes.handleOwnerInviteDecision))
	mux.HandleFunc("DELETE /groups/{id}/invites/{principal}", routes.withCallerGroup(routes.handleRemoveMemberInvite))
	mux.HandleFunc("POST /groups/{id}/invites/{principal}/decision", routes.withCallerGroup(routes.handleUserRequestDecision))

	mux.HandleFunc("GET /groups/{id}/members", routes.withGroup(routes.handleListMembers))
	mux.HandleFunc("DELETE /groups/{id}/members/self", routes.withCallerGroup(routes.handleLeave))
	mux.HandleFunc("GET /groups/{id}/members/{principal}", routes.withGroup(routes.handleGetMember))
	mux.HandleFunc("DELETE /groups/{id}/members/{principal}", routes.withCallerGroup(routes.handleRemoveMember))
	mux.HandleFunc("GET /groups/{id}/members/{principal}/roles", routes.withGroup(routes.handleMemberRoles))
	mux.HandleFunc("POST /groups/{id}/members/{principal}/roles", routes.withCallerGroup(routes.handleAssignRole))
	mux.HandleFunc("DELETE /groups/{id}/members/{principal}/roles/{role}", routes.withCallerGroup(routes.handleUnassignRole))

	mux.HandleFunc("GET /groups/{id}/roles", routes.withGroup(routes.handleListRoles))
	mux.HandleFunc("POST /groups/{id}/roles", routes.withCallerGroup(routes.handleAddRole))
	mux.HandleFunc("PUT /groups/{id}/roles/{role}/permissions", routes.withCallerGroup(routes.handleEditRolePermissions))
	mux.HandleFunc("DELETE /groups/{id}/roles/{role}", routes.withCallerGroup(routes.handleRemoveRole))
	mux.HandleFunc("GET /groups/{id}/role-history", routes.withGroup(routes.handleRoleHistory))
	mux.HandleFunc("GET /groups/{id}/higher-role-members", routes.withGroup(routes.handleHigherRoleMembers))
	mux.HandleFunc("GET /groups/{id}/permissions", routes.withGroup(routes.handlePermissionMembers))
	mux.HandleFunc("GET /groups/{id}/permissions/{principal}", routes.withGroup(routes.handleCheckPermission))

	mux.HandleFunc("GET /groups/{id}/bans", routes.withGroup(routes.handleListBans))
	mux.HandleFunc("PUT /groups/{id}/bans/{principal}", routes.withCallerGroup(routes.handleBan))
	mux.HandleFunc("DELETE /groups/{id}/bans/{principal}", routes.withCallerGroup(routes.handleUnban))

	mux.HandleFunc("GET /groups/{id}/transfer", routes.withGroup(routes.handleGetTransfer))
	mux.HandleFunc("POST /groups/{id}/transfer", routes.withCallerGroup(routes.handleCreateTransfer))
	mux.HandleFunc("DELETE /groups/{id}/transfer", routes.withCallerGroup(routes.handleCancelTransfer))
	mux.HandleFunc("POST /groups/{id}/transfer/decision", routes.withCallerGroup(routes.handleTransferDecision))

	mux.HandleFunc("GET /groups/{id}/roster-check", routes.withGroup(routes.handleRosterCheck))
}

type callerHandler func(w http.ResponseWriter, req *http.Request, caller string)
type groupHandler func(w http.ResponseWriter, req *http.Request, groupID uint64)
type callerGroupHandler func(w http.ResponseWriter, req *http.Request, caller string, groupID uint64)

func (r GroupRoutes) withCaller(next callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		caller := strings.TrimSpace(req.Header.Get(PrincipalHeader))
		if caller == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: apierr.CodeUnauthorized, Error: PrincipalHeader + " header is required"})
			return
		}
		next(w, req, caller)
	}
}

func (r GroupRoutes) withGroup(next groupHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		groupID, err := strconv.ParseUint(req.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: apierr.CodeBadRequest, Error: "invalid group id"})
			return
		}
		next(w, req, groupID)
	}
}

func (r GroupRoutes) withCallerGroup(next callerGroupHandler) http.HandlerFunc {
	return r.withCaller(func(w http.ResponseWriter, req *http.Request, caller string) {
		r.withGroup(func(w http.ResponseWriter, req *http.Request, groupID uint64) {
			next(w, req, caller, groupID)
		})(w, req)
	})
}

type errorBody struct {
	Code  apierr.Code `json:"code"`
	Error string      `json:"error"`
}

// writeError maps domain errors onto their status; anything else is a 500
// and is logged instead of echoed.
func (r GroupRoutes) writeError(w http.ResponseWriter, req *http.Request, err error) {
	code := apierr.CodeOf(err)
	if code == "" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request canceled"})
			return
		}
		r.logger().Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, code.HTTPStatus(), errorBody{Code: code, Error: err.Error()})
}

func (r GroupRoutes) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r GroupRoutes) respond(w http.ResponseWriter, req *http.Request, status int, payload any, err error) {
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, status, payload)
}

func (r GroupRoutes) done(w http.ResponseWriter, req *http.Request, err error) {
	r.respond(w, req, http.StatusOK, map[string]string{"status": "ok"}, err)
}

func decodeBody(w http.ResponseWriter, req *http.Request, dst any) bool {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: apierr.CodeBadRequest, Error: "invalid payload"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Members

func (r GroupRoutes) handleRegisterMember(w http.ResponseWriter, req *http.Request, caller string) {
	member, err := r.Service.RegisterMember(req.Context(), caller)
	r.respond(w, req, http.StatusCreated, member, err)
}

func (r GroupRoutes) handleSelfMember(w http.ResponseWriter, req *http.Request, caller string) {
	member, err := r.Service.GetSelfMember(req.Context(), caller)
	r.respond(w, req, http.StatusOK, member, err)
}

func (r GroupRoutes) handleSelfGroups(w http.ResponseWriter, req *http.Request, caller string) {
	groups, err := r.Service.GetSelfGroups(req.Context(), caller)
	r.respond(w, req, http.StatusOK, groups, err)
}

func (r GroupRoutes) handleProfileRefs(w http.ResponseWriter, req *http.Request) {
	refs, err := r.Service.GetProfileRefs(req.Context(), req.PathValue("principal"))
	r.respond(w, req, http.StatusOK, refs, err)
}

func (r GroupRoutes) handleMemberTransfers(w http.ResponseWriter, req *http.Request) {
	principal := req.PathValue("principal")
	var (
		items []models.TransferRequest
		err   error
	)
	switch req.PathValue("direction") {
	case "from":
		items, err = r.Service.GetFromTransferRequests(req.Context(), principal)
	case "to":
		items, err = r.Service.GetToTransferRequests(req.Context(), principal)
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Code: apierr.CodeNotFound, Error: "not found"})
		return
	}
	r.respond(w, req, http.StatusOK, items, err)
}

// Groups

func (r GroupRoutes) handleListGroups(w http.ResponseWriter, req *http.Request) {
	query, err := parseGroupListQuery(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: apierr.CodeBadRequest, Error: err.Error()})
		return
	}
	caller := strings.TrimSpace(req.Header.Get(PrincipalHeader))
	page, err := r.Service.GetGroups(req.Context(), caller, query)
	r.respond(w, req, http.StatusOK, page, err)
}

func (r GroupRoutes) handleAddGroup(w http.ResponseWriter, req *http.Request, caller string) {
	var post models.PostGroup
	if !decodeBody(w, req, &post) {
		return
	}
	group, err := r.Service.AddGroup(req.Context(), caller, post)
	r.respond(w, req, http.StatusCreated, group, err)
}

func (r GroupRoutes) handleGroupByName(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: apierr.CodeBadRequest, Error: "name is required"})
		return
	}
	group, err := r.Service.GetGroupByName(req.Context(), name)
	r.respond(w, req, http.StatusOK, group, err)
}

func (r GroupRoutes) handleBoostedGroups(w http.ResponseWriter, req *http.Request) {
	boosts, err := r.Service.GetBoostedGroups(req.Context())
	r.respond(w, req, http.StatusOK, boosts, err)
}

func (r GroupRoutes) handleGetGroup(w http.ResponseWriter, req *http.Request, groupID uint64) {
	group, err := r.Service.GetGroup(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, group, err)
}

func (r GroupRoutes) handleEditGroup(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var update models.UpdateGroup
	if !decodeBody(w, req, &update) {
		return
	}
	group, err := r.Service.EditGroup(req.Context(), caller, groupID, update)
	r.respond(w, req, http.StatusOK, group, err)
}

func (r GroupRoutes) handleDeleteGroup(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.DeleteGroup(req.Context(), caller, groupID))
}

type walletPayload struct {
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (r GroupRoutes) handleAddWallet(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload walletPayload
	if !decodeBody(w, req, &payload) {
		return
	}
	group, err := r.Service.AddWalletToGroup(req.Context(), caller, groupID, payload.Address, payload.Description)
	r.respond(w, req, http.StatusOK, group, err)
}

func (r GroupRoutes) handleRemoveWallet(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	group, err := r.Service.RemoveWalletFromGroup(req.Context(), caller, groupID, req.PathValue("address"))
	r.respond(w, req, http.StatusOK, group, err)
}

func (r GroupRoutes) handleGroupEvents(w http.ResponseWriter, req *http.Request, groupID uint64) {
	events, err := r.Service.GetGroupEvents(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, events, err)
}

func (r GroupRoutes) handleAddGroupEvent(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		EventID string `json:"event_id"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	event, err := r.Service.AddGroupEvent(req.Context(), caller, groupID, payload.EventID)
	r.respond(w, req, http.StatusCreated, event, err)
}

func (r GroupRoutes) handleRemoveGroupEvent(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.RemoveGroupEvent(req.Context(), caller, groupID, req.PathValue("event")))
}

func (r GroupRoutes) handleProfileRef(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		Starred bool `json:"starred"`
		Pinned  bool `json:"pinned"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	r.done(w, req, r.Service.SetProfileRef(req.Context(), caller, groupID, payload.Starred, payload.Pinned))
}

func (r GroupRoutes) handleBoost(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		Seconds int64 `json:"seconds"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	boost, err := r.Service.BoostGroup(req.Context(), caller, groupID, time.Duration(payload.Seconds)*time.Second)
	r.respond(w, req, http.StatusOK, boost, err)
}

// Membership

func (r GroupRoutes) handleJoin(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		AccountIdentifier string `json:"account_identifier"`
	}
	if req.ContentLength != 0 && !decodeBody(w, req, &payload) {
		return
	}
	status, err := r.Service.JoinGroup(req.Context(), caller, groupID, services.Evidence{AccountIdentifier: payload.AccountIdentifier})
	r.respond(w, req, http.StatusOK, map[string]models.MembershipStatus{"status": status}, err)
}

func (r GroupRoutes) handleListInvites(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	invites, err := r.Service.GetGroupInvites(req.Context(), caller, groupID)
	r.respond(w, req, http.StatusOK, invites, err)
}

func (r GroupRoutes) handleInvite(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		Principal string `json:"principal"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	invite, err := r.Service.InviteToGroup(req.Context(), caller, groupID, payload.Principal)
	r.respond(w, req, http.StatusCreated, invite, err)
}

func (r GroupRoutes) handleRemoveOwnInvite(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.RemoveInvite(req.Context(), caller, groupID))
}

func (r GroupRoutes) handleRemoveMemberInvite(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.RemoveMemberInviteFromGroup(req.Context(), caller, groupID, req.PathValue("principal")))
}

type decisionPayload struct {
	Accept bool `json:"accept"`
}

func (r GroupRoutes) handleOwnerInviteDecision(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload decisionPayload
	if !decodeBody(w, req, &payload) {
		return
	}
	r.done(w, req, r.Service.AcceptOrDeclineOwnerRequest(req.Context(), caller, groupID, payload.Accept))
}

func (r GroupRoutes) handleUserRequestDecision(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload decisionPayload
	if !decodeBody(w, req, &payload) {
		return
	}
	r.done(w, req, r.Service.AcceptOrDeclineUserRequest(req.Context(), caller, groupID, req.PathValue("principal"), payload.Accept))
}

func (r GroupRoutes) handleListMembers(w http.ResponseWriter, req *http.Request, groupID uint64) {
	members, err := r.Service.GetGroupMembers(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, members, err)
}

func (r GroupRoutes) handleGetMember(w http.ResponseWriter, req *http.Request, groupID uint64) {
	member, err := r.Service.GetGroupMember(req.Context(), groupID, req.PathValue("principal"))
	r.respond(w, req, http.StatusOK, member, err)
}

func (r GroupRoutes) handleLeave(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.LeaveGroup(req.Context(), caller, groupID))
}

func (r GroupRoutes) handleRemoveMember(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.RemoveMemberFromGroup(req.Context(), caller, groupID, req.PathValue("principal")))
}

// Roles

func (r GroupRoutes) handleMemberRoles(w http.ResponseWriter, req *http.Request, groupID uint64) {
	roles, err := r.Service.GetMemberRoles(req.Context(), groupID, req.PathValue("principal"))
	r.respond(w, req, http.StatusOK, roles, err)
}

func (r GroupRoutes) handleAssignRole(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	roles, err := r.Service.AssignRoleToMember(req.Context(), caller, groupID, req.PathValue("principal"), payload.Role)
	r.respond(w, req, http.StatusOK, roles, err)
}

func (r GroupRoutes) handleUnassignRole(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	roles, err := r.Service.RemoveRoleFromMember(req.Context(), caller, groupID, req.PathValue("principal"), req.PathValue("role"))
	r.respond(w, req, http.StatusOK, roles, err)
}

func (r GroupRoutes) handleListRoles(w http.ResponseWriter, req *http.Request, groupID uint64) {
	roles, err := r.Service.GetGroupRoles(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, roles, err)
}

func (r GroupRoutes) handleAddRole(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		Name  string `json:"name"`
		Color string `json:"color"`
		Index uint64 `json:"index"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	role, err := r.Service.AddRoleToGroup(req.Context(), caller, groupID, payload.Name, payload.Color, payload.Index)
	r.respond(w, req, http.StatusCreated, role, err)
}

func (r GroupRoutes) handleEditRolePermissions(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var permissions []models.Permission
	if !decodeBody(w, req, &permissions) {
		return
	}
	role, err := r.Service.EditRolePermissions(req.Context(), caller, groupID, req.PathValue("role"), permissions)
	r.respond(w, req, http.StatusOK, role, err)
}

func (r GroupRoutes) handleRemoveRole(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.RemoveGroupRole(req.Context(), caller, groupID, req.PathValue("role")))
}

func (r GroupRoutes) handleRoleHistory(w http.ResponseWriter, req *http.Request, groupID uint64) {
	history, err := r.Service.GetRoleHistory(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, history, err)
}

func (r GroupRoutes) handleHigherRoleMembers(w http.ResponseWriter, req *http.Request, groupID uint64) {
	principals, err := r.Service.GetHigherRoleMembers(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, principals, err)
}

func permissionQuery(req *http.Request) (models.PermissionType, models.PermissionAction) {
	q := req.URL.Query()
	return models.PermissionType(q.Get("type")), models.PermissionAction(q.Get("action"))
}

func (r GroupRoutes) handlePermissionMembers(w http.ResponseWriter, req *http.Request, groupID uint64) {
	permType, action := permissionQuery(req)
	principals, err := r.Service.GetGroupMembersByPermission(req.Context(), groupID, permType, action)
	r.respond(w, req, http.StatusOK, principals, err)
}

func (r GroupRoutes) handleCheckPermission(w http.ResponseWriter, req *http.Request, groupID uint64) {
	permType, action := permissionQuery(req)
	allowed, err := r.Service.CheckPermission(req.Context(), req.PathValue("principal"), groupID, permType, action)
	r.respond(w, req, http.StatusOK, map[string]bool{"allowed": allowed}, err)
}

// Bans

func (r GroupRoutes) handleListBans(w http.ResponseWriter, req *http.Request, groupID uint64) {
	banned, err := r.Service.GetBannedMembers(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, banned, err)
}

func (r GroupRoutes) handleBan(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.BanMember(req.Context(), caller, groupID, req.PathValue("principal")))
}

func (r GroupRoutes) handleUnban(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.UnbanMember(req.Context(), caller, groupID, req.PathValue("principal")))
}

// Ownership transfer

func (r GroupRoutes) handleGetTransfer(w http.ResponseWriter, req *http.Request, groupID uint64) {
	transfer, err := r.Service.GetTransferRequest(req.Context(), groupID)
	r.respond(w, req, http.StatusOK, transfer, err)
}

func (r GroupRoutes) handleCreateTransfer(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload struct {
		To string `json:"to"`
	}
	if !decodeBody(w, req, &payload) {
		return
	}
	transfer, err := r.Service.CreateTransferRequest(req.Context(), caller, groupID, payload.To)
	r.respond(w, req, http.StatusCreated, transfer, err)
}

func (r GroupRoutes) handleCancelTransfer(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	r.done(w, req, r.Service.CancelTransferRequest(req.Context(), caller, groupID))
}

func (r GroupRoutes) handleTransferDecision(w http.ResponseWriter, req *http.Request, caller string, groupID uint64) {
	var payload decisionPayload
	if !decodeBody(w, req, &payload) {
		return
	}
	r.done(w, req, r.Service.AcceptOrDeclineTransferRequest(req.Context(), caller, groupID, payload.Accept))
}

func (r GroupRoutes) handleRosterCheck(w http.ResponseWriter, req *http.Request, groupID uint64) {
	mismatches, err := r.Service.CheckRosterConsistency(req.Context(), groupID, req.URL.Query()["principal"]...)
	r.respond(w, req, http.StatusOK, mismatches, err)
}

func parseGroupListQuery(req *http.Request) (models.GroupListQuery, error) {
	q := req.URL.Query()
	query := models.GroupListQuery{
		Sort:      models.GroupSortField(q.Get("sort")),
		Direction: models.SortDirection(q.Get("direction")),
		Filter: models.GroupFilter{
			Name:              q.Get("name"),
			Owner:             q.Get("owner"),
			Tag:               q.Get("tag"),
			Joined:            q.Get("joined"),
			OptionallyInvited: q.Get("optionally_invited"),
		},
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"limit", &query.Limit},
		{"page", &query.Page},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return models.GroupListQuery{}, errors.New(p.key + " must be an integer")
		}
		*p.dst = parsed
	}

	for _, raw := range q["id"] {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return models.GroupListQuery{}, errors.New("id must be an unsigned integer")
		}
		query.Filter.IDs = append(query.Filter.IDs, id)
	}

	switch query.Sort {
	case "", models.SortCreatedOn, models.SortUpdatedOn, models.SortName, models.SortMemberCount:
	default:
		return models.GroupListQuery{}, errors.New("unknown sort field")
	}
	switch query.Direction {
	case "", models.SortAsc, models.SortDesc:
	default:
		return models.GroupListQuery{}, errors.New("direction must be asc or desc")
	}
	return query, nil
}
