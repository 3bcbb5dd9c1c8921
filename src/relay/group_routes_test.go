package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"group-registry/src/apierr"
	"group-registry/src/lib"
	"group-registry/src/models"
	"group-registry/src/services"
	"group-registry/src/storage"
)

type testServer struct {
	handler http.Handler
	metrics *lib.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	priv := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(priv)
	if err != nil {
		t.Fatalf("derive pubkey: %v", err)
	}
	store := storage.NewMemoryStore()
	metrics := lib.NewMetrics()
	scheduler := lib.NewTimerScheduler()
	t.Cleanup(scheduler.Stop)

	svc := services.NewGroupService(services.GroupServiceConfig{
		Store:     store,
		History:   services.NewHistoryRecorder(store, pub, priv, metrics),
		Scheduler: scheduler,
		Metrics:   metrics,
		Logger:    lib.DiscardLogger(),
	})
	return &testServer{handler: NewHandler(svc, metrics, lib.DiscardLogger()), metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(PrincipalHeader, caller)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func (s *testServer) createGroup(t *testing.T, owner, name string) models.Group {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/groups", owner, models.PostGroup{
		Name:    name,
		Privacy: models.Privacy{Kind: models.PrivacyPublic},
	})
	wantStatus(t, rec, http.StatusCreated)
	return decode[models.Group](t, rec)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	wantStatus(t, rec, http.StatusOK)

	srv.metrics.Inc("group_created_total")
	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	wantStatus(t, rec, http.StatusOK)
	snapshot := decode[map[string]uint64](t, rec)
	if snapshot["group_created_total"] != 1 {
		t.Fatalf("group_created_total = %d, want 1", snapshot["group_created_total"])
	}
}

func TestRouteGuards(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		want   int
	}{
		{"missing principal", http.MethodPost, "/groups", "", models.PostGroup{Name: "x"}, http.StatusUnauthorized},
		{"blank principal", http.MethodPost, "/groups/1/join", "  ", nil, http.StatusUnauthorized},
		{"non numeric group id", http.MethodGet, "/groups/abc", "", nil, http.StatusBadRequest},
		{"negative group id", http.MethodGet, "/groups/-1/members", "", nil, http.StatusBadRequest},
		{"malformed payload", http.MethodPost, "/groups", "alice", "{", http.StatusBadRequest},
		{"unknown payload field", http.MethodPost, "/groups", "alice", `{"title":"x"}`, http.StatusBadRequest},
		{"unsupported method", http.MethodPatch, "/groups/1", "alice", nil, http.StatusMethodNotAllowed},
		{"unknown transfer direction", http.MethodGet, "/members/alice/transfers/sideways", "", nil, http.StatusNotFound},
		{"lookup without name", http.MethodGet, "/groups/lookup", "", nil, http.StatusBadRequest},
		{"bad list sort", http.MethodGet, "/groups?sort=stars", "", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.caller, tt.body)
			wantStatus(t, rec, tt.want)
		})
	}
}

func TestDomainErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	wantStatus(t, srv.do(t, http.MethodPost, "/members", "owner", nil), http.StatusCreated)
	srv.createGroup(t, "owner", "builders")

	tests := []struct {
		name     string
		method   string
		path     string
		caller   string
		body     any
		want     int
		wantCode apierr.Code
	}{
		{"missing group", http.MethodGet, "/groups/99", "", nil, http.StatusNotFound, apierr.CodeNotFound},
		{"unregistered creator", http.MethodPost, "/groups", "ghost", models.PostGroup{Name: "ghosts", Privacy: models.Privacy{Kind: models.PrivacyPublic}}, http.StatusNotFound, apierr.CodeNotFound},
		{"duplicate name", http.MethodPost, "/groups", "owner", models.PostGroup{Name: "BUILDERS", Privacy: models.Privacy{Kind: models.PrivacyPublic}}, http.StatusConflict, apierr.CodeDuplicate},
		{"owner cannot leave", http.MethodDelete, "/groups/1/members/self", "owner", nil, http.StatusBadRequest, apierr.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.caller, tt.body)
			wantStatus(t, rec, tt.want)
			body := decode[errorBody](t, rec)
			if body.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestMembershipFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	for _, p := range []string{"owner", "alice", "bob"} {
		wantStatus(t, srv.do(t, http.MethodPost, "/members", p, nil), http.StatusCreated)
	}
	group := srv.createGroup(t, "owner", "Builders")
	base := "/groups/" + strconv.FormatUint(group.ID, 10)

	rec := srv.do(t, http.MethodPost, base+"/join", "alice", nil)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[map[string]models.MembershipStatus](t, rec)["status"]; got != models.StatusJoined {
		t.Fatalf("join status = %q, want %q", got, models.StatusJoined)
	}

	rec = srv.do(t, http.MethodGet, base+"/members", "", nil)
	wantStatus(t, rec, http.StatusOK)
	if members := decode[[]models.JoinedMember](t, rec); len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}

	rec = srv.do(t, http.MethodGet, base+"/permissions/owner?type=member&action=delete", "", nil)
	wantStatus(t, rec, http.StatusOK)
	if !decode[map[string]bool](t, rec)["allowed"] {
		t.Fatalf("owner member delete allowed = false, want true")
	}

	wantStatus(t, srv.do(t, http.MethodPut, base+"/bans/bob", "owner", nil), http.StatusOK)
	rec = srv.do(t, http.MethodPost, base+"/join", "bob", nil)
	wantStatus(t, rec, http.StatusForbidden)

	rec = srv.do(t, http.MethodGet, base+"/bans", "", nil)
	wantStatus(t, rec, http.StatusOK)
	if banned := decode[[]string](t, rec); len(banned) != 1 || banned[0] != "bob" {
		t.Fatalf("banned = %v, want [bob]", banned)
	}

	wantStatus(t, srv.do(t, http.MethodPost, base+"/transfer", "owner", map[string]string{"to": "alice"}), http.StatusCreated)
	wantStatus(t, srv.do(t, http.MethodPost, base+"/transfer/decision", "alice", decisionPayload{Accept: true}), http.StatusOK)

	rec = srv.do(t, http.MethodGet, base, "", nil)
	wantStatus(t, rec, http.StatusOK)
	if view := decode[models.GroupView](t, rec); view.Owner != "alice" {
		t.Fatalf("owner = %q, want alice", view.Owner)
	}

	rec = srv.do(t, http.MethodGet, base+"/roster-check?principal=bob", "", nil)
	wantStatus(t, rec, http.StatusOK)
	if mismatches := decode[[]services.RosterMismatch](t, rec); len(mismatches) != 0 {
		t.Fatalf("roster mismatches = %+v, want none", mismatches)
	}

	wantStatus(t, srv.do(t, http.MethodDelete, base, "alice", nil), http.StatusOK)
	wantStatus(t, srv.do(t, http.MethodGet, base, "", nil), http.StatusNotFound)
}

func TestListGroupsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	wantStatus(t, srv.do(t, http.MethodPost, "/members", "owner", nil), http.StatusCreated)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		srv.createGroup(t, "owner", name)
	}

	rec := srv.do(t, http.MethodGet, "/groups?sort=name&direction=asc&limit=2&page=2", "", nil)
	wantStatus(t, rec, http.StatusOK)
	page := decode[models.PagedGroups](t, rec)
	if page.Total != 3 || page.NumberOfPages != 2 || len(page.Data) != 1 || page.Data[0].Name != "gamma" {
		t.Fatalf("page = %+v", page)
	}

	rec = srv.do(t, http.MethodGet, "/groups/lookup?name=BETA", "", nil)
	wantStatus(t, rec, http.StatusOK)
	if view := decode[models.GroupView](t, rec); view.Name != "beta" {
		t.Fatalf("lookup name = %q, want beta", view.Name)
	}
}

func TestParseGroupListQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    models.GroupListQuery
		wantErr bool
	}{
		{name: "empty", query: "", want: models.GroupListQuery{}},
		{
			name:  "all fields",
			query: "limit=5&page=3&sort=member_count&direction=desc&name=Bu&owner=o&tag=art&joined=j&optionally_invited=i&id=4&id=9",
			want: models.GroupListQuery{
				Limit:     5,
				Page:      3,
				Sort:      models.SortMemberCount,
				Direction: models.SortDesc,
				Filter: models.GroupFilter{
					Name: "Bu", Owner: "o", Tag: "art", Joined: "j", OptionallyInvited: "i", IDs: []uint64{4, 9},
				},
			},
		},
		{name: "bad limit", query: "limit=ten", wantErr: true},
		{name: "bad id", query: "id=-3", wantErr: true},
		{name: "bad direction", query: "direction=up", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/groups?"+tt.query, nil)
			got, err := parseGroupListQuery(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if !bytes.Equal(gotJSON, wantJSON) {
				t.Fatalf("query = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}
