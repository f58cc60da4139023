package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"

	"kitchenflow/internal/config"
	"kitchenflow/internal/db"
	"kitchenflow/internal/domain"
	"kitchenflow/internal/engine"
	"kitchenflow/internal/migrate"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL    string
	Owner  domain.Profile
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	owner, err := e.Bootstrap(context.Background(), engine.RegisterUserOptions{
		Email:    "owner@test.local",
		FullName: "Owner",
		Password: "owner-pass",
		Role:     "owner",
	})
	if err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Owner:  owner,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer, email, password string) (string, domain.Profile) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if out.Token == "" {
		t.Fatal("expected a token")
	}
	return out.Token, out.User
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerVia(t *testing.T, srv *testServer, token, email, password, role string) domain.Profile {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"email":    email,
		"password": password,
		"role":     role,
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s status %d: %s", role, res.StatusCode, string(data))
	}
	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}
	return p
}

func TestLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token, user := login(t, srv, "owner@test.local", "owner-pass")
	if user.Role != "owner" {
		t.Fatalf("expected owner role, got %q", user.Role)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me struct {
		UserID      string   `json:"user_id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != srv.Owner.ID || me.Role != "owner" {
		t.Fatalf("unexpected principal: %+v", me)
	}
	found := false
	for _, p := range me.Permissions {
		if p == "canCreateProjects" {
			found = true
		}
	}
	if !found {
		t.Fatalf("owner permissions missing canCreateProjects: %v", me.Permissions)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "owner@test.local",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status %d: %s", res.StatusCode, string(data))
	}
}

func TestMissingTokenRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestLegacyActorHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"X-Actor-Id": srv.Owner.ID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("legacy header status %d: %s", res.StatusCode, string(data))
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token, _ := login(t, srv, "owner@test.local", "owner-pass")
	designer := registerVia(t, srv, token, "designer@test.local", "designer-pass", "designer")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/clients", map[string]any{
		"name":  "Asha Rao",
		"email": "asha@example.com",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create client status %d: %s", res.StatusCode, string(data))
	}
	var cl domain.Client
	if err := json.Unmarshal(data, &cl); err != nil {
		t.Fatalf("unmarshal client: %v", err)
	}
	if cl.ClientCode != "CL-0001" {
		t.Fatalf("expected client code CL-0001, got %q", cl.ClientCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"client_id":      cl.ID,
		"kitchen_shape":  "L-shape",
		"budget_bracket": "5-8 lakhs",
		"materials":      []string{"Plywood", "Laminate"},
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if !strings.HasPrefix(project.ProjectReference, "KP-") {
		t.Fatalf("unexpected project reference %q", project.ProjectReference)
	}
	if project.Status != "intake" || project.CurrentPhase != 1 {
		t.Fatalf("unexpected new project state: %+v", project)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/phases", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list phases status %d: %s", res.StatusCode, string(data))
	}
	var phases []domain.Phase
	if err := json.Unmarshal(data, &phases); err != nil {
		t.Fatalf("unmarshal phases: %v", err)
	}
	if len(phases) != 6 {
		t.Fatalf("expected 6 phases, got %d", len(phases))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/phases/"+phases[0].ID+"/assign", map[string]any{
		"assignee_id": designer.ID,
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("assign phase status %d: %s", res.StatusCode, string(data))
	}
	var rec domain.AssignmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	if rec.AssignedTo != designer.ID {
		t.Fatalf("assignment went to %q", rec.AssignedTo)
	}

	designerToken, _ := login(t, srv, "designer@test.local", "designer-pass")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, bearer(designerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications status %d: %s", res.StatusCode, string(data))
	}
	var notifs []domain.Notification
	if err := json.Unmarshal(data, &notifs); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(notifs) != 1 || notifs[0].Type != "assignment" {
		t.Fatalf("expected one assignment notification, got %+v", notifs)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/phases/"+phases[0].ID+"/status", map[string]any{
		"status": "in_progress",
	}, bearer(designerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("phase status update %d: %s", res.StatusCode, string(data))
	}
	var ph domain.Phase
	if err := json.Unmarshal(data, &ph); err != nil {
		t.Fatalf("unmarshal phase: %v", err)
	}
	if ph.Status != "in_progress" || ph.StartedAt == nil {
		t.Fatalf("expected started in_progress phase, got %+v", ph)
	}
}

func TestUnknownMaterialRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := login(t, srv, "owner@test.local", "owner-pass")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"client_id":      "missing",
		"kitchen_shape":  "L-shape",
		"budget_bracket": "5-8 lakhs",
		"materials":      []string{"granite"},
	}, bearer(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "material") {
		t.Fatalf("expected material decode error, got %s", string(data))
	}
}

func TestPermissionDeniedOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := login(t, srv, "owner@test.local", "owner-pass")
	registerVia(t, srv, token, "worker@test.local", "worker-pass", "worker")
	workerToken, _ := login(t, srv, "worker@test.local", "worker-pass")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/clients", map[string]any{
		"name":  "Blocked",
		"email": "blocked@example.com",
	}, bearer(workerToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "forbidden" {
		t.Fatalf("expected forbidden code, got %q", envelope.Error.Code)
	}
	if envelope.Error.Details["permission"] != "canManageClients" {
		t.Fatalf("expected canManageClients detail, got %v", envelope.Error.Details)
	}
}

func TestStaleAssignmentConflictOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token, _ := login(t, srv, "owner@test.local", "owner-pass")
	designer := registerVia(t, srv, token, "designer@test.local", "designer-pass", "designer")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/clients", map[string]any{
		"name":  "Conflict Client",
		"email": "conflict@example.com",
	}, bearer(token))
	var cl domain.Client
	if err := json.Unmarshal(data, &cl); err != nil {
		t.Fatalf("unmarshal client: %v", err)
	}
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"client_id":      cl.ID,
		"kitchen_shape":  "Island",
		"budget_bracket": "8-10+ lakhs",
	}, bearer(token))
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/phases", nil, bearer(token))
	var phases []domain.Phase
	if err := json.Unmarshal(data, &phases); err != nil {
		t.Fatalf("unmarshal phases: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/phases/"+phases[0].ID+"/assign", map[string]any{
		"assignee_id":         designer.ID,
		"expected_updated_at": "2000-01-01T00:00:00Z",
	}, bearer(token))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
}

func TestIneligibleAssigneeOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token, _ := login(t, srv, "owner@test.local", "owner-pass")
	sales := registerVia(t, srv, token, "sales@test.local", "sales-pass", "sales")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/clients", map[string]any{
		"name":  "Any Client",
		"email": "any@example.com",
	}, bearer(token))
	var cl domain.Client
	if err := json.Unmarshal(data, &cl); err != nil {
		t.Fatalf("unmarshal client: %v", err)
	}
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"client_id":      cl.ID,
		"kitchen_shape":  "Straight",
		"budget_bracket": "3-5 lakhs",
	}, bearer(token))
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/phases", nil, bearer(token))
	var phases []domain.Phase
	if err := json.Unmarshal(data, &phases); err != nil {
		t.Fatalf("unmarshal phases: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/phases/"+phases[0].ID+"/assign", map[string]any{
		"assignee_id": sales.ID,
	}, bearer(token))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestRouteAccessEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := login(t, srv, "owner@test.local", "owner-pass")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me/route-access?path=/admin/register", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("route access status %d: %s", res.StatusCode, string(data))
	}
	var out map[string]bool
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal route access: %v", err)
	}
	if !out["allowed"] {
		t.Fatal("owner should reach /admin/register")
	}

	registerVia(t, srv, token, "worker2@test.local", "worker-pass", "worker")
	workerToken, _ := login(t, srv, "worker2@test.local", "worker-pass")
	_, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me/route-access?path=/admin/register", nil, bearer(workerToken))
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal route access: %v", err)
	}
	if out["allowed"] {
		t.Fatal("worker should not reach /admin/register")
	}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}
