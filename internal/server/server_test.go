package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"sprintline/internal/config"
	"sprintline/internal/db"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/migrate"
)

type testServer struct {
	URL    string
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
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: cfg.Auth.JWTSecret}})
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

// registerAccount signs up a fresh user with their own org and returns
// the auth headers every scoped endpoint needs.
func registerAccount(t *testing.T, srv *testServer, name, email, orgName string) (map[string]string, AuthResponse) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"name":     name,
		"email":    email,
		"password": "secret1",
		"org_name": orgName,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if auth.Token == "" || len(auth.Orgs) != 1 {
		t.Fatalf("unexpected auth response: %s", string(data))
	}
	headers := map[string]string{
		"Authorization": "Bearer " + auth.Token,
		"X-Org-Id":      auth.Orgs[0].ID,
	}
	return headers, auth
}

func TestRegisterAndLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, auth := registerAccount(t, srv, "Ada", "ada@example.com", "Acme")
	if auth.User.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", auth.User)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "secret1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}

	bad, badBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "wrong",
	}, nil)
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", bad.StatusCode, string(badBody))
	}
}

func TestScopedEndpointsRequireAuthAndOrg(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers, _ := registerAccount(t, srv, "Ada", "ada@example.com", "Acme")

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}

	noOrg := map[string]string{"Authorization": headers["Authorization"]}
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, noOrg)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-Org-Id, got %d %s", res.StatusCode, string(body))
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers, _ := registerAccount(t, srv, "Ada", "ada@example.com", "Acme")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":  "Ship feature",
		"points": 5,
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.SprintIndex < 1 {
		t.Fatalf("expected sprint index >= 1, got %d", created.SprintIndex)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID, map[string]any{
		"status": "done",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.Task
	_ = json.Unmarshal(data, &updated)
	if updated.Status != domain.StatusDone || updated.CompletedAt == nil {
		t.Fatalf("expected done task with completed_at, got %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+created.ID+"/time", map[string]any{
		"duration_seconds": 900,
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("log time status %d: %s", res.StatusCode, string(data))
	}
	var logged LogTimeResponse
	if err := json.Unmarshal(data, &logged); err != nil {
		t.Fatalf("unmarshal log response: %v", err)
	}
	if logged.TimeSpentSeconds != 900 {
		t.Fatalf("expected total 900, got %d", logged.TimeSpentSeconds)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedTasks
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].TimeSpentSeconds != 900 {
		t.Fatalf("unexpected list: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+created.ID, nil, headers)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID, nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d %s", res.StatusCode, string(data))
	}
}

func TestCrossOrgTaskHidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	adaHeaders, _ := registerAccount(t, srv, "Ada", "ada@example.com", "Acme")
	graceHeaders, _ := registerAccount(t, srv, "Grace", "grace@example.com", "Globex")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "Acme internal",
	}, adaHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	_ = json.Unmarshal(data, &created)

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID, nil, graceHeaders)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign org, got %d %s", res.StatusCode, string(body))
	}
}

func TestAnalyticsAndSprints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers, _ := registerAccount(t, srv, "Ada", "ada@example.com", "Acme")
	client := srv.Client()

	for _, status := range []string{"todo", "done", "in_progress"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
			"title":  "Task " + status,
			"status": status,
			"points": 3,
		}, headers)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", status, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/analytics/stats", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, string(data))
	}
	var snap engine.SnapshotStats
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if snap.TotalTasks != 3 || snap.CompletedTasks != 1 || snap.PendingTasks != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.SprintIndex < 1 {
		t.Fatalf("expected sprint index >= 1, got %d", snap.SprintIndex)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/analytics/distribution", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("distribution status %d: %s", res.StatusCode, string(data))
	}
	var dist []AggregateResponse
	if err := json.Unmarshal(data, &dist); err != nil {
		t.Fatalf("unmarshal distribution: %v", err)
	}
	if len(dist) != 1 || dist[0].Label != "Unassigned" || dist[0].TaskCount != 3 {
		t.Fatalf("unexpected distribution: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/analytics/timeline", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
	var tl engine.Timeline
	if err := json.Unmarshal(data, &tl); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	if len(tl.Minutes) != 7 {
		t.Fatalf("expected 7 weekday buckets, got %d", len(tl.Minutes))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/current", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("current sprint status %d: %s", res.StatusCode, string(data))
	}
	var cur engine.SprintInfo
	if err := json.Unmarshal(data, &cur); err != nil {
		t.Fatalf("unmarshal sprint: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/1", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sprint by index status %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsFeed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers, _ := registerAccount(t, srv, "Ada", "ada@example.com", "Acme")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title": "Emit events",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=task.created", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "task.created" {
		t.Fatalf("unexpected events: %s", string(data))
	}
}
