package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"siteline/internal/config"
	"siteline/internal/db"
	"siteline/internal/engine"
	"siteline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			TokenTTL:               time.Hour,
		},
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
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
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

func asOwner(extra map[string]string) map[string]string {
	headers := map[string]string{"X-Actor-Id": "tester"}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func createTestProject(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name": "riverside tower",
	}, asOwner(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p.ID
}

func createTestTimeline(t *testing.T, srv *testServer, projectID string) engine.TimelineView {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/timelines", map[string]any{
		"name": "baseline",
		"tasks": []map[string]any{
			{"name": "groundwork", "start_date": "2024-03-04T00:00:00Z", "end_date": "2024-03-08T00:00:00Z", "cost": 1500.0},
			{"name": "framing", "start_date": "2024-03-04T00:00:00Z", "end_date": "2024-03-08T00:00:00Z"},
		},
	}, asOwner(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create timeline: %d %s", res.StatusCode, string(data))
	}
	var view engine.TimelineView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	return view
}

func TestTimelineLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	projectID := createTestProject(t, srv)
	created := createTestTimeline(t, srv, projectID)
	if len(created.Tasks) != 2 {
		t.Fatalf("created tasks: %d", len(created.Tasks))
	}
	taskID := created.Tasks[0].ID

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/timelines/"+created.ID+"/measurements", map[string]any{
		"task_id":             taskID,
		"progress_percentage": 0.4,
		"measurement_date":    "2024-03-05T00:00:00Z",
	}, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("record measurement: %d %s", res.StatusCode, string(data))
	}
	var after engine.TimelineView
	if err := json.Unmarshal(data, &after); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if after.Tasks[0].ActualProgress != 0.4 {
		t.Fatalf("actual progress: got %v", after.Tasks[0].ActualProgress)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/timelines/latest?date=2024-03-05T00:00:00Z", nil, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("latest: %d %s", res.StatusCode, string(data))
	}
	var latest engine.TimelineView
	if err := json.Unmarshal(data, &latest); err != nil {
		t.Fatalf("unmarshal latest: %v", err)
	}
	if latest.Tasks[0].ActualProgress != 0.4 {
		t.Fatalf("latest actual progress: got %v", latest.Tasks[0].ActualProgress)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/timelines/dashboard", nil, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %s", res.StatusCode, string(data))
	}
	var dash engine.Dashboard
	if err := json.Unmarshal(data, &dash); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if dash.TotalDays == 0 {
		t.Fatal("dashboard has no planned days")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/timelines/history", nil, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}
	var entries []engine.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != taskID {
		t.Fatalf("history entries: %+v", entries)
	}

	deleteURL := srv.URL + "/v0/projects/" + projectID + "/timelines/" + created.ID + "/progress?date=" + url.QueryEscape("2024-03-05T00:00:00Z")
	res, data = doJSON(t, client, http.MethodDelete, deleteURL, nil, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete progress date: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, deleteURL, nil, asOwner(nil))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete should 404: %d %s", res.StatusCode, string(data))
	}
}

func TestCostRedactionByTier(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	projectID := createTestProject(t, srv)
	createTestTimeline(t, srv, projectID)

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+projectID+"/members/worker", map[string]any{
		"permission": "employee",
	}, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add member: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/timelines/latest", nil,
		map[string]string{"X-Actor-Id": "worker"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("latest as employee: %d %s", res.StatusCode, string(data))
	}
	var employeeView engine.TimelineView
	if err := json.Unmarshal(data, &employeeView); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if employeeView.Tasks[0].Cost != nil {
		t.Fatal("employee view must not carry cost")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/timelines/latest", nil, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("latest as owner: %d %s", res.StatusCode, string(data))
	}
	var ownerView engine.TimelineView
	if err := json.Unmarshal(data, &ownerView); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ownerView.Tasks[0].Cost == nil || *ownerView.Tasks[0].Cost != 1500 {
		t.Fatalf("owner view cost: %v", ownerView.Tasks[0].Cost)
	}
}

func TestMutationTierEnforcement(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	projectID := createTestProject(t, srv)
	created := createTestTimeline(t, srv, projectID)

	// Non-members read but cannot mutate.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/timelines", map[string]any{
		"name":  "rogue revision",
		"tasks": []map[string]any{},
	}, map[string]string{"X-Actor-Id": "stranger"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger create: want 403, got %d %s", res.StatusCode, string(data))
	}

	// Admins manage timelines but cannot delete them.
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+projectID+"/members/admin-user", map[string]any{
		"permission": "admin",
	}, asOwner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add admin: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+projectID+"/timelines/"+created.ID, nil,
		map[string]string{"X-Actor-Id": "admin-user"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("admin delete: want 403, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+projectID+"/timelines/"+created.ID, nil, asOwner(nil))
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("owner delete: %d %s", res.StatusCode, string(data))
	}
}

func TestAuthRequiredAndBadDate(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials: want 401, got %d %s", res.StatusCode, string(data))
	}

	projectID := createTestProject(t, srv)
	createTestTimeline(t, srv, projectID)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/timelines/latest?date=not-a-date", nil, asOwner(nil))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad date: want 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"user_id":    "jwt-user",
		"permission": "admin",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if body["token"] == "" {
		t.Fatal("empty token")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name": "jwt project",
	}, map[string]string{"Authorization": "Bearer " + body["token"]})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create with token: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil,
		map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: want 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id":   "svc-reporting",
		"name":       "reporting",
		"permission": "support",
	}, asOwner(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("creation response must include the key secret")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil,
		map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list with api key: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil,
		map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong api key: want 401, got %d %s", res.StatusCode, string(data))
	}
}
