package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"teamtask/tasks/adapters/auth"
	"teamtask/tasks/adapters/rest/handlers"
	"teamtask/tasks/core"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
	db  *flakyDB
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()

	db := newFlakyDB()
	log := discardLogger()
	svc := core.NewService(log, db, plainHasher{})

	tokens, err := auth.NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to init tokens: %v", err)
	}

	mux := http.NewServeMux()
	handler := handlers.Register(mux, log, handlers.Deps{
		Accounts: svc,
		Tasks:    svc,
		History:  svc,
		Tokens:   tokens,
		Pingers:  map[string]core.Pinger{"storage": svc},
	}, 5*time.Second)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &apiClient{t: t, srv: srv, db: db}
}

func (c *apiClient) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	if err != nil {
		c.t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		c.t.Fatalf("%s %s: missing X-Request-ID header", method, path)
	}

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.t.Fatalf("%s %s: invalid json response: %v", method, path, err)
	}
	return resp.StatusCode, out
}

// register returns the new user's id and bearer token.
func (c *apiClient) register(username, role string) (string, string) {
	c.t.Helper()

	code, body := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": "secret1",
		"role":     role,
	})
	if code != http.StatusCreated {
		c.t.Fatalf("register %s: expected 201, got %d (%v)", username, code, body)
	}
	data := body["data"].(map[string]any)
	user := data["user"].(map[string]any)
	return user["id"].(string), data["token"].(string)
}

func expectStatus(t *testing.T, got, want int, body map[string]any) {
	t.Helper()

	if got != want {
		t.Fatalf("expected status %d, got %d (%v)", want, got, body)
	}
}

func TestAPI_Ping(t *testing.T) {
	t.Parallel()

	api := newAPI(t)

	code, body := api.do(http.MethodGet, "/api/ping", "", nil)
	expectStatus(t, code, http.StatusOK, body)
}

func TestAPI_Authentication(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	api.register("alice", "user")

	code, body := api.do(http.MethodGet, "/api/tasks", "", nil)
	expectStatus(t, code, http.StatusUnauthorized, body)
	if body["success"] != false || body["kind"] != core.KindUnauthorized {
		t.Fatalf("unexpected error body: %v", body)
	}

	code, body = api.do(http.MethodGet, "/api/tasks", "not-a-token", nil)
	expectStatus(t, code, http.StatusUnauthorized, body)

	code, body = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong1"})
	expectStatus(t, code, http.StatusUnauthorized, body)

	code, body = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "secret1"})
	expectStatus(t, code, http.StatusOK, body)

	code, body = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "secret1"})
	expectStatus(t, code, http.StatusConflict, body)
}

func TestAPI_ManagerOnlyRoutes(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	aliceID, aliceToken := api.register("alice", "user")

	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/tasks", map[string]string{"title": "t", "assignedUserId": aliceID}},
		{http.MethodGet, "/api/auth/users", nil},
		{http.MethodGet, "/api/history/stats", nil},
		{http.MethodDelete, "/api/history/some-id", nil},
		{http.MethodDelete, "/api/tasks/some-id", nil},
	}

	for _, r := range routes {
		code, body := api.do(r.method, r.path, aliceToken, r.body)
		if code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d (%v)", r.method, r.path, code, body)
		}
	}
}

func TestAPI_TaskLifecycle(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	_, bossToken := api.register("boss", "manager")
	aliceID, aliceToken := api.register("alice", "user")
	_, bobToken := api.register("bob", "user")

	code, body := api.do(http.MethodPost, "/api/tasks", bossToken, map[string]string{
		"title":          "Write report",
		"description":    "quarterly",
		"assignedUserId": aliceID,
	})
	expectStatus(t, code, http.StatusCreated, body)
	if _, ok := body["warning"]; ok {
		t.Fatalf("unexpected warning: %v", body)
	}
	id := body["data"].(map[string]any)["id"].(string)

	code, body = api.do(http.MethodGet, "/api/tasks/"+id, bobToken, nil)
	expectStatus(t, code, http.StatusForbidden, body)

	code, body = api.do(http.MethodPatch, "/api/tasks/"+id, aliceToken, map[string]string{"status": "in_progress"})
	expectStatus(t, code, http.StatusOK, body)
	history := body["history"].([]any)
	if len(history) != 1 || history[0].(map[string]any)["action"] != string(core.ActionStatusChanged) {
		t.Fatalf("expected one status_changed entry, got %v", history)
	}

	code, body = api.do(http.MethodPatch, "/api/tasks/"+id, aliceToken, map[string]string{"status": "archived"})
	expectStatus(t, code, http.StatusBadRequest, body)

	code, body = api.do(http.MethodGet, "/api/history/task/"+id, aliceToken, nil)
	expectStatus(t, code, http.StatusOK, body)
	if body["count"].(float64) != 3 {
		t.Fatalf("expected 3 entries, got %v", body["count"])
	}
	if task := body["task"].(map[string]any); task["status"] != string(core.StatusInProgress) {
		t.Fatalf("unexpected task summary: %v", task)
	}

	code, body = api.do(http.MethodGet, "/api/tasks/search/report", aliceToken, nil)
	expectStatus(t, code, http.StatusOK, body)

	code, body = api.do(http.MethodGet, "/api/tasks/search/report", bobToken, nil)
	expectStatus(t, code, http.StatusNotFound, body)

	code, body = api.do(http.MethodDelete, "/api/tasks/"+id, bossToken, nil)
	expectStatus(t, code, http.StatusOK, body)

	code, body = api.do(http.MethodGet, "/api/tasks/"+id, bossToken, nil)
	expectStatus(t, code, http.StatusNotFound, body)

	code, body = api.do(http.MethodGet, "/api/history?action=deleted", bossToken, nil)
	expectStatus(t, code, http.StatusOK, body)
	if body["count"].(float64) != 1 {
		t.Fatalf("expected one deleted entry, got %v", body["count"])
	}
}

func TestAPI_HistoryQueryParams(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	_, bossToken := api.register("boss", "manager")
	aliceID, _ := api.register("alice", "user")

	code, body := api.do(http.MethodPost, "/api/tasks", bossToken, map[string]string{"title": "A", "assignedUserId": aliceID})
	expectStatus(t, code, http.StatusCreated, body)

	today := time.Now().UTC().Format("2006-01-02")

	code, body = api.do(http.MethodGet, "/api/history?startDate="+today+"&endDate="+today, bossToken, nil)
	expectStatus(t, code, http.StatusOK, body)
	if body["count"].(float64) != 2 {
		t.Fatalf("expected today's 2 entries, got %v", body["count"])
	}

	code, body = api.do(http.MethodGet, "/api/history?limit=1", bossToken, nil)
	expectStatus(t, code, http.StatusOK, body)
	if body["count"].(float64) != 1 {
		t.Fatalf("expected 1 entry, got %v", body["count"])
	}

	bad := []string{
		"/api/history?startDate=yesterday",
		"/api/history?endDate=2024-13-01",
		"/api/history?action=archived",
		"/api/history?limit=-1",
		"/api/history?startDate=2024-02-01&endDate=2024-01-01",
	}
	for _, path := range bad {
		code, body := api.do(http.MethodGet, path, bossToken, nil)
		if code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%v)", path, code, body)
		}
	}
}

func TestAPI_AuditFailureIsReportedAsWarning(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	_, bossToken := api.register("boss", "manager")
	aliceID, aliceToken := api.register("alice", "user")

	code, body := api.do(http.MethodPost, "/api/tasks", bossToken, map[string]string{"title": "A", "assignedUserId": aliceID})
	expectStatus(t, code, http.StatusCreated, body)
	id := body["data"].(map[string]any)["id"].(string)

	api.db.allowEntries(0)

	code, body = api.do(http.MethodPatch, "/api/tasks/"+id, aliceToken, map[string]string{"status": "done"})
	expectStatus(t, code, http.StatusOK, body)
	if _, ok := body["warning"]; !ok {
		t.Fatalf("expected a warning, got %v", body)
	}
	if status := body["data"].(map[string]any)["status"]; status != string(core.StatusDone) {
		t.Fatalf("expected committed status done, got %v", status)
	}
}
