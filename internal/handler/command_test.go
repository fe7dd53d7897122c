package handler_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/planora/hub/internal/config"
	"github.com/planora/hub/internal/db"
	"github.com/planora/hub/internal/router"
	"github.com/planora/hub/internal/schema"
)

// setupServer migrates an in-memory database and mounts the full router,
// so the whole bootstrap → login → command flow runs as a client sees it.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	// A pooled :memory: connection would open a second, empty database.
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(sqlDB, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg, err := schema.NewPlannerRegistry()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	cfg := &config.Config{TokenExpiryHours: 24}
	srv := httptest.NewServer(router.New(cfg, sqlDB, reg, nil))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, body any) map[string]any {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		t.Fatalf("post %s returned %d", url, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCommandEndpointEndToEnd(t *testing.T) {
	srv := setupServer(t)

	postJSON(t, srv.URL+"/v1/auth/bootstrap/admin", "", map[string]any{
		"email":        "admin@local",
		"password":     "hunter22",
		"display_name": "Admin",
	})
	login := postJSON(t, srv.URL+"/v1/auth/login", "", map[string]any{
		"email":    "admin@local",
		"password": "hunter22",
	})
	token, _ := login["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", login)
	}

	created := postJSON(t, srv.URL+"/v1/command", token, map[string]any{
		"verb": "create",
		"slots": map[string]any{
			"model": "planner.projects",
			"data":  map[string]any{"name": "Apollo"},
		},
	})
	if created["ok"] != true {
		t.Fatalf("create failed: %v", created)
	}
	if created["navigate"] != "/projects/1" {
		t.Fatalf("expected navigation url, got %v", created["navigate"])
	}

	queried := postJSON(t, srv.URL+"/v1/command", token, map[string]any{
		"verb": "query",
		"slots": map[string]any{
			"model": "planner.projects",
			"q":     "apo",
		},
	})
	items := queried["data"].(map[string]any)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 project, got %v", queried)
	}

	// Unconfirmed update must round-trip the confirmation protocol.
	pending := postJSON(t, srv.URL+"/v1/command", token, map[string]any{
		"verb": "update",
		"slots": map[string]any{
			"model": "planner.projects",
			"id":    1,
			"data":  map[string]any{"name": "Apollo 11"},
		},
	})
	if pending["ok"] != false || pending["confirmRequired"] != true {
		t.Fatalf("expected confirmation gate, got %v", pending)
	}
	confirmed := postJSON(t, srv.URL+"/v1/command", token, map[string]any{
		"verb": "update",
		"slots": map[string]any{
			"model":     "planner.projects",
			"id":        1,
			"data":      map[string]any{"name": "Apollo 11"},
			"confirmed": true,
		},
	})
	if confirmed["ok"] != true {
		t.Fatalf("confirmed update failed: %v", confirmed)
	}
}

func TestCommandEndpointRequiresAuth(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Post(srv.URL+"/v1/command", "application/json",
		bytes.NewReader([]byte(`{"verb":"query","slots":{}}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
