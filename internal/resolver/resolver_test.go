package resolver

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	_ "github.com/mattn/go-sqlite3"

	"github.com/planora/hub/internal/schema"
)

func setupResolverTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ddl := `
CREATE TABLE projects (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  team_id INTEGER NOT NULL,
  deleted_at TEXT
);
CREATE TABLE users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  display_name TEXT NOT NULL,
  email TEXT NOT NULL
);
INSERT INTO projects(name, team_id) VALUES
  ('Website Relaunch', 1),
  ('Website Redesign', 1),
  ('Mobile App', 1),
  ('Mobile App', 2);
INSERT INTO users(display_name, email) VALUES
  ('Ada Lovelace', 'ada@example.com'),
  ('Grace Hopper', 'grace@example.com');
`
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func testResolver(t *testing.T, db *sql.DB, cache *Cache) *Resolver {
	t.Helper()
	reg, err := schema.NewPlannerRegistry()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return New(db, reg, cache)
}

func TestCoerceRewritesUniqueProjectName(t *testing.T) {
	db := setupResolverTestDB(t)
	r := testResolver(t, db, nil)
	actor := schema.ActingContext{UserID: 1, TeamID: 1}

	res, err := r.Coerce(context.Background(), actor, "planner.tasks", map[string]any{
		"title":      "ship it",
		"project_id": "Website Relaunch",
	})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if res.NeedResolve {
		t.Fatalf("unexpected need_resolve: %s", res.Message)
	}
	if res.Data["project_id"] != int64(1) {
		t.Fatalf("expected project_id rewritten to 1, got %v", res.Data["project_id"])
	}
	if res.Data["title"] != "ship it" {
		t.Fatalf("non-reference fields must pass through unchanged")
	}
}

func TestCoerceAmbiguousReferenceReturnsChoices(t *testing.T) {
	db := setupResolverTestDB(t)
	r := testResolver(t, db, nil)
	actor := schema.ActingContext{UserID: 1, TeamID: 1}

	res, err := r.Coerce(context.Background(), actor, "planner.tasks", map[string]any{
		"project_id": "Website",
	})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if !res.NeedResolve {
		t.Fatalf("expected need_resolve for ambiguous reference")
	}
	if len(res.Choices) != 2 {
		t.Fatalf("expected 2 choices, got %d", len(res.Choices))
	}
}

func TestCoerceUnknownReferenceSignalsWithoutChoices(t *testing.T) {
	db := setupResolverTestDB(t)
	r := testResolver(t, db, nil)
	actor := schema.ActingContext{UserID: 1, TeamID: 1}

	res, err := r.Coerce(context.Background(), actor, "planner.tasks", map[string]any{
		"project_id": "No Such Project",
	})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if !res.NeedResolve || len(res.Choices) != 0 {
		t.Fatalf("expected need_resolve with no choices, got %+v", res)
	}
}

func TestCoerceIsTenantScoped(t *testing.T) {
	db := setupResolverTestDB(t)
	r := testResolver(t, db, nil)

	// Team 2 sees exactly one "Mobile App" even though two rows share the name.
	res, err := r.Coerce(context.Background(), schema.ActingContext{UserID: 1, TeamID: 2},
		"planner.tasks", map[string]any{"project_id": "Mobile App"})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if res.NeedResolve {
		t.Fatalf("expected unique match within tenant, got %s", res.Message)
	}
	if res.Data["project_id"] != int64(4) {
		t.Fatalf("expected team-2 project id 4, got %v", res.Data["project_id"])
	}
}

func TestCoerceMatchesUsersByEmailAltLabel(t *testing.T) {
	db := setupResolverTestDB(t)
	r := testResolver(t, db, nil)
	actor := schema.ActingContext{UserID: 1, TeamID: 1}

	res, err := r.Coerce(context.Background(), actor, "planner.tasks", map[string]any{
		"in_charge_id": "grace@example.com",
	})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if res.NeedResolve {
		t.Fatalf("expected email to resolve, got %s", res.Message)
	}
	if res.Data["in_charge_id"] != int64(2) {
		t.Fatalf("expected in_charge_id 2, got %v", res.Data["in_charge_id"])
	}
}

func TestCoerceLeavesNumericValuesAlone(t *testing.T) {
	db := setupResolverTestDB(t)
	r := testResolver(t, db, nil)
	actor := schema.ActingContext{UserID: 1, TeamID: 1}

	res, err := r.Coerce(context.Background(), actor, "planner.tasks", map[string]any{
		"project_id": float64(3), // JSON numbers decode as float64
	})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if res.Data["project_id"] != float64(3) {
		t.Fatalf("numeric ids must pass through, got %v", res.Data["project_id"])
	}
}

func TestCacheServesSecondLookupAndInvalidates(t *testing.T) {
	db := setupResolverTestDB(t)

	mr := miniredis.RunT(t)
	cache := NewCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	r := testResolver(t, db, cache)
	actor := schema.ActingContext{UserID: 1, TeamID: 1}
	ctx := context.Background()

	res, err := r.Coerce(ctx, actor, "planner.tasks", map[string]any{"project_id": "Mobile App"})
	if err != nil || res.NeedResolve {
		t.Fatalf("first coerce: err=%v res=%+v", err, res)
	}

	// Row gone from the DB, cache still answers.
	if _, err := db.Exec(`DELETE FROM projects WHERE id = 3`); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	res, err = r.Coerce(ctx, actor, "planner.tasks", map[string]any{"project_id": "Mobile App"})
	if err != nil || res.NeedResolve {
		t.Fatalf("cached coerce: err=%v res=%+v", err, res)
	}
	if res.Data["project_id"] != int64(3) {
		t.Fatalf("expected cached id 3, got %v", res.Data["project_id"])
	}

	// Invalidation bumps the generation, so the stale entry is skipped.
	r.Invalidate(ctx, "planner.projects", 1)
	res, err = r.Coerce(ctx, actor, "planner.tasks", map[string]any{"project_id": "Mobile App"})
	if err != nil {
		t.Fatalf("post-invalidate coerce: %v", err)
	}
	if !res.NeedResolve {
		t.Fatalf("expected not-found after invalidation, got %+v", res)
	}
}
