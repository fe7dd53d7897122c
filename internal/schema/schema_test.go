package schema

import (
	"reflect"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewPlannerRegistry()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

func TestManifestRegistersPlannerEntities(t *testing.T) {
	reg := testRegistry(t)

	keys := reg.KeysUnderNamespace("planner.")
	want := []string{"planner.comments", "planner.labels", "planner.milestones", "planner.projects", "planner.tasks"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("unexpected planner keys: %v", keys)
	}

	// core.users is registered for FK resolution but lives outside the namespace.
	if _, ok := reg.Describe("core.users"); !ok {
		t.Fatalf("core.users should be registered")
	}
}

func TestValidateSortFieldFallsBackOnUnknownColumn(t *testing.T) {
	reg := testRegistry(t)

	if got := reg.ValidateSortField("planner.tasks", "password_hash", "id"); got != "id" {
		t.Fatalf("expected fallback to id, got %q", got)
	}
	if got := reg.ValidateSortField("planner.tasks", "due_date", "id"); got != "due_date" {
		t.Fatalf("expected due_date accepted, got %q", got)
	}
	if got := reg.ValidateSortField("planner.tasks", "", "id"); got != "id" {
		t.Fatalf("expected empty candidate to fall back, got %q", got)
	}
}

func TestValidateFieldListIntersectsWithSelectable(t *testing.T) {
	reg := testRegistry(t)

	got := reg.ValidateFieldList("planner.tasks", []string{"title", "password_hash", "status"})
	if !reflect.DeepEqual(got, []string{"title", "status"}) {
		t.Fatalf("unexpected field list: %v", got)
	}
}

func TestValidateFieldListEmptyDefaultsToIDPlusSelectable(t *testing.T) {
	reg := testRegistry(t)

	got := reg.ValidateFieldList("planner.labels", nil)
	want := []string{"id", "name", "color", "created_at", "updated_at"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected default field list: %v", got)
	}
}

func TestValidateFilterMapDropsUnknownAndEmpty(t *testing.T) {
	reg := testRegistry(t)

	got := reg.ValidateFilterMap("planner.tasks", map[string]any{
		"status":        "open",
		"priority":      2,
		"password_hash": "x",
		"project_id":    nil,
		"milestone_id":  "  ",
	})
	want := map[string]any{"status": "open", "priority": 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected filter map: %v", got)
	}
}

func TestNavigateURL(t *testing.T) {
	reg := testRegistry(t)

	d, _ := reg.Describe("planner.tasks")
	url, ok := d.NavigateURL(42)
	if !ok || url != "/tasks/42" {
		t.Fatalf("unexpected task url: %q ok=%v", url, ok)
	}

	// Labels deliberately carry no navigation metadata.
	d, _ = reg.Describe("planner.labels")
	if _, ok := d.NavigateURL(1); ok {
		t.Fatalf("labels should have no navigation metadata")
	}
}

func TestSearchFieldPrefersTitleOverName(t *testing.T) {
	reg := testRegistry(t)

	d, _ := reg.Describe("planner.tasks")
	if d.SearchField() != "title" {
		t.Fatalf("tasks should search by title, got %q", d.SearchField())
	}
	d, _ = reg.Describe("planner.projects")
	if d.SearchField() != "name" {
		t.Fatalf("projects should search by name, got %q", d.SearchField())
	}
}
