package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/planora/hub/internal/service"
)

// setupReminderDB creates an in-memory SQLite DB with the minimal schema
// needed to test the reminder sweep.
func setupReminderDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
CREATE TABLE tasks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    title        TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'open',
    due_date     TEXT,
    team_id      INTEGER NOT NULL,
    reminded_at  TEXT,
    deleted_at   TEXT
);
`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func TestReminderSweepPublishesOnceForDueTasks(t *testing.T) {
	db := setupReminderDB(t)
	feed := service.NewEventFeed()
	sweeper := service.NewReminderSweeper(db, feed)

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	nextMonth := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
	if _, err := db.Exec(`INSERT INTO tasks(title, status, due_date, team_id) VALUES
		('Overdue task', 'open', ?, 1),
		('Far-future task', 'open', ?, 1),
		('Finished task', 'done', ?, 1),
		('Other-team task', 'open', ?, 2)`,
		yesterday, nextMonth, yesterday, yesterday); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	team1 := feed.RecentEvents(1, 0)
	if len(team1) != 1 {
		t.Fatalf("expected 1 reminder for team 1, got %d", len(team1))
	}
	if team1[0].Action != "reminder" || team1[0].Label != "Overdue task" {
		t.Fatalf("unexpected event: %+v", team1[0])
	}
	if len(feed.RecentEvents(2, 0)) != 1 {
		t.Fatalf("expected other team's reminder on its own feed")
	}

	// Second sweep must not re-publish: tasks are stamped.
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(feed.RecentEvents(1, 0)) != 1 {
		t.Fatalf("reminder fired twice")
	}
}

func TestReminderSweepSkipsSoftDeletedTasks(t *testing.T) {
	db := setupReminderDB(t)
	feed := service.NewEventFeed()
	sweeper := service.NewReminderSweeper(db, feed)

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if _, err := db.Exec(`INSERT INTO tasks(title, status, due_date, team_id, deleted_at)
		VALUES ('Ghost task', 'open', ?, 1, datetime('now'))`, yesterday); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if events := feed.RecentEvents(1, 0); len(events) != 0 {
		t.Fatalf("soft-deleted task produced a reminder: %+v", events)
	}
}
