package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/planora/hub/internal/model"
)

const (
	DefaultReminderWindow   = 24 * time.Hour
	DefaultReminderInterval = 5 * time.Minute
)

// ReminderSweeper periodically scans for open tasks whose due date falls
// inside the reminder window (or has already passed) and publishes one
// reminder event per task to the team feed. Tasks are stamped with
// reminded_at so a reminder fires at most once.
type ReminderSweeper struct {
	db       *sql.DB
	feed     *EventFeed
	Window   time.Duration
	Interval time.Duration
}

// NewReminderSweeper creates a ReminderSweeper. db and feed must not be nil.
func NewReminderSweeper(db *sql.DB, feed *EventFeed) *ReminderSweeper {
	return &ReminderSweeper{
		db:       db,
		feed:     feed,
		Window:   DefaultReminderWindow,
		Interval: DefaultReminderInterval,
	}
}

// Start runs the sweeper loop until ctx is cancelled.
// It should be launched as a goroutine.
func (s *ReminderSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Printf("reminder sweeper started (window=%s interval=%s)", s.Window, s.Interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("reminder sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("reminder sweep error: %v", err)
			}
		}
	}
}

// dueTask is a row returned by the sweep query.
type dueTask struct {
	ID     int64
	Title  string
	TeamID int64
}

// Sweep runs one pass: find all tasks due within the window that have
// not been reminded yet, publish events and stamp them.
func (s *ReminderSweeper) Sweep(ctx context.Context) error {
	horizon := time.Now().UTC().Add(s.Window).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, team_id
		FROM tasks
		WHERE due_date IS NOT NULL
		  AND due_date <= ?
		  AND status NOT IN ('done', 'cancelled')
		  AND reminded_at IS NULL
		  AND deleted_at IS NULL`,
		horizon)
	if err != nil {
		return fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()

	var due []dueTask
	for rows.Next() {
		var d dueTask
		if err := rows.Scan(&d.ID, &d.Title, &d.TeamID); err != nil {
			return fmt.Errorf("scan due task: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range due {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET reminded_at = ? WHERE id = ? AND reminded_at IS NULL`,
			now, d.ID); err != nil {
			return fmt.Errorf("stamp task %d: %w", d.ID, err)
		}
		s.feed.Publish(d.TeamID, &model.ChangeEvent{
			Ts:     now,
			Entity: "planner.tasks",
			Action: "reminder",
			ID:     d.ID,
			Label:  d.Title,
		})
		log.Printf("reminder published for task %d (%s)", d.ID, d.Title)
	}
	return nil
}
