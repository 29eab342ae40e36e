// Package sqlite provides the SQLite-backed session journal for shapeq.
// The default database lives in memory and is gone when the process exits.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/shapeq/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultHistoryLimit is used when History is called with limit <= 0.
const DefaultHistoryLimit = 100

// DB wraps a single SQLite connection with migrations.
type DB struct {
	db *sql.DB
}

// TaskEvent is one journal row: a scheduler event as it was observed.
type TaskEvent struct {
	ID        int64     `json:"id"`
	Session   string    `json:"session"`
	Scheduler string    `json:"scheduler"`
	TaskID    string    `json:"task_id"`
	Kind      string    `json:"kind"`
	Event     string    `json:"event"`
	Label     string    `json:"label"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Open opens the journal at path. An empty path or MemoryPath gives an
// in-memory database.
func Open(path string) (*DB, error) {
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS task_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			session   TEXT NOT NULL,
			scheduler TEXT NOT NULL,
			task_id   TEXT NOT NULL,
			kind      TEXT NOT NULL,
			event     TEXT NOT NULL,
			label     TEXT NOT NULL DEFAULT '',
			error     TEXT NOT NULL DEFAULT '',
			at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_scheduler ON task_events(scheduler, id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Journal ────────────────────────────────────────────────────────────────

// Append stores one event row for session.
func (d *DB) Append(ctx context.Context, session string, ev domain.Event) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO task_events (session, scheduler, task_id, kind, event, label, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session, ev.Scheduler, ev.Task.ID, string(ev.Task.Kind), string(ev.Type),
		ev.Task.Label, ev.Error, ev.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append %s event for %s: %w", ev.Type, ev.Task.ID, err)
	}
	return nil
}

// History returns up to limit rows for scheduler, newest first. An empty
// scheduler matches every scheduler.
func (d *DB) History(ctx context.Context, scheduler string, limit int) ([]TaskEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, session, scheduler, task_id, kind, event, label, error, at
		 FROM task_events
		 WHERE ? = '' OR scheduler = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		scheduler, scheduler, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []TaskEvent{}
	for rows.Next() {
		var e TaskEvent
		var at int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Scheduler, &e.TaskID,
			&e.Kind, &e.Event, &e.Label, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TaskTrail returns every row for one task in the order it was written.
func (d *DB) TaskTrail(ctx context.Context, taskID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT event FROM task_events WHERE task_id = ? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query trail: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ev string
		if err := rows.Scan(&ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count returns the number of rows recorded for scheduler.
func (d *DB) Count(ctx context.Context, scheduler string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_events WHERE scheduler = ?`, scheduler).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
