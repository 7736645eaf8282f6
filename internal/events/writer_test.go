package events_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"officedesk/internal/events"
)

func openEventsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		type TEXT NOT NULL,
		project_id TEXT,
		entity_kind TEXT NOT NULL,
		entity_id TEXT,
		actor_id TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '{}'
	)`)
	if err != nil {
		t.Fatalf("create events table: %v", err)
	}
	return db
}

func TestAppendUsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	db := openEventsDB(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := events.Writer{DB: db, Now: func() time.Time { return fixed }}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Append(ctx, tx, "task.created", "", "task", "t1", "tester", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var ts, payload string
	var projectID sql.NullString
	err = db.QueryRow(`SELECT ts, project_id, payload_json FROM events`).Scan(&ts, &projectID, &payload)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if want := fixed.Format(time.RFC3339); ts != want {
		t.Fatalf("ts = %q, want %q", ts, want)
	}
	if projectID.Valid {
		t.Fatalf("project_id = %q, want NULL", projectID.String)
	}
	if payload != "{}" {
		t.Fatalf("payload = %q, want empty object", payload)
	}
}

func TestAppendMarshalsPayload(t *testing.T) {
	ctx := context.Background()
	db := openEventsDB(t)
	w := events.Writer{DB: db}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = w.Append(ctx, tx, "task.completed", "p1", "task", "t1", "tester",
		events.EventPayload{"result": "done"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var projectID, payload string
	err = db.QueryRow(`SELECT project_id, payload_json FROM events`).Scan(&projectID, &payload)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if projectID != "p1" {
		t.Fatalf("project_id = %q, want p1", projectID)
	}
	if payload != `{"result":"done"}` {
		t.Fatalf("payload = %q", payload)
	}
}
