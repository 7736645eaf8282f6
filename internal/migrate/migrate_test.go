package migrate

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(db); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version < 1 {
		t.Fatalf("schema_version = %d, want at least 1", version)
	}
	for _, table := range []string{"projects", "tasks", "documents", "events", "webhook_cursor"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0001_init.sql")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}
	for _, name := range []string{"init.sql", "x_init.sql"} {
		if _, err := parseVersion(name); err == nil {
			t.Fatalf("parseVersion(%q) accepted a bad name", name)
		}
	}
}
