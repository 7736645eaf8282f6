package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "officedesk.db"

type Config struct {
	Workspace string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".officedesk", defaultDBName)
}

// EnsureWorkspace creates the workspace directory tree if missing,
// including the uploads/ and temp/ subdirectories used by document
// storage and file tasks.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".officedesk")
	for _, dir := range []string{path, filepath.Join(path, "uploads"), filepath.Join(path, "temp")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return path, nil
}

// Open opens the SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// UploadsDir returns the document storage directory for the workspace.
func UploadsDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".officedesk", "uploads")
}

// TempDir returns the transient-file directory for the workspace.
func TempDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".officedesk", "temp")
}
