package files

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":             "report.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\x\budget.xlsx`: "budget.xlsx",
		"nested/dir/notes.txt":   "notes.txt",
		"..":                     "",
		".":                      "",
		"  spaced name.doc":      "  spaced name.doc",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveOpenRemove(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, t.TempDir())

	stored, n, err := store.Save("notes.txt", bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	if !strings.HasSuffix(stored, "_notes.txt") {
		t.Fatalf("expected uuid prefix, got %q", stored)
	}

	f, err := store.Open(stored)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.Close()

	if err := store.Remove(stored); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// removing twice is fine
	if err := store.Remove(stored); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, _, err := store.Save("..", bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected invalid filename error")
	}
}

func TestRenameByPattern(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"IMG_001.jpg", "IMG_002.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	n, err := RenameByPattern(dir, `^IMG_`, "vacation_")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 renames, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "vacation_001.jpg")); err != nil {
		t.Fatalf("expected renamed file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("expected unmatched file untouched: %v", err)
	}
	if _, err := RenameByPattern(dir, `[`, "x"); err == nil {
		t.Fatalf("expected bad pattern error")
	}
}

func TestOrganizeByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.PDF", "c.txt", "README"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	n, err := OrganizeByExtension(dir)
	if err != nil {
		t.Fatalf("organize: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 moves, got %d", n)
	}
	for _, path := range []string{"pdf/a.pdf", "pdf/b.PDF", "txt/c.txt", "misc/README"} {
		if _, err := os.Stat(filepath.Join(dir, path)); err != nil {
			t.Errorf("expected %s: %v", path, err)
		}
	}
}
