package files

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Store writes uploaded documents under the uploads directory with
// uuid-prefixed names so originals with the same filename never collide.
type Store struct {
	UploadsDir string
	TempDir    string
}

func NewStore(uploadsDir, tempDir string) *Store {
	return &Store{UploadsDir: uploadsDir, TempDir: tempDir}
}

// SanitizeFilename strips path separators and keeps only the base name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

// Save streams content to a new stored file and returns the stored name.
func (s *Store) Save(filename string, content io.Reader) (string, int64, error) {
	clean := SanitizeFilename(filename)
	if clean == "" {
		return "", 0, fmt.Errorf("invalid filename %q", filename)
	}
	storedName := uuid.NewString() + "_" + clean
	path := filepath.Join(s.UploadsDir, storedName)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return storedName, n, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(storedName string) (*os.File, error) {
	return os.Open(filepath.Join(s.UploadsDir, storedName))
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Store) Remove(storedName string) error {
	err := os.Remove(filepath.Join(s.UploadsDir, storedName))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ConvertExcelToCSV reads the first sheet of an xlsx file and writes
// it as CSV into the temp directory, returning the output path.
func (s *Store) ConvertExcelToCSV(xlsxPath string) (string, error) {
	wb, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	base := strings.TrimSuffix(filepath.Base(xlsxPath), filepath.Ext(xlsxPath))
	outPath := filepath.Join(s.TempDir, base+".csv")
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(out)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			out.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}

// RenameByPattern renames every file in dir whose name matches the
// regexp pattern, applying the replacement. Returns the renamed count.
func RenameByPattern(dir, pattern, replacement string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("bad pattern: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !re.MatchString(name) {
			continue
		}
		newName := re.ReplaceAllString(name, replacement)
		if newName == name || newName == "" {
			continue
		}
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, newName)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// OrganizeByExtension moves files in dir into per-extension
// subdirectories (misc/ for files with no extension). Returns the
// moved count.
func OrganizeByExtension(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(e.Name())), ".")
		if ext == "" {
			ext = "misc"
		}
		sub := filepath.Join(dir, ext)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return count, err
		}
		if err := os.Rename(filepath.Join(dir, e.Name()), filepath.Join(sub, e.Name())); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
