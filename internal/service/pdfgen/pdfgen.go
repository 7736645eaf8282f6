package pdfgen

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Report describes a simple titled report document.
type Report struct {
	Title string
	Lines []string
}

// Write renders the report as an A4 PDF into dir and returns the path.
func Write(dir string, r Report) (string, error) {
	if strings.TrimSpace(r.Title) == "" {
		return "", fmt.Errorf("report title required")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, r.Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range r.Lines {
		pdf.MultiCell(0, 6, line, "", "L", false)
	}
	name := slug(r.Title) + ".pdf"
	path := filepath.Join(dir, name)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

func slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "report"
	}
	return b.String()
}
