package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const disclaimer = "DISCLAIMER: This document is generated for informational purposes only " +
	"and does not constitute legal advice. Consult a qualified advocate before acting on its contents."

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileName builds the export file name for a client summary.
func FileName(clientName string, now time.Time) string {
	client := unsafeFileChars.ReplaceAllString(strings.TrimSpace(clientName), "_")
	if client == "" {
		client = "client"
	}
	return fmt.Sprintf("legal_summary_%s_%s.pdf", client, now.Format("20060102_150405"))
}

// RenderPDF writes the summary as a PDF into exportDir and returns the
// full path of the written file.
func RenderPDF(s *Summary, exportDir string, now time.Time) (string, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(0, 12, "Case Summary Document", "", 1, "C", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	doc.CellFormat(0, 6, "Date: "+now.Format("02 January 2006"), "", 1, "C", false, 0, "")
	if s.ClientName != "" {
		doc.CellFormat(0, 6, "Client: "+s.ClientName, "", 1, "C", false, 0, "")
	}
	doc.Ln(6)

	for _, heading := range sectionHeadings {
		text, ok := s.Sections[heading]
		if !ok {
			continue
		}
		doc.SetFont("Helvetica", "B", 12)
		doc.CellFormat(0, 8, heading, "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.MultiCell(0, 5, sanitize(text), "", "L", false)
		doc.Ln(4)
	}

	doc.Ln(4)
	doc.SetFont("Helvetica", "I", 8)
	doc.MultiCell(0, 4, disclaimer, "", "L", false)

	path := filepath.Join(exportDir, FileName(s.ClientName, now))
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("writing pdf: %w", err)
	}
	return path, nil
}

// sanitize strips markdown emphasis and characters outside fpdf's default
// cp1252 encoding so the built-in fonts render cleanly.
func sanitize(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")
	var b strings.Builder
	for _, r := range text {
		if r < 256 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}
