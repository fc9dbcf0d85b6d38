package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aprslabs/sahayak/internal/report"
	"github.com/aprslabs/sahayak/internal/storage"
)

type generatePDFRequest struct {
	Conversation string            `json:"conversation"`
	Messages     []messageEntry    `json:"messages"`
	ClientInfo   map[string]string `json:"client_info"`
}

type messageEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildSummary runs the shared body of the PDF endpoints: parse, ask the
// model for the structured summary, render the file, record it.
func buildSummary(deps Deps, r *http.Request) (string, error) {
	var req generatePDFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", invalidInputf("invalid request body: %v", err)
	}

	caseText := strings.TrimSpace(req.Conversation)
	if caseText == "" && len(req.Messages) > 0 {
		var b strings.Builder
		for _, m := range req.Messages {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		caseText = b.String()
	}
	if caseText == "" {
		return "", invalidInputf("conversation or messages is required")
	}

	clientName := req.ClientInfo["name"]

	summary, err := report.Summarize(r.Context(), deps.Engine, clientName, caseText)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	path, err := report.RenderPDF(summary, deps.Config.PDFExportDir(), now)
	if err != nil {
		return "", err
	}

	rec := storage.Report{
		ID:         uuid.New().String(),
		ClientName: clientName,
		FileName:   filepath.Base(path),
		CreatedAt:  now,
	}
	if err := deps.Store.SaveReport(rec); err != nil {
		return "", err
	}
	return path, nil
}

// handleGeneratePDF returns the generated summary as a binary download.
func handleGeneratePDF(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := buildSummary(deps, r)
		if err != nil {
			httpError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
		http.ServeFile(w, r, path)
	}
}

// handleDownloadSummary returns the generated summary base64-encoded, for
// clients that embed the PDF instead of downloading it.
func handleDownloadSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := buildSummary(deps, r)
		if err != nil {
			httpError(w, err)
			return
		}

		data, err := os.ReadFile(path)
		if err != nil {
			httpErrorf(w, http.StatusInternalServerError, "reading generated pdf: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"file_name": filepath.Base(path),
			"pdf":       base64.StdEncoding.EncodeToString(data),
		})
	}
}

// handleListExports lists previously generated reports.
func handleListExports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		reports, err := deps.Store.ListReports(limit)
		if err != nil {
			httpErrorf(w, http.StatusInternalServerError, "listing reports: %v", err)
			return
		}
		if reports == nil {
			reports = []storage.Report{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"exports": reports})
	}
}
