// Package api exposes the legal assistant over HTTP: voice queries, RAG
// search, document management, scraping, report generation, web search,
// and OCR.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/config"
	"github.com/aprslabs/sahayak/internal/engine"
	"github.com/aprslabs/sahayak/internal/ocr"
	"github.com/aprslabs/sahayak/internal/retrieval"
	"github.com/aprslabs/sahayak/internal/scraper"
	"github.com/aprslabs/sahayak/internal/storage"
	"github.com/aprslabs/sahayak/internal/voice"
	"github.com/aprslabs/sahayak/internal/websearch"
)

const maxRequestBodySize = 25 << 20 // 25MB; audio and document uploads

// Deps carries everything the handlers need. Optional integrations may be
// nil; their endpoints answer ConfigurationMissing.
type Deps struct {
	Config       *config.Config
	Store        *storage.Store
	Vectors      retrieval.VectorStore
	Retriever    *retrieval.Retriever
	Engine       engine.Engine
	Orchestrator *voice.Orchestrator
	Scraper      *scraper.Scraper
	Search       *websearch.Client
	OCR          *ocr.Client

	// BaseCtx is what background jobs run on, detached from the request so
	// a client disconnect does not cancel a crawl. Defaults to
	// context.Background when nil.
	BaseCtx context.Context
}

func (d Deps) background() context.Context {
	if d.BaseCtx != nil {
		return d.BaseCtx
	}
	return context.Background()
}

// NewRouter builds the chi router with all endpoints mounted.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware)

	// Dev-grade CORS matching the original frontend expectations.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/health", handleHealth)
	r.Post("/api/voice-query", handleVoiceQuery(deps))

	r.Post("/rag", handleRAG(deps))
	r.Post("/search", handleSearch(deps))
	r.Post("/legal-search", handleSearch(deps))
	r.Post("/vectorize", handleVectorize(deps))

	r.Post("/crawl", handleCrawl(deps))
	r.Post("/legal-scrape", handleLegalScrape(deps))

	r.Post("/generate-pdf", handleGeneratePDF(deps))
	r.Post("/download_summary", handleDownloadSummary(deps))
	r.Post("/generate_document", handleDownloadSummary(deps))
	r.Get("/pdf-exports", handleListExports(deps))

	r.Post("/google-search", handleGoogleSearch(deps))
	r.Get("/kavvy-search", handleKavvySearch(deps))
	r.Post("/kavvy-search", handleKavvySearch(deps))

	r.Post("/ocr", handleOCR(deps))

	r.Get("/documents/{doc_type}", handleListDocuments(deps))
	r.Get("/document/{doc_id}", handleGetDocument(deps))
	r.Delete("/document/{doc_id}", handleDeleteDocument(deps))
	r.Post("/upload_documents", handleUploadDocuments(deps))
	r.Post("/upload_audio", handleUploadAudio(deps))

	// Static mounts for generated artifacts.
	if deps.Config != nil {
		mountStatic(r, "/data", deps.Config.Storage.DataDir)
		mountStatic(r, "/audio", deps.Config.AudioDir())
		mountStatic(r, "/pdf", deps.Config.PDFExportDir())
	}

	return r
}

func mountStatic(r chi.Router, prefix, dir string) {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		fs.ServeHTTP(w, req)
	})
}

// slogMiddleware logs one line per request.
func slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// httpError renders the error as a {"detail": ...} body with the status
// mapped from its kind.
func httpError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatusCode(err), map[string]string{"detail": err.Error()})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// invalidInputf builds a 400-mapped error for malformed requests.
func invalidInputf(format string, args ...interface{}) error {
	return apperr.Wrapf(apperr.ErrInvalidInput, format, args...)
}

// httpErrorf renders a free-form error with an explicit status.
func httpErrorf(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}
