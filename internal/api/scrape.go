package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aprslabs/sahayak/internal/storage"
)

// crawlTimeout bounds one background crawl run.
const crawlTimeout = 5 * time.Minute

// legal sites queried by keyword scrapes, in priority order.
var legalSearchURLs = []string{
	"https://indiankanoon.org/search/?formInput=%s",
	"https://www.latestlaws.com/?s=%s",
}

type crawlRequest struct {
	URLs     []string `json:"urls"`
	Query    string   `json:"query"`
	MaxPages int      `json:"max_pages"`
}

// handleCrawl launches a background crawl of the given URLs (or the legal
// sites' search pages for a query) and returns immediately.
func handleCrawl(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req crawlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, invalidInputf("invalid request body: %v", err))
			return
		}

		for _, raw := range req.URLs {
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				httpError(w, invalidInputf("invalid url %q", raw))
				return
			}
		}
		seeds := req.URLs
		if len(seeds) == 0 && req.Query != "" {
			seeds = keywordSeeds(req.Query)
		}
		if len(seeds) == 0 {
			httpError(w, invalidInputf("either urls or query is required"))
			return
		}

		jobID := uuid.New().String()
		go runCrawl(deps, jobID, seeds, req.MaxPages, "case_law")

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id": jobID,
			"status": "started",
			"seeds":  len(seeds),
		})
	}
}

type legalScrapeRequest struct {
	Keywords []string `json:"keywords"`
	MaxPages int      `json:"max_pages"`
}

// handleLegalScrape runs keyword searches across the known legal sites in
// the background, storing whatever documents the crawl extracts.
func handleLegalScrape(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req legalScrapeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, invalidInputf("invalid request body: %v", err))
			return
		}
		if len(req.Keywords) == 0 {
			httpError(w, invalidInputf("keywords are required"))
			return
		}

		var seeds []string
		for _, kw := range req.Keywords {
			seeds = append(seeds, keywordSeeds(kw)...)
		}

		jobID := uuid.New().String()
		go runCrawl(deps, jobID, seeds, req.MaxPages, "legal_scrape")

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id":   jobID,
			"status":   "started",
			"keywords": req.Keywords,
		})
	}
}

func keywordSeeds(keyword string) []string {
	escaped := url.QueryEscape(strings.TrimSpace(keyword))
	seeds := make([]string, 0, len(legalSearchURLs))
	for _, pattern := range legalSearchURLs {
		seeds = append(seeds, fmt.Sprintf(pattern, escaped))
	}
	return seeds
}

// runCrawl is the background body of both crawl endpoints: fetch, store,
// enqueue vectorize jobs. Failures are logged, never surfaced to the
// request that started the crawl.
func runCrawl(deps Deps, jobID string, seeds []string, maxPages int, docType string) {
	ctx, cancel := context.WithTimeout(deps.background(), crawlTimeout)
	defer cancel()

	logger := slog.Default().With("component", "crawl", "job_id", jobID)
	stored := 0

	for _, seed := range seeds {
		result, err := deps.Scraper.Crawl(ctx, seed, maxPages)
		if err != nil || result == nil {
			logger.Warn("crawl failed", "seed", seed, "error", err)
			continue
		}
		for _, page := range result.Pages {
			if page.Content == "" {
				continue
			}
			doc := storage.Document{
				ID:        uuid.New().String(),
				Title:     page.Title,
				Content:   page.Content,
				Source:    page.URL,
				DocType:   docType,
				Tags:      "[]",
				CreatedAt: time.Now().UTC(),
				VectorIDs: "[]",
			}
			if doc.Title == "" {
				doc.Title = page.URL
			}
			if err := deps.Store.SaveDocument(doc); err != nil {
				logger.Warn("storing scraped page failed", "url", page.URL, "error", err)
				continue
			}
			if err := enqueueVectorize(deps.Store, doc.ID); err != nil {
				logger.Warn("enqueueing vectorize failed", "document_id", doc.ID, "error", err)
			}
			stored++
		}
	}

	logger.Info("crawl finished", "seeds", len(seeds), "stored", stored)
}
