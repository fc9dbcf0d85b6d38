// Package websearch queries Google Programmable Search, falling back to
// SerpAPI when the primary is unconfigured or fails.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/config"
)

const (
	googleSearchURL = "https://www.googleapis.com/customsearch/v1"
	serpAPIURL      = "https://serpapi.com/search"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client performs web searches.
type Client struct {
	googleKey   string
	googleCSEID string
	serpKey     string
	httpClient  *http.Client
	logger      *slog.Logger

	// overridable endpoints for tests
	googleURL string
	serpURL   string
}

// New creates a Client from search configuration.
func New(cfg config.SearchConfig) *Client {
	return &Client{
		googleKey:   cfg.GoogleAPIKey,
		googleCSEID: cfg.GoogleCSEID,
		serpKey:     cfg.SerpAPIKey,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		logger:      slog.Default().With("component", "websearch"),
		googleURL:   googleSearchURL,
		serpURL:     serpAPIURL,
	}
}

// Configured reports whether at least one search backend has credentials.
func (c *Client) Configured() bool {
	return (c.googleKey != "" && c.googleCSEID != "") || c.serpKey != ""
}

// Search tries Google first and falls back to SerpAPI. It returns
// ErrConfigurationMissing when neither backend has credentials.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	if query == "" {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "query is required")
	}
	if num <= 0 || num > 10 {
		num = 5
	}
	if !c.Configured() {
		return nil, apperr.Wrapf(apperr.ErrConfigurationMissing, "no web search backend configured")
	}

	if c.googleKey != "" && c.googleCSEID != "" {
		results, err := c.searchGoogle(ctx, query, num)
		if err == nil {
			return results, nil
		}
		if c.serpKey == "" {
			return nil, err
		}
		c.logger.Warn("google search failed, falling back to serpapi", "error", err)
	}

	return c.searchSerp(ctx, query, num)
}

func (c *Client) searchGoogle(ctx context.Context, query string, num int) ([]Result, error) {
	params := url.Values{}
	params.Set("key", c.googleKey)
	params.Set("cx", c.googleCSEID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	var resp struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := c.get(ctx, c.googleURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

func (c *Client) searchSerp(ctx context.Context, query string, num int) ([]Result, error) {
	params := url.Values{}
	params.Set("api_key", c.serpKey)
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	var resp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := c.get(ctx, c.serpURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.OrganicResults))
	for _, item := range resp.OrganicResults {
		if len(results) >= num {
			break
		}
		results = append(results, Result{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrapf(apperr.ErrUpstream, "search request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrapf(apperr.ErrUpstream, "reading search response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		excerpt := string(data)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return apperr.Wrapf(apperr.ErrUpstream, "search returned %d: %s", resp.StatusCode, excerpt)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrapf(apperr.ErrUpstream, "decoding search response: %v", err)
	}
	return nil
}
