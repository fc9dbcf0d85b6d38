// Package scraper fetches pages from known Indian legal sites and extracts
// case and statute text using per-site selector rules, with a generic
// fallback for unknown sites.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/aprslabs/sahayak/internal/apperr"
)

// userAgent identifies the crawler; some legal sites reject the Go default.
const userAgent = "Mozilla/5.0 (compatible; SahayakBot/1.0; legal research)"

// siteRule describes where a known site keeps its result links, document
// body, and title.
type siteRule struct {
	// linkClass matches anchor elements (or their heading wrapper) on
	// listing pages.
	linkClass string
	// contentID or contentClass locates the document body.
	contentID, contentClass string
	// titleTag/titleClass or titleID locates the document title.
	titleTag, titleClass, titleID string
}

// rules maps hostnames to their extraction rules.
var rules = map[string]siteRule{
	"indiankanoon.org": {
		linkClass: "result_title",
		contentID: "doc_content",
		titleTag:  "div", titleClass: "docTitle",
	},
	"legislative.gov.in": {
		linkClass: "title",
		contentID: "main-content",
		titleTag:  "h1", titleClass: "page-title",
	},
	"latestlaws.com": {
		linkClass: "entry-title",
		contentClass: "entry-content",
		titleTag:     "h1", titleClass: "entry-title",
	},
}

// Page is the extracted content of one scraped URL.
type Page struct {
	URL     string
	Title   string
	Content string
	Links   []string
}

// Scraper fetches and extracts legal pages.
type Scraper struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Scraper with a bounded request timeout.
func New() *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("component", "scraper"),
	}
}

// Fetch downloads a page and extracts its title, body text, and outbound
// document links using the site's rule or the generic fallback.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "invalid url %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrUpstream, "fetching %s: %v", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Wrapf(apperr.ErrUpstream, "fetching %s returned %d", pageURL, resp.StatusCode)
	}

	// 10MB cap; legal documents are text, anything bigger is not a page.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrUpstream, "reading %s: %v", pageURL, err)
	}

	return s.Extract(pageURL, body)
}

// Extract parses HTML and pulls out the page pieces per the host's rule.
func (s *Scraper) Extract(pageURL string, body []byte) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing html from %s: %w", pageURL, err)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "invalid url %q", pageURL)
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")

	page := &Page{URL: pageURL}
	rule, known := rules[host]
	if known {
		if title := findFirst(doc, matchTagClass(rule.titleTag, rule.titleClass)); title != nil {
			page.Title = collapseSpace(textContent(title))
		}
		var content *html.Node
		if rule.contentID != "" {
			content = findFirst(doc, matchID(rule.contentID))
		} else {
			content = findFirst(doc, matchTagClass("", rule.contentClass))
		}
		if content != nil {
			page.Content = collapseSpace(textContent(content))
		}
		page.Links = collectLinks(doc, parsed, rule.linkClass)
	}

	// Unknown site, or a known rule that matched nothing on this page.
	if page.Content == "" {
		page.Content = genericContent(doc)
	}
	if page.Title == "" {
		if t := findFirst(doc, matchTag("title")); t != nil {
			page.Title = collapseSpace(textContent(t))
		}
	}
	if len(page.Links) == 0 {
		page.Links = collectLinks(doc, parsed, "")
	}

	if page.Content == "" {
		s.logger.Warn("no content extracted", "url", pageURL, "known_site", known)
	}
	return page, nil
}

// genericContent tries common article containers, then falls back to the
// whole body with boilerplate elements stripped.
func genericContent(doc *html.Node) string {
	for _, sel := range []func(*html.Node) bool{
		matchTag("article"),
		matchTag("main"),
		matchID("content"),
		matchTagClass("", "content"),
		matchTagClass("", "article-body"),
	} {
		if n := findFirst(doc, sel); n != nil {
			if text := collapseSpace(textContent(n)); text != "" {
				return text
			}
		}
	}
	if b := findFirst(doc, matchTag("body")); b != nil {
		return collapseSpace(textContent(b))
	}
	return ""
}

// --- html tree helpers ---

func matchTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func matchID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	}
}

func matchTagClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		if tag != "" && n.Data != tag {
			return false
		}
		return hasClass(n, class)
	}
}

// skipped elements never contribute text or links.
var skipped = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "noscript": true,
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && skipped[c.Data] {
			continue
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
			return
		}
		if n.Type == html.ElementNode && skipped[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// collectLinks gathers hrefs from matching anchors (or anchors nested in a
// matching heading such as latestlaws' h3.entry-title), resolved against
// the page URL.
func collectLinks(doc *html.Node, base *url.URL, class string) []string {
	var links []string
	seen := map[string]bool{}

	add := func(n *html.Node) {
		href := attr(n, "href")
		if href == "" {
			return
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		abs := u.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	}

	// inMatch is set when an ancestor carried the class, covering sites
	// that class the heading rather than the anchor (h3.entry-title > a).
	var walk func(n *html.Node, inMatch bool)
	walk = func(n *html.Node, inMatch bool) {
		if n.Type == html.ElementNode {
			if skipped[n.Data] {
				return
			}
			if n.Data == "a" && (inMatch || class == "" || hasClass(n, class)) {
				add(n)
			}
			if class != "" && hasClass(n, class) {
				inMatch = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inMatch)
		}
	}
	walk(doc, false)
	return links
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if class == "" {
		return true
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
