package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/aprslabs/sahayak/internal/apperr"
)

// CrawlResult is what a bounded crawl produced.
type CrawlResult struct {
	Pages   []*Page
	Skipped int // links dropped for leaving the seed host or hitting the page cap
}

// Crawl fetches the seed page and follows same-host links breadth-first
// until maxPages pages have been fetched or the frontier is exhausted.
// Fetch errors on individual pages are logged and skipped so one dead link
// does not abort the crawl.
func (s *Scraper) Crawl(ctx context.Context, seedURL string, maxPages int) (*CrawlResult, error) {
	if maxPages <= 0 {
		maxPages = 10
	}
	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "invalid seed url %q", seedURL)
	}
	host := strings.TrimPrefix(seed.Hostname(), "www.")

	res := &CrawlResult{}
	queue := []string{seedURL}
	visited := map[string]bool{seedURL: true}

	for len(queue) > 0 && len(res.Pages) < maxPages {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		u := queue[0]
		queue = queue[1:]

		page, err := s.Fetch(ctx, u)
		if err != nil {
			s.logger.Warn("crawl fetch failed, skipping", "url", u, "error", err)
			continue
		}
		res.Pages = append(res.Pages, page)

		for _, link := range page.Links {
			if visited[link] {
				continue
			}
			parsed, err := url.Parse(link)
			if err != nil || strings.TrimPrefix(parsed.Hostname(), "www.") != host {
				res.Skipped++
				continue
			}
			visited[link] = true
			queue = append(queue, link)
		}
	}

	return res, nil
}
