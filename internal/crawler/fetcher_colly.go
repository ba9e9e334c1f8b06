package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// FetcherConfig controls the plain HTTP fetcher.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher implements Fetcher with a Colly collector. Each fetch runs on
// a fresh clone of the base collector, so no visit state leaks between
// requests; the crawl session owns revisit semantics.
type CollyFetcher struct {
	cfg  FetcherConfig
	base *colly.Collector
}

// NewCollyFetcher builds a fetcher for synchronous single-page fetches.
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := colly.NewCollector(colly.Async(false))
	base.AllowURLRevisit = true
	return &CollyFetcher{cfg: cfg, base: base}
}

// Fetch executes a single HTTP GET. Non-200 responses are returned with
// their status code and an error.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		page     Page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       string(r.Body),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.URL = rawURL
			page.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if fetchErr != nil {
			return page, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		if visitErr != nil {
			return page, fmt.Errorf("visit %s: %w", rawURL, visitErr)
		}
	}
	return page, nil
}
