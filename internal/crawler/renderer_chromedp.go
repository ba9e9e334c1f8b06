package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderConfig controls the JS-rendering fetcher.
type RenderConfig struct {
	UserAgent  string
	NavTimeout time.Duration
}

// ChromeFetcher implements Fetcher with a headless browser for pages that
// only populate their content via script. The crawl stays single-threaded,
// so one browser context at a time is enough.
type ChromeFetcher struct {
	cfg         RenderConfig
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromeFetcher starts a shared browser allocator.
func NewChromeFetcher(cfg RenderConfig) (*ChromeFetcher, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocator, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeFetcher{
		cfg:         cfg,
		allocator:   allocator,
		allocCancel: cancel,
	}, nil
}

// Close tears down the browser allocator.
func (f *ChromeFetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with the headless browser and returns the rendered DOM.
// A successful navigation reports status 200; transport-level failures
// surface as errors.
func (f *ChromeFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavTimeout)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	var (
		rendered string
		finalURL string
	)
	actions := []chromedp.Action{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return Page{
		URL:        finalURL,
		StatusCode: http.StatusOK,
		Body:       rendered,
	}, nil
}
