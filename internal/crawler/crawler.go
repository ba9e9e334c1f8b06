package crawler

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/htmltext"
	"github.com/farmassist/harvester/internal/metrics"
	"github.com/farmassist/harvester/internal/patterns"
)

// defaultMinIndicators is the 3-of-N program-page threshold; it is a tuning
// knob, not an invariant, and can be overridden via Config.
const defaultMinIndicators = 3

// Page is one fetched page as returned by a Fetcher.
type Page struct {
	URL        string
	StatusCode int
	Body       string
}

// Fetcher retrieves a single page. Implementations are a plain HTTP
// collector and a JS-rendering browser.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Seed is one crawl entry point tagged with a section label recorded in the
// page metadata.
type Seed struct {
	URL     string
	Section string
}

// Config holds the settings for a discovery crawl.
type Config struct {
	Seeds          []Seed
	AllowedDomains []string
	MaxDepth       int
	Delay          time.Duration
	MinIndicators  int
}

// Summary is the outcome of one crawl, also persisted as the discovery job's
// metadata for the PDF tier to consume.
type Summary struct {
	PagesVisited    int
	PagesFetched    int
	PDFURLs         []string
	ProgramPageURLs []string
}

// Crawler walks seed sites breadth-first and persists every fetched page.
type Crawler struct {
	cfg     Config
	fetcher Fetcher
	pages   catalog.PageStore
	jobs    catalog.JobStore
	clock   catalog.Clock
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Crawler. A non-positive delay disables the politeness pause.
func New(
	cfg Config,
	fetcher Fetcher,
	pages catalog.PageStore,
	jobs catalog.JobStore,
	clock catalog.Clock,
	logger *zap.Logger,
) *Crawler {
	if cfg.MinIndicators <= 0 {
		cfg.MinIndicators = defaultMinIndicators
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		pages:   pages,
		jobs:    jobs,
		clock:   clock,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Run executes the crawl over all seeds in order and writes the discovery
// job summary row. The visited set is seeded from the page store, so a URL
// persisted by an earlier run is never fetched again.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	start := c.clock.Now()

	known, err := c.pages.PageURLs(ctx)
	if err != nil {
		c.logger.Warn("Could not load visited URLs, starting cold", zap.Error(err))
		known = nil
	}
	session := NewSession(known)
	c.logger.Info("Starting discovery crawl",
		zap.Int("seeds", len(c.cfg.Seeds)),
		zap.Int("resumed_urls", len(known)),
	)

	var runErr error
	for _, seed := range c.cfg.Seeds {
		if runErr = c.crawlFrom(ctx, session, seed); runErr != nil {
			break
		}
	}

	summary := Summary{
		PagesVisited:    session.VisitedCount(),
		PagesFetched:    session.FetchedCount(),
		PDFURLs:         session.PDFURLs(),
		ProgramPageURLs: session.ProgramPageURLs(),
	}
	c.saveDiscoveryJob(ctx, start, summary)

	c.logger.Info("Discovery complete",
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("pdfs", len(summary.PDFURLs)),
		zap.Int("program_pages", len(summary.ProgramPageURLs)),
	)
	return summary, runErr
}

// crawlFrom drains the queue for one seed in strict FIFO order. Entries that
// are already visited or deeper than the configured maximum are dropped
// without a fetch.
func (c *Crawler) crawlFrom(ctx context.Context, session *Session, seed Seed) error {
	session.Enqueue(seed.URL, 0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageURL, depth, ok := session.Dequeue()
		if !ok {
			return nil
		}
		if session.Visited(pageURL) || depth > c.cfg.MaxDepth {
			continue
		}
		c.crawlPage(ctx, session, pageURL, depth, seed.Section)
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// crawlPage fetches, classifies and persists one page. All failures are
// terminal for the page only: the URL stays marked visited and the crawl
// moves on.
func (c *Crawler) crawlPage(ctx context.Context, session *Session, pageURL string, depth int, section string) {
	session.MarkVisited(pageURL)
	c.logger.Info("Crawling", zap.Int("depth", depth), zap.String("url", pageURL))

	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil || page.StatusCode != 200 {
		metrics.ObservePageCrawled("error")
		c.logger.Warn("Page fetch failed",
			zap.String("url", pageURL),
			zap.Int("status_code", page.StatusCode),
			zap.Error(err),
		)
		return
	}
	session.fetched++

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		metrics.ObservePageCrawled("error")
		c.logger.Warn("Page parse failed", zap.String("url", pageURL), zap.Error(err))
		return
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := htmltext.FromString(page.Body)
	links := extractLinks(doc, pageURL)

	for _, link := range links {
		c.classifyLink(session, link, depth)
	}
	if c.isProgramPage(text, pageURL) {
		session.AddProgramPage(pageURL)
	}

	record := catalog.RawPage{
		URL:        pageURL,
		Domain:     hostOf(pageURL),
		StatusCode: page.StatusCode,
		Title:      title,
		HTML:       page.Body,
		Text:       text,
		Links:      links,
		Metadata: map[string]any{
			"section":    section,
			"crawl_time": c.clock.Now().UTC().Format(time.RFC3339),
		},
	}
	if _, err := c.pages.UpsertPage(ctx, record); err != nil {
		c.logger.Error("Failed to persist page", zap.String("url", pageURL), zap.Error(err))
	}
	metrics.ObservePageCrawled("ok")
}

// classifyLink routes one outbound link: PDFs are collected, allow-listed
// program-looking links are queued one level deeper, everything else is
// ignored. Links past the depth bound never enter the queue.
func (c *Crawler) classifyLink(session *Session, link string, depth int) {
	lower := strings.ToLower(link)
	if strings.Contains(lower, ".pdf") {
		session.AddPDF(link)
		return
	}
	if depth+1 > c.cfg.MaxDepth {
		return
	}
	if !c.domainAllowed(link) {
		return
	}
	if !containsAny(lower, patterns.FollowURLKeywords) {
		return
	}
	session.Enqueue(link, depth+1)
}

// isProgramPage applies the two-part heuristic: enough indicator phrases in
// the page text AND a program-related keyword in the URL. Both are required
// to keep navigation and marketing pages out.
func (c *Crawler) isProgramPage(text, pageURL string) bool {
	lowerText := strings.ToLower(text)
	count := 0
	for _, indicator := range patterns.ProgramIndicators {
		if strings.Contains(lowerText, indicator) {
			count++
		}
	}
	return count >= c.cfg.MinIndicators && containsAny(strings.ToLower(pageURL), patterns.ProgramURLKeywords)
}

func (c *Crawler) domainAllowed(link string) bool {
	host := hostOf(link)
	if host == "" {
		return false
	}
	for _, domain := range c.cfg.AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// saveDiscoveryJob writes one completed job row whose metadata carries the
// discovered URL lists. The PDF tier later reads the most recent of these
// rows instead of receiving a live handoff.
func (c *Crawler) saveDiscoveryJob(ctx context.Context, start time.Time, summary Summary) {
	end := c.clock.Now()
	job := catalog.ScrapeJob{
		ID:        uuid.NewString(),
		Type:      catalog.JobTypeDiscovery,
		Status:    catalog.StatusCompleted,
		StartedAt: start,
		EndedAt:   &end,
		Items:     summary.PagesFetched,
		Metadata: map[string]any{
			"total_pages":       summary.PagesVisited,
			"pdf_count":         len(summary.PDFURLs),
			"program_pages":     len(summary.ProgramPageURLs),
			"pdf_urls":          summary.PDFURLs,
			"program_page_urls": summary.ProgramPageURLs,
		},
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		c.logger.Error("Failed to save discovery job", zap.Error(err))
	}
}

// extractLinks resolves every anchor href against the page URL and keeps
// absolute http(s) results, in document order without duplicates.
func extractLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
