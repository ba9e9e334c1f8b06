package crawler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/storage/memory"
)

type stubFetcher struct {
	pages   map[string]Page
	fetched []string
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	f.fetched = append(f.fetched, rawURL)
	page, ok := f.pages[rawURL]
	if !ok {
		return Page{}, fmt.Errorf("no route for %s", rawURL)
	}
	if page.StatusCode == 0 {
		page.StatusCode = 200
	}
	page.URL = rawURL
	return page, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const (
	seedURL    = "https://www.fsa.usda.gov/programs/index"
	programURL = "https://www.fsa.usda.gov/programs/dairy-margin-coverage"
	pdfURL     = "https://www.fsa.usda.gov/resources/dmc-factsheet.pdf"
	deepURL    = "https://www.fsa.usda.gov/programs/deep-page"
)

const indexHTML = `<html><head><title>Programs Index</title></head><body>
<a href="/programs/dairy-margin-coverage">Dairy Margin Coverage</a>
<a href="/resources/dmc-factsheet.pdf">Fact Sheet</a>
<a href="https://outside.example.com/programs/x">Partner Site</a>
<a href="/newsroom">Newsroom</a>
</body></html>`

const programHTML = `<html><head><title>Dairy Margin Coverage</title></head><body>
<h1>Dairy Margin Coverage</h1>
<p>Eligibility is limited to dairy operations. The payment rate varies with
the margin. The deadline for enrollment is announced each year.</p>
<a href="/programs/deep-page">Details</a>
</body></html>`

func testSite() *stubFetcher {
	return &stubFetcher{pages: map[string]Page{
		seedURL:    {Body: indexHTML},
		programURL: {Body: programHTML},
		deepURL:    {Body: "<html><body>deep</body></html>"},
	}}
}

func testConfig() Config {
	return Config{
		Seeds:          []Seed{{URL: seedURL, Section: "programs"}},
		AllowedDomains: []string{"fsa.usda.gov"},
		MaxDepth:       1,
	}
}

func newTestCrawler(cfg Config, fetcher Fetcher, store *memory.Store) *Crawler {
	clock := fixedClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(cfg, fetcher, store, store, clock, zap.NewNop())
}

func TestRun_CrawlAndClassify(t *testing.T) {
	fetcher := testSite()
	store := memory.NewStore()
	c := newTestCrawler(testConfig(), fetcher, store)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{seedURL, programURL}, fetcher.fetched)
	require.Equal(t, 2, summary.PagesFetched)
	require.Equal(t, 2, store.PageCount())
	require.Equal(t, []string{pdfURL}, summary.PDFURLs)
	require.Equal(t, []string{programURL}, summary.ProgramPageURLs)
}

func TestRun_DepthBound(t *testing.T) {
	fetcher := testSite()
	store := memory.NewStore()
	c := newTestCrawler(testConfig(), fetcher, store)

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NotContains(t, fetcher.fetched, deepURL)

	// Raising the bound by one reaches it.
	cfg := testConfig()
	cfg.MaxDepth = 2
	fetcher = testSite()
	c = newTestCrawler(cfg, fetcher, memory.NewStore())
	_, err = c.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, fetcher.fetched, deepURL)
}

func TestRun_ResumeSkipsPersistedPages(t *testing.T) {
	fetcher := testSite()
	store := memory.NewStore()
	c := newTestCrawler(testConfig(), fetcher, store)
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, store.PageCount())

	// Second run over the same store fetches nothing and adds no rows.
	fetcher = testSite()
	c = newTestCrawler(testConfig(), fetcher, store)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, fetcher.fetched)
	require.Equal(t, 0, summary.PagesFetched)
	require.Equal(t, 2, store.PageCount())
}

func TestRun_FetchFailureContinues(t *testing.T) {
	fetcher := testSite()
	delete(fetcher.pages, programURL)
	store := memory.NewStore()
	c := newTestCrawler(testConfig(), fetcher, store)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	// The failed URL was attempted, stays visited, and persists nothing.
	require.Contains(t, fetcher.fetched, programURL)
	require.Equal(t, 1, summary.PagesFetched)
	require.Equal(t, 1, store.PageCount())
	require.Empty(t, summary.ProgramPageURLs)
}

func TestRun_WritesDiscoveryJob(t *testing.T) {
	fetcher := testSite()
	store := memory.NewStore()
	c := newTestCrawler(testConfig(), fetcher, store)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	job, err := store.LatestJob(context.Background(), catalog.JobTypeDiscovery)
	require.NoError(t, err)
	require.Equal(t, catalog.StatusCompleted, job.Status)
	require.NotNil(t, job.EndedAt)
	require.Equal(t, 2, job.Items)
	require.Equal(t, 1, job.Metadata["pdf_count"])
	require.Equal(t, []string{pdfURL}, job.Metadata["pdf_urls"])
	require.Equal(t, []string{programURL}, job.Metadata["program_page_urls"])
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := testSite()
	c := newTestCrawler(testConfig(), fetcher, memory.NewStore())
	_, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetcher.fetched)
}

func TestSession_QueueOrderAndDedup(t *testing.T) {
	s := NewSession([]string{"https://a.example/seen"})

	s.Enqueue("https://a.example/seen", 0)
	s.Enqueue("https://a.example/one", 0)
	s.Enqueue("https://a.example/two", 1)

	url, depth, ok := s.Dequeue()
	require.True(t, ok)
	require.Equal(t, "https://a.example/one", url)
	require.Equal(t, 0, depth)

	url, depth, ok = s.Dequeue()
	require.True(t, ok)
	require.Equal(t, "https://a.example/two", url)
	require.Equal(t, 1, depth)

	_, _, ok = s.Dequeue()
	require.False(t, ok)

	s.AddPDF("https://a.example/x.pdf")
	s.AddPDF("https://a.example/x.pdf")
	require.Len(t, s.PDFURLs(), 1)
}

func TestExtractLinks_ResolvesAndFilters(t *testing.T) {
	fetcher := testSite()
	store := memory.NewStore()
	c := newTestCrawler(testConfig(), fetcher, store)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	pages, err := store.PagesByURLKeywords(context.Background(), []string{"index"})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, []string{
		programURL,
		pdfURL,
		"https://outside.example.com/programs/x",
		"https://www.fsa.usda.gov/newsroom",
	}, pages[0].Links)
}
