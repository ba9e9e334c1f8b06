package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/farmassist/harvester/internal/catalog"
)

func TestUpsertProgram_SecondWriteWins(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	code := "DMC"

	first := catalog.ProgramRecord{SourceURL: "https://example.gov/dmc", Code: &code, Name: "Old Name", Confidence: 0.4}
	second := catalog.ProgramRecord{SourceURL: "https://example.gov/dmc", Code: &code, Name: "New Name", Confidence: 0.9}

	_, err := store.UpsertProgram(ctx, first)
	require.NoError(t, err)
	_, err = store.UpsertProgram(ctx, second)
	require.NoError(t, err)

	require.Equal(t, 1, store.ProgramCount())
	got, ok := store.Program(&code, "https://example.gov/dmc")
	require.True(t, ok)
	require.Equal(t, "New Name", got.Name)
	require.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestUpsertPage_OneRowPerURL(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.UpsertPage(ctx, catalog.RawPage{URL: "https://example.gov/a", Title: "v1"})
	require.NoError(t, err)
	_, err = store.UpsertPage(ctx, catalog.RawPage{URL: "https://example.gov/a", Title: "v2"})
	require.NoError(t, err)

	require.Equal(t, 1, store.PageCount())
	urls, err := store.PageURLs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.gov/a"}, urls)
}

func TestPagesByURLKeywords(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, url := range []string{
		"https://example.gov/programs/dmc",
		"https://example.gov/about",
		"https://example.gov/disaster-assistance",
	} {
		_, err := store.UpsertPage(ctx, catalog.RawPage{URL: url})
		require.NoError(t, err)
	}

	pages, err := store.PagesByURLKeywords(ctx, []string{"program", "assistance"})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "https://example.gov/disaster-assistance", pages[0].URL)
	require.Equal(t, "https://example.gov/programs/dmc", pages[1].URL)
}

func TestJobLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	job := catalog.ScrapeJob{ID: "job-1", Type: catalog.JobTypeDiscovery, Status: catalog.StatusRunning, StartedAt: started}
	require.NoError(t, store.CreateJob(ctx, job))

	ended := started.Add(time.Hour)
	require.NoError(t, store.FinishJob(ctx, "job-1", catalog.StatusCompleted, ended, 42, "", map[string]any{"pdf_urls": []string{"https://example.gov/a.pdf"}}))

	got, err := store.LatestJob(ctx, catalog.JobTypeDiscovery)
	require.NoError(t, err)
	require.Equal(t, catalog.StatusCompleted, got.Status)
	require.Equal(t, 42, got.Items)

	// Terminal status is monotonic: a second transition is rejected.
	err = store.FinishJob(ctx, "job-1", catalog.StatusFailed, ended, 0, "late", nil)
	require.Error(t, err)
}

func TestLatestJob_PicksMostRecent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateJob(ctx, catalog.ScrapeJob{ID: "old", Type: catalog.JobTypeDiscovery, Status: catalog.StatusCompleted, StartedAt: base}))
	require.NoError(t, store.CreateJob(ctx, catalog.ScrapeJob{ID: "new", Type: catalog.JobTypeDiscovery, Status: catalog.StatusCompleted, StartedAt: base.Add(time.Hour)}))

	got, err := store.LatestJob(ctx, catalog.JobTypeDiscovery)
	require.NoError(t, err)
	require.Equal(t, "new", got.ID)
}
