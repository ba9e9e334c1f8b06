package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a lookup matched no stored row.
var ErrNotFound = errors.New("not found")

// PageStore persists crawled pages and answers resume queries.
type PageStore interface {
	// UpsertPage inserts or overwrites the row for page.URL.
	UpsertPage(ctx context.Context, page RawPage) (int64, error)
	// PageURLs returns every stored page URL; the crawler seeds its visited
	// set from this so restarts never re-fetch.
	PageURLs(ctx context.Context) ([]string, error)
	// PagesByURLKeywords returns stored pages whose URL contains any of the
	// given keywords, in URL order.
	PagesByURLKeywords(ctx context.Context, keywords []string) ([]RawPage, error)
}

// ProgramStore persists extracted program records.
type ProgramStore interface {
	// UpsertProgram inserts or overwrites the row keyed by
	// (program_code, source_url), refreshing its last-updated marker.
	UpsertProgram(ctx context.Context, record ProgramRecord) (int64, error)
}

// DocumentStore persists ingested PDF documents keyed by source URL.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc Document) (int64, error)
}

// MarketStore persists tier-1 rows keyed by their composite natural key.
type MarketStore interface {
	UpsertStat(ctx context.Context, stat MarketStat) error
}

// JobStore persists scrape job bookkeeping rows.
type JobStore interface {
	// CreateJob inserts a new job row. The caller assigns the ID.
	CreateJob(ctx context.Context, job ScrapeJob) error
	// FinishJob records the single terminal transition for a job.
	FinishJob(ctx context.Context, id string, status JobStatus, endedAt time.Time, items int, errText string, metadata map[string]any) error
	// LatestJob returns the most recently completed job of the given type.
	LatestJob(ctx context.Context, jobType JobType) (ScrapeJob, error)
}

// Store is the full record-store contract consumed by the pipeline.
type Store interface {
	PageStore
	ProgramStore
	DocumentStore
	MarketStore
	JobStore
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
