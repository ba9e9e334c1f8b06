// Package memory implements the catalog store contracts with in-process
// maps. It backs unit tests and dry runs where no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/farmassist/harvester/internal/catalog"
)

// Store is a thread-safe in-memory catalog.Store.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	pages    map[string]catalog.RawPage
	programs map[string]catalog.ProgramRecord
	docs     map[string]catalog.Document
	stats    map[string]catalog.MarketStat
	jobs     []catalog.ScrapeJob
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		pages:    make(map[string]catalog.RawPage),
		programs: make(map[string]catalog.ProgramRecord),
		docs:     make(map[string]catalog.Document),
		stats:    make(map[string]catalog.MarketStat),
	}
}

// UpsertPage stores the page keyed by URL, overwriting any previous row.
func (s *Store) UpsertPage(_ context.Context, page catalog.RawPage) (int64, error) {
	if page.URL == "" {
		return 0, fmt.Errorf("page url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.URL] = page
	s.nextID++
	return s.nextID, nil
}

// PageURLs returns the stored page URLs in sorted order.
func (s *Store) PageURLs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.pages))
	for url := range s.pages {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls, nil
}

// PagesByURLKeywords returns pages whose URL contains any keyword, URL-sorted.
func (s *Store) PagesByURLKeywords(_ context.Context, keywords []string) ([]catalog.RawPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.RawPage
	for url, page := range s.pages {
		lower := strings.ToLower(url)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, page)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func programKey(record catalog.ProgramRecord) string {
	code := ""
	if record.Code != nil {
		code = *record.Code
	}
	return code + "\x00" + record.SourceURL
}

// UpsertProgram stores the record keyed by (code, source URL).
func (s *Store) UpsertProgram(_ context.Context, record catalog.ProgramRecord) (int64, error) {
	if record.SourceURL == "" {
		return 0, fmt.Errorf("source url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[programKey(record)] = record
	s.nextID++
	return s.nextID, nil
}

// UpsertDocument stores the document keyed by source URL.
func (s *Store) UpsertDocument(_ context.Context, doc catalog.Document) (int64, error) {
	if doc.SourceURL == "" {
		return 0, fmt.Errorf("source url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.SourceURL] = doc
	s.nextID++
	return s.nextID, nil
}

// UpsertStat stores the row keyed by its composite natural key.
func (s *Store) UpsertStat(_ context.Context, stat catalog.MarketStat) error {
	key := fmt.Sprintf("%s|%s|%s|%s|%d|%s", stat.Source, stat.State, stat.County, stat.Entity, stat.Year, stat.Metric)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[key] = stat
	return nil
}

// CreateJob appends a new job row.
func (s *Store) CreateJob(_ context.Context, job catalog.ScrapeJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// FinishJob records the terminal transition for the job with the given ID.
// A job already in a terminal status is left untouched.
func (s *Store) FinishJob(_ context.Context, id string, status catalog.JobStatus, endedAt time.Time, items int, errText string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		if s.jobs[i].Status != catalog.StatusRunning {
			return fmt.Errorf("job %s already finished", id)
		}
		s.jobs[i].Status = status
		s.jobs[i].EndedAt = &endedAt
		s.jobs[i].Items = items
		s.jobs[i].ErrorText = errText
		if metadata != nil {
			s.jobs[i].Metadata = metadata
		}
		return nil
	}
	return fmt.Errorf("job %s not found", id)
}

// LatestJob returns the most recently started job of the given type.
func (s *Store) LatestJob(_ context.Context, jobType catalog.JobType) (catalog.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *catalog.ScrapeJob
	for i := range s.jobs {
		if s.jobs[i].Type != jobType {
			continue
		}
		if latest == nil || s.jobs[i].StartedAt.After(latest.StartedAt) {
			latest = &s.jobs[i]
		}
	}
	if latest == nil {
		return catalog.ScrapeJob{}, fmt.Errorf("no %s job: %w", jobType, catalog.ErrNotFound)
	}
	return *latest, nil
}

// PageCount reports the number of stored pages (test helper).
func (s *Store) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// ProgramCount reports the number of stored program rows (test helper).
func (s *Store) ProgramCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.programs)
}

// Program returns the stored record for (code, url) (test helper).
func (s *Store) Program(code *string, url string) (catalog.ProgramRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.programs[programKey(catalog.ProgramRecord{Code: code, SourceURL: url})]
	return rec, ok
}

// Document returns the stored document for the URL (test helper).
func (s *Store) Document(url string) (catalog.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[url]
	return doc, ok
}

// StatCount reports the number of stored tier-1 rows (test helper).
func (s *Store) StatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats)
}
