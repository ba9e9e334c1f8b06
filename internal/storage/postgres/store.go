// Package postgres implements the catalog store contracts on Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmassist/harvester/internal/catalog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store is the Postgres-backed catalog.Store.
type Store struct {
	pool querier
}

// NewStore connects a pool and verifies it with a ping.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertPage inserts or overwrites the row for page.URL.
func (s *Store) UpsertPage(ctx context.Context, page catalog.RawPage) (int64, error) {
	links, err := json.Marshal(page.Links)
	if err != nil {
		return 0, fmt.Errorf("encode links: %w", err)
	}
	metadata, err := json.Marshal(page.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}
	query := `
		INSERT INTO raw_pages (url, domain, status_code, title, raw_html, raw_text, links, metadata, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (url) DO UPDATE
		SET domain = EXCLUDED.domain,
		    status_code = EXCLUDED.status_code,
		    title = EXCLUDED.title,
		    raw_html = EXCLUDED.raw_html,
		    raw_text = EXCLUDED.raw_text,
		    links = EXCLUDED.links,
		    metadata = EXCLUDED.metadata,
		    scraped_at = now()
		RETURNING id;
	`
	var id int64
	err = s.pool.QueryRow(ctx, query,
		page.URL, page.Domain, page.StatusCode, page.Title,
		page.HTML, page.Text, links, metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert page: %w", err)
	}
	return id, nil
}

// PageURLs returns every stored page URL.
func (s *Store) PageURLs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM raw_pages ORDER BY url;`)
	if err != nil {
		return nil, fmt.Errorf("list page urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan page url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// PagesByURLKeywords returns pages whose URL contains any keyword.
func (s *Store) PagesByURLKeywords(ctx context.Context, keywords []string) ([]catalog.RawPage, error) {
	patterns := make([]string, len(keywords))
	for i, kw := range keywords {
		patterns[i] = "%" + kw + "%"
	}
	query := `
		SELECT url, domain, status_code, title, raw_html, raw_text, links, metadata
		FROM raw_pages
		WHERE url ILIKE ANY($1)
		ORDER BY url;
	`
	rows, err := s.pool.Query(ctx, query, patterns)
	if err != nil {
		return nil, fmt.Errorf("query pages by keywords: %w", err)
	}
	defer rows.Close()

	var pages []catalog.RawPage
	for rows.Next() {
		var (
			page     catalog.RawPage
			links    []byte
			metadata []byte
		)
		if err := rows.Scan(&page.URL, &page.Domain, &page.StatusCode, &page.Title,
			&page.HTML, &page.Text, &links, &metadata); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		if len(links) > 0 {
			if err := json.Unmarshal(links, &page.Links); err != nil {
				return nil, fmt.Errorf("decode links: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &page.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// UpsertProgram inserts or overwrites the row keyed by (code, source URL).
// A nil code participates in the key as the empty string.
func (s *Store) UpsertProgram(ctx context.Context, record catalog.ProgramRecord) (int64, error) {
	code := ""
	if record.Code != nil {
		code = *record.Code
	}
	eligibility, err := json.Marshal(record.Eligibility)
	if err != nil {
		return 0, fmt.Errorf("encode eligibility: %w", err)
	}
	warnings, err := json.Marshal(record.Warnings)
	if err != nil {
		return 0, fmt.Errorf("encode warnings: %w", err)
	}
	query := `
		INSERT INTO programs (
			source_url, program_code, program_name, description,
			eligibility_raw, eligibility_parsed, payment_info_raw,
			payment_range_text, payment_min, payment_max, payment_unit,
			application_start, application_end, deadline_text,
			confidence_score, extraction_warnings, last_updated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (program_code, source_url) DO UPDATE
		SET program_name = EXCLUDED.program_name,
		    description = EXCLUDED.description,
		    eligibility_raw = EXCLUDED.eligibility_raw,
		    eligibility_parsed = EXCLUDED.eligibility_parsed,
		    payment_info_raw = EXCLUDED.payment_info_raw,
		    payment_range_text = EXCLUDED.payment_range_text,
		    payment_min = EXCLUDED.payment_min,
		    payment_max = EXCLUDED.payment_max,
		    payment_unit = EXCLUDED.payment_unit,
		    application_start = EXCLUDED.application_start,
		    application_end = EXCLUDED.application_end,
		    deadline_text = EXCLUDED.deadline_text,
		    confidence_score = EXCLUDED.confidence_score,
		    extraction_warnings = EXCLUDED.extraction_warnings,
		    last_updated = now()
		RETURNING id;
	`
	var id int64
	err = s.pool.QueryRow(ctx, query,
		record.SourceURL, code, record.Name, record.Description,
		record.EligibilityRaw, eligibility, record.PaymentRaw,
		record.PaymentRange, record.PaymentMin, record.PaymentMax, record.PaymentUnit,
		record.ApplicationStart, record.ApplicationEnd, record.DeadlineText,
		record.Confidence, warnings,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert program: %w", err)
	}
	return id, nil
}

// UpsertDocument inserts or overwrites the row for doc.SourceURL.
func (s *Store) UpsertDocument(ctx context.Context, doc catalog.Document) (int64, error) {
	tables, err := json.Marshal(doc.Tables)
	if err != nil {
		return 0, fmt.Errorf("encode tables: %w", err)
	}
	query := `
		INSERT INTO documents (
			source_url, file_name, local_path, file_size_bytes,
			extraction_method, page_count, full_text, tables, success, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_url) DO UPDATE
		SET file_name = EXCLUDED.file_name,
		    local_path = EXCLUDED.local_path,
		    file_size_bytes = EXCLUDED.file_size_bytes,
		    extraction_method = EXCLUDED.extraction_method,
		    page_count = EXCLUDED.page_count,
		    full_text = EXCLUDED.full_text,
		    tables = EXCLUDED.tables,
		    success = EXCLUDED.success,
		    processed_at = EXCLUDED.processed_at
		RETURNING id;
	`
	var id int64
	err = s.pool.QueryRow(ctx, query,
		doc.SourceURL, doc.FileName, doc.LocalPath, doc.FileSizeBytes,
		doc.ExtractionMethod, doc.PageCount, doc.FullText, tables,
		doc.Success, doc.ProcessedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert document: %w", err)
	}
	return id, nil
}

// UpsertStat inserts or overwrites the row keyed by the composite natural
// key.
func (s *Store) UpsertStat(ctx context.Context, stat catalog.MarketStat) error {
	raw, err := json.Marshal(stat.Raw)
	if err != nil {
		return fmt.Errorf("encode raw stat: %w", err)
	}
	query := `
		INSERT INTO market_stats (source, state, county, entity, year, metric, value, unit, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source, state, county, entity, year, metric) DO UPDATE
		SET value = EXCLUDED.value,
		    unit = EXCLUDED.unit,
		    raw = EXCLUDED.raw;
	`
	_, err = s.pool.Exec(ctx, query,
		stat.Source, stat.State, stat.County, stat.Entity,
		stat.Year, stat.Metric, stat.Value, stat.Unit, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert stat: %w", err)
	}
	return nil
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job catalog.ScrapeJob) error {
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}
	query := `
		INSERT INTO scrape_jobs (id, job_type, status, started_at, ended_at, total_items, error_text, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.Type, job.Status, job.StartedAt,
		job.EndedAt, job.Items, job.ErrorText, metadata,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// FinishJob records the single terminal transition for a running job.
func (s *Store) FinishJob(ctx context.Context, id string, status catalog.JobStatus, endedAt time.Time, items int, errText string, metadata map[string]any) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode job metadata: %w", err)
	}
	query := `
		UPDATE scrape_jobs
		SET status = $1,
		    ended_at = $2,
		    total_items = $3,
		    error_text = $4,
		    metadata = CASE WHEN $5::jsonb = 'null'::jsonb THEN metadata ELSE $5::jsonb END
		WHERE id = $6 AND status = 'running';
	`
	tag, err := s.pool.Exec(ctx, query, status, endedAt, items, errText, encoded, id)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not running", id)
	}
	return nil
}

// LatestJob returns the most recently started job of the given type.
func (s *Store) LatestJob(ctx context.Context, jobType catalog.JobType) (catalog.ScrapeJob, error) {
	query := `
		SELECT id, job_type, status, started_at, ended_at, total_items, error_text, metadata
		FROM scrape_jobs
		WHERE job_type = $1
		ORDER BY started_at DESC
		LIMIT 1;
	`
	var (
		job      catalog.ScrapeJob
		metadata []byte
	)
	err := s.pool.QueryRow(ctx, query, jobType).Scan(
		&job.ID, &job.Type, &job.Status, &job.StartedAt,
		&job.EndedAt, &job.Items, &job.ErrorText, &metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ScrapeJob{}, fmt.Errorf("no %s job: %w", jobType, catalog.ErrNotFound)
		}
		return catalog.ScrapeJob{}, fmt.Errorf("get latest job: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return catalog.ScrapeJob{}, fmt.Errorf("decode job metadata: %w", err)
		}
	}
	return job, nil
}
