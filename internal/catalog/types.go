package catalog

import "time"

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store. Once a job leaves
// StatusRunning it is never reopened.
const (
	StatusRunning     JobStatus = "running"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusInterrupted JobStatus = "interrupted"
)

// JobType tags a scrape job row with the pipeline phase that produced it.
type JobType string

// Job type values.
const (
	JobTypePipeline  JobType = "full_pipeline"
	JobTypeTier1     JobType = "tier1_api"
	JobTypeDiscovery JobType = "discovery"
	JobTypeExtract   JobType = "extraction"
	JobTypePDF       JobType = "pdf_processing"
)

// ScrapeJob is the bookkeeping record for one pipeline run or sub-phase.
type ScrapeJob struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"job_type"`
	Status    JobStatus      `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Items     int            `json:"total_items"`
	ErrorText string         `json:"error_text,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RawPage is persisted for every page the discovery crawler fetches
// successfully. URL is the unique key; re-crawling overwrites content fields.
type RawPage struct {
	URL        string         `json:"url"`
	Domain     string         `json:"domain"`
	StatusCode int            `json:"status_code"`
	Title      string         `json:"title"`
	HTML       string         `json:"raw_html"`
	Text       string         `json:"raw_text"`
	Links      []string       `json:"links"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EligibilityFlags is the parsed form of a program's eligibility text.
// Each flag is a keyword-derived boolean, not a verified requirement.
type EligibilityFlags struct {
	RequiresFarmOwnership    bool `json:"requires_farm_ownership"`
	RequiresAcreage          bool `json:"requires_acreage"`
	IncomeLimits             bool `json:"income_limits"`
	ConservationRequirements bool `json:"conservation_requirements"`
}

// ProgramRecord is one candidate assistance program extracted from a page.
// The (Code, SourceURL) pair is the upsert key; Code may be nil.
// Optional fields are nil when extraction found nothing, never empty
// placeholders.
type ProgramRecord struct {
	SourceURL        string            `json:"source_url"`
	Name             string            `json:"program_name"`
	Code             *string           `json:"program_code,omitempty"`
	Description      *string           `json:"description,omitempty"`
	EligibilityRaw   *string           `json:"eligibility_raw,omitempty"`
	Eligibility      *EligibilityFlags `json:"eligibility_parsed,omitempty"`
	PaymentRaw       *string           `json:"payment_info_raw,omitempty"`
	PaymentRange     *string           `json:"payment_range_text,omitempty"`
	PaymentMin       *float64          `json:"payment_min,omitempty"`
	PaymentMax       *float64          `json:"payment_max,omitempty"`
	PaymentUnit      *string           `json:"payment_unit,omitempty"`
	ApplicationStart *time.Time        `json:"application_start,omitempty"`
	ApplicationEnd   *time.Time        `json:"application_end,omitempty"`
	DeadlineText     *string           `json:"deadline_text,omitempty"`
	Confidence       float64           `json:"confidence_score"`
	Warnings         []string          `json:"extraction_warnings,omitempty"`
}

// DocumentTable is one table lifted out of a PDF, in page order.
type DocumentTable struct {
	Page   int        `json:"page"`
	Index  int        `json:"table_num"`
	Header []string   `json:"headers"`
	Rows   [][]string `json:"rows"`
	Kind   string     `json:"table_type,omitempty"`
}

// Document is one ingested PDF, keyed by SourceURL. Success is true only when
// the primary extractor produced non-empty text.
type Document struct {
	SourceURL        string          `json:"source_url"`
	FileName         string          `json:"file_name"`
	LocalPath        string          `json:"local_path"`
	FileSizeBytes    int64           `json:"file_size_bytes"`
	ExtractionMethod string          `json:"extraction_method,omitempty"`
	PageCount        int             `json:"page_count"`
	FullText         string          `json:"full_text"`
	Tables           []DocumentTable `json:"tables,omitempty"`
	Success          bool            `json:"success"`
	ProcessedAt      time.Time       `json:"processed_at"`
}

// MarketStat is one row harvested from a tier-1 structured source, keyed by
// (Source, State, County, Entity, Year, Metric).
type MarketStat struct {
	Source string         `json:"source"`
	State  string         `json:"state"`
	County string         `json:"county,omitempty"`
	Entity string         `json:"entity"`
	Year   int            `json:"year"`
	Metric string         `json:"metric"`
	Value  *float64       `json:"value,omitempty"`
	Unit   string         `json:"unit,omitempty"`
	Raw    map[string]any `json:"raw,omitempty"`
}
