// Package metrics exposes Prometheus collectors for the harvesting pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesCrawledTotal      *prometheus.CounterVec
	programsExtractedTotal prometheus.Counter
	programConfidence      prometheus.Histogram
	pdfsProcessedTotal     *prometheus.CounterVec
	tier1RowsTotal         *prometheus.CounterVec
	tierDurationSeconds    *prometheus.HistogramVec
	jobsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call more than
// once.
func Init() {
	once.Do(func() {
		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_crawled_total",
				Help: "Pages fetched by the discovery crawler, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		programsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_programs_extracted_total",
				Help: "Program records produced by the field extractor.",
			},
		)

		programConfidence = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_program_confidence",
				Help:    "Confidence score distribution of extracted programs.",
				Buckets: []float64{0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1.0},
			},
		)

		pdfsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pdfs_processed_total",
				Help: "PDF documents processed, labeled by extraction outcome.",
			},
			[]string{"outcome"},
		)

		tier1RowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tier1_rows_total",
				Help: "Rows harvested from structured tier-1 sources, labeled by source.",
			},
			[]string{"source"},
		)

		tierDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_tier_duration_seconds",
				Help:    "Wall-clock duration of each pipeline tier.",
				Buckets: []float64{1, 10, 60, 300, 900, 3600},
			},
			[]string{"tier"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_jobs_total",
				Help: "Scrape jobs reaching a terminal status.",
			},
			[]string{"status"},
		)
	})
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageCrawled records one crawler fetch by outcome ("ok", "error").
func ObservePageCrawled(outcome string) {
	Init()
	pagesCrawledTotal.WithLabelValues(outcome).Inc()
}

// ObserveProgramExtracted records one extracted record and its confidence.
func ObserveProgramExtracted(confidence float64) {
	Init()
	programsExtractedTotal.Inc()
	programConfidence.Observe(confidence)
}

// ObservePDFProcessed records one PDF by outcome ("success", "tables_only",
// "failed").
func ObservePDFProcessed(outcome string) {
	Init()
	pdfsProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveTier1Row records one upserted tier-1 row.
func ObserveTier1Row(source string) {
	Init()
	tier1RowsTotal.WithLabelValues(source).Inc()
}

// ObserveTierDuration records the wall-clock time one tier took.
func ObserveTierDuration(tier string, d time.Duration) {
	Init()
	tierDurationSeconds.WithLabelValues(tier).Observe(d.Seconds())
}

// ObserveJobFinished records a job's terminal status.
func ObserveJobFinished(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}
