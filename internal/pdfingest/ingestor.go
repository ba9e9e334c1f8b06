package pdfingest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/metrics"
	"github.com/farmassist/harvester/internal/patterns"
)

// PaymentTableKind tags tables whose header talks about money.
const PaymentTableKind = "payment_rates"

const defaultConcurrency = 3

// Config holds the PDF tier settings.
type Config struct {
	Dir           string
	MaxConcurrent int
	Delay         time.Duration
	Timeout       time.Duration
}

// fileFetcher is the downloader seam used by tests.
type fileFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, int64, error)
}

// Ingestor processes PDF URLs: download, extract, tag tables, persist.
type Ingestor struct {
	cfg       Config
	fetcher   fileFetcher
	extractor Extractor
	docs      catalog.DocumentStore
	clock     catalog.Clock
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New builds an Ingestor with the real downloader and extractor.
func New(cfg Config, docs catalog.DocumentStore, clock catalog.Clock, logger *zap.Logger) *Ingestor {
	return newIngestor(cfg, NewDownloader(cfg.Dir, cfg.Timeout, logger), NewReaderExtractor(), docs, clock, logger)
}

func newIngestor(cfg Config, fetcher fileFetcher, extractor Extractor, docs catalog.DocumentStore, clock catalog.Clock, logger *zap.Logger) *Ingestor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultConcurrency
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Ingestor{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		docs:      docs,
		clock:     clock,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Run processes the given URLs with bounded concurrency and returns how many
// documents were persisted plus the URLs that could not be processed at all.
func (i *Ingestor) Run(ctx context.Context, urls []string) (int, []string, error) {
	sem := make(chan struct{}, i.cfg.MaxConcurrent)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
		failures  []string
	)

	for _, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(rawURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			ok := i.processOne(ctx, rawURL)
			mu.Lock()
			if ok {
				processed++
			} else {
				failures = append(failures, rawURL)
			}
			mu.Unlock()
		}(rawURL)
	}
	wg.Wait()

	i.logger.Info("PDF tier done",
		zap.Int("processed", processed),
		zap.Int("failed", len(failures)),
	)
	return processed, failures, ctx.Err()
}

// processOne runs the full lifecycle for one URL. Only a download failure
// counts as unprocessed; extraction failures still persist a document row
// recording the attempt.
func (i *Ingestor) processOne(ctx context.Context, rawURL string) bool {
	if err := i.limiter.Wait(ctx); err != nil {
		return false
	}

	local, size, err := i.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		metrics.ObservePDFProcessed("failed")
		i.logger.Warn("PDF download failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}

	doc := i.extract(local)
	doc.SourceURL = rawURL
	doc.FileName = filepath.Base(local)
	doc.LocalPath = local
	doc.FileSizeBytes = size
	doc.ProcessedAt = i.clock.Now()
	tagPaymentTables(doc.Tables)

	if _, err := i.docs.UpsertDocument(ctx, doc); err != nil {
		i.logger.Error("Failed to persist document", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return true
}

// extract runs the two-stage attempt: text layer first, positioned rows when
// the text layer yields nothing. Success is reserved for the text layer.
func (i *Ingestor) extract(path string) catalog.Document {
	primary, err := i.extractor.Primary(path)
	if err == nil && strings.TrimSpace(primary.Text) != "" {
		metrics.ObservePDFProcessed("success")
		return catalog.Document{
			ExtractionMethod: MethodTextLayer,
			PageCount:        primary.PageCount,
			FullText:         primary.Text,
			Tables:           primary.Tables,
			Success:          true,
		}
	}
	if err != nil {
		i.logger.Warn("Text-layer extraction failed", zap.String("path", path), zap.Error(err))
	}

	// The fallback reports tables only. Its row-reconstructed text is a
	// positioning artifact and is never persisted.
	fallback, ferr := i.extractor.Fallback(path)
	if ferr == nil && len(fallback.Tables) > 0 {
		metrics.ObservePDFProcessed("tables_only")
		return catalog.Document{
			ExtractionMethod: MethodTableOnly,
			PageCount:        fallback.PageCount,
			Tables:           fallback.Tables,
			Success:          false,
		}
	}
	if ferr != nil {
		i.logger.Warn("Row extraction failed", zap.String("path", path), zap.Error(ferr))
	}

	metrics.ObservePDFProcessed("failed")
	pageCount := primary.PageCount
	if pageCount == 0 {
		pageCount = fallback.PageCount
	}
	return catalog.Document{
		ExtractionMethod: MethodFailed,
		PageCount:        pageCount,
		Success:          false,
	}
}

func tagPaymentTables(tables []catalog.DocumentTable) {
	for idx := range tables {
		header := strings.ToLower(strings.Join(tables[idx].Header, " "))
		for _, keyword := range patterns.PaymentTableKeywords {
			if strings.Contains(header, keyword) {
				tables[idx].Kind = PaymentTableKind
				break
			}
		}
	}
}
