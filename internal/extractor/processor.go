package extractor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/metrics"
	"github.com/farmassist/harvester/internal/patterns"
)

// Processor runs extraction over every stored page whose URL looks
// program-related and upserts the resulting records.
type Processor struct {
	pages    catalog.PageStore
	programs catalog.ProgramStore
	ex       *Extractor
	logger   *zap.Logger
}

// NewProcessor wires a Processor.
func NewProcessor(pages catalog.PageStore, programs catalog.ProgramStore, ex *Extractor, logger *zap.Logger) *Processor {
	return &Processor{
		pages:    pages,
		programs: programs,
		ex:       ex,
		logger:   logger,
	}
}

// Run extracts program records from all candidate pages. A failed upsert is
// logged and skipped; the loop continues with the next page. The returned
// count is the number of records persisted.
func (p *Processor) Run(ctx context.Context) (int, error) {
	pages, err := p.pages.PagesByURLKeywords(ctx, patterns.FollowURLKeywords)
	if err != nil {
		return 0, fmt.Errorf("load candidate pages: %w", err)
	}
	p.logger.Info("Extracting program data", zap.Int("pages", len(pages)))

	extracted := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return extracted, err
		}
		record := p.ex.Extract(page.HTML, page.URL)
		if _, err := p.programs.UpsertProgram(ctx, record); err != nil {
			p.logger.Error("Failed to upsert program",
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		extracted++
		metrics.ObserveProgramExtracted(record.Confidence)
		p.logger.Info("Extracted program",
			zap.String("name", record.Name),
			zap.Float64("confidence", record.Confidence),
		)
	}
	p.logger.Info("Extraction complete", zap.Int("programs", extracted))
	return extracted, nil
}
