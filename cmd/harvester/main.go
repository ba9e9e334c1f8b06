// Package main wires together the harvesting pipeline binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/farmassist/harvester/internal/api"
	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/clock"
	"github.com/farmassist/harvester/internal/config"
	"github.com/farmassist/harvester/internal/crawler"
	"github.com/farmassist/harvester/internal/extractor"
	"github.com/farmassist/harvester/internal/logging"
	"github.com/farmassist/harvester/internal/metrics"
	"github.com/farmassist/harvester/internal/pdfingest"
	"github.com/farmassist/harvester/internal/pipeline"
	"github.com/farmassist/harvester/internal/storage/memory"
	"github.com/farmassist/harvester/internal/storage/postgres"
	"github.com/farmassist/harvester/internal/tier1"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	serveOnly := flag.Bool("serve-only", false, "Serve the status API without running the pipeline")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Store init failed", zap.Error(err))
	}
	defer cleanup()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(store, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Status server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if *serveOnly {
		<-ctx.Done()
		return
	}

	runner := pipeline.New(buildStages(cfg, store, logger), store, clock.System{}, logger)
	if err := runner.Run(ctx); err != nil {
		logger.Warn("Pipeline interrupted", zap.Error(err))
	}
}

// openStore selects Postgres when a DSN is configured and the in-memory
// store otherwise. Migrations run before the pool is handed out.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (catalog.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("No database configured, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}
	if err := postgres.Migrate(cfg.Database.DSN); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	store, err := postgres.NewStore(ctx, postgres.Config{DSN: cfg.Database.DSN})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// buildStages assembles the enabled tiers in their fixed order.
func buildStages(cfg *config.Config, store catalog.Store, logger *zap.Logger) []pipeline.Stage {
	var stages []pipeline.Stage

	if cfg.Pipeline.RunTier1 {
		nass := tier1.NewNASSClient(tier1.NASSConfig{
			BaseURL:     cfg.Tier1.NASS.BaseURL,
			APIKey:      cfg.Tier1.NASS.APIKey,
			State:       cfg.Tier1.State,
			Commodities: cfg.Tier1.Commodities,
			Years:       cfg.Tier1.Years,
			Delay:       cfg.Tier1.Delay,
		}, store, logger)
		ewg := tier1.NewEWGScraper(tier1.EWGConfig{
			BaseURL:   cfg.Tier1.EWG.BaseURL,
			State:     cfg.Tier1.State,
			Years:     cfg.Tier1.Years,
			UserAgent: cfg.Crawler.UserAgent,
			Delay:     cfg.Tier1.Delay,
		}, store, logger)
		stages = append(stages, pipeline.Stage{
			Name: "structured sources",
			Type: catalog.JobTypeTier1,
			Run: func(ctx context.Context) (int, error) {
				nassRows, nassErr := nass.Run(ctx)
				ewgRows, ewgErr := ewg.Run(ctx)
				return nassRows + ewgRows, errors.Join(nassErr, ewgErr)
			},
		})
	}

	if cfg.Pipeline.RunDiscovery {
		stages = append(stages, pipeline.Stage{
			Name: "discovery crawl",
			Type: catalog.JobTypeDiscovery,
			Run: func(ctx context.Context) (int, error) {
				fetcher, closeFetcher, err := buildFetcher(cfg)
				if err != nil {
					return 0, err
				}
				defer closeFetcher()

				c := crawler.New(crawler.Config{
					Seeds:          seedsFromConfig(cfg.Crawler.Seeds),
					AllowedDomains: cfg.Crawler.AllowedDomains,
					MaxDepth:       cfg.Crawler.MaxDepth,
					Delay:          cfg.Crawler.Delay,
					MinIndicators:  cfg.Crawler.MinIndicators,
				}, fetcher, store, store, clock.System{}, logger)
				summary, err := c.Run(ctx)
				return summary.PagesFetched, err
			},
		})
	}

	if cfg.Pipeline.RunExtraction {
		stages = append(stages, pipeline.Stage{
			Name: "field extraction",
			Type: catalog.JobTypeExtract,
			Run: func(ctx context.Context) (int, error) {
				weights := extractor.Weights{
					Name:        cfg.Extractor.Weights.Name,
					Description: cfg.Extractor.Weights.Description,
					Payment:     cfg.Extractor.Weights.Payment,
					Eligibility: cfg.Extractor.Weights.Eligibility,
					Deadline:    cfg.Extractor.Weights.Deadline,
				}
				return extractor.NewProcessor(store, store, extractor.New(weights), logger).Run(ctx)
			},
		})
	}

	if cfg.Pipeline.RunPDF {
		stages = append(stages, pipeline.Stage{
			Name: "pdf processing",
			Type: catalog.JobTypePDF,
			Run: func(ctx context.Context) (int, error) {
				urls, err := pipeline.DiscoveredPDFURLs(ctx, store)
				if err != nil {
					return 0, err
				}
				ing := pdfingest.New(pdfingest.Config{
					Dir:           cfg.PDF.Dir,
					MaxConcurrent: cfg.PDF.MaxConcurrent,
					Delay:         cfg.PDF.Delay,
					Timeout:       cfg.PDF.Timeout,
				}, store, clock.System{}, logger)
				processed, failures, err := ing.Run(ctx, urls)
				if len(failures) > 0 {
					logger.Warn("Some PDFs failed", zap.Strings("urls", failures))
				}
				return processed, err
			},
		})
	}

	return stages
}

// buildFetcher picks the plain HTTP fetcher or the headless renderer.
func buildFetcher(cfg *config.Config) (crawler.Fetcher, func(), error) {
	if cfg.Crawler.RenderJS {
		chrome, err := crawler.NewChromeFetcher(crawler.RenderConfig{
			UserAgent:  cfg.Crawler.UserAgent,
			NavTimeout: cfg.Crawler.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return chrome, chrome.Close, nil
	}
	fetcher := crawler.NewCollyFetcher(crawler.FetcherConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.Timeout,
	})
	return fetcher, func() {}, nil
}

// seedsFromConfig labels each seed with the last segment of its URL path.
func seedsFromConfig(urls []string) []crawler.Seed {
	seeds := make([]crawler.Seed, 0, len(urls))
	for _, u := range urls {
		seeds = append(seeds, crawler.Seed{URL: u, Section: sectionOf(u)})
	}
	return seeds
}

func sectionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "root"
	}
	section := path.Base(strings.TrimRight(u.Path, "/"))
	if section == "." || section == "/" || section == "" {
		return "root"
	}
	return section
}
