package tier1

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/metrics"
)

// SourceEWG labels rows harvested from the EWG subsidy tables.
const SourceEWG = "EWG"

// DefaultEWGBaseURL is the production subsidy database search page.
const DefaultEWGBaseURL = "https://farm.ewg.org/search.php"

// EWGConfig holds the subsidy scraper settings. State scopes every query to
// one state's payment history.
type EWGConfig struct {
	BaseURL   string
	State     string
	Years     []int
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
}

// EWGScraper pulls the per-program payment table for each configured year
// and records three metrics per program row.
type EWGScraper struct {
	cfg     EWGConfig
	client  *http.Client
	store   catalog.MarketStore
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewEWGScraper creates the scraper.
func NewEWGScraper(cfg EWGConfig, store catalog.MarketStore, logger *zap.Logger) *EWGScraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEWGBaseURL
	}
	if cfg.State == "" {
		cfg.State = DefaultState
	}
	if len(cfg.Years) == 0 {
		cfg.Years = DefaultYears
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &EWGScraper{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Run scrapes every configured year and returns the number of rows upserted.
// Per-year failures are logged and skipped.
func (s *EWGScraper) Run(ctx context.Context) (int, error) {
	total := 0
	for _, year := range s.cfg.Years {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		count, err := s.scrapeYear(ctx, year)
		if err != nil {
			s.logger.Warn("EWG year failed", zap.Int("year", year), zap.Error(err))
			continue
		}
		total += count
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}
	}
	s.logger.Info("EWG sweep done", zap.Int("rows", total))
	return total, nil
}

// scrapeYear parses the payment tables for one year. Each program row yields
// total payments, recipient count, and the reported average payment.
func (s *EWGScraper) scrapeYear(ctx context.Context, year int) (int, error) {
	params := url.Values{}
	params.Set("fips", "00000")
	params.Set("state", s.cfg.State)
	params.Set("year", strconv.Itoa(year))
	params.Set("regionname", s.cfg.State)
	pageURL := s.cfg.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse subsidy page: %w", err)
	}

	count := 0
	doc.Find("table.datatable tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		program := strings.TrimSpace(cells.Eq(0).Text())
		if program == "" {
			return
		}
		payments := parseCurrency(cells.Eq(1).Text())
		recipients := parseCount(cells.Eq(2).Text())
		average := parseCurrency(cells.Eq(3).Text())

		for _, stat := range statsFromEWGRow(s.cfg.State, program, year, payments, recipients, average) {
			if err := s.store.UpsertStat(ctx, stat); err != nil {
				s.logger.Error("Failed to persist stat", zap.String("program", program), zap.Error(err))
				continue
			}
			metrics.ObserveTier1Row(SourceEWG)
			count++
		}
	})
	return count, nil
}

func statsFromEWGRow(state, program string, year int, payments, recipients, average *float64) []catalog.MarketStat {
	base := catalog.MarketStat{
		Source: SourceEWG,
		State:  state,
		Entity: program,
		Year:   year,
	}

	totalStat := base
	totalStat.Metric = "total_payments"
	totalStat.Value = payments
	totalStat.Unit = "usd"

	countStat := base
	countStat.Metric = "recipient_count"
	countStat.Value = recipients
	countStat.Unit = "count"

	avgStat := base
	avgStat.Metric = "average_payment"
	avgStat.Value = average
	avgStat.Unit = "usd"

	return []catalog.MarketStat{totalStat, countStat, avgStat}
}

// parseCurrency reads "$1,234,567" style figures.
func parseCurrency(raw string) *float64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseCount reads comma-grouped whole numbers.
func parseCount(raw string) *float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}
