package tier1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/metrics"
)

// SourceNASS labels rows harvested from the Quick Stats API.
const SourceNASS = "NASS"

// DefaultNASSBaseURL is the production Quick Stats endpoint.
const DefaultNASSBaseURL = "https://quickstats.nass.usda.gov/api/api_GET/"

// DefaultState is the target state when none is configured.
const DefaultState = "ND"

// Defaults for the commodity and year sweep.
var (
	DefaultCommodities = []string{"CORN", "SOYBEANS", "WHEAT", "BARLEY", "SUNFLOWER"}
	DefaultYears       = []int{2018, 2019, 2020, 2021, 2022, 2023}
)

// NASSConfig holds the Quick Stats client settings. State is the two-letter
// target state the whole sweep is scoped to.
type NASSConfig struct {
	BaseURL     string
	APIKey      string
	State       string
	Commodities []string
	Years       []int
	Delay       time.Duration
	Timeout     time.Duration
}

// NASSClient sweeps the Quick Stats API commodity by commodity, year by
// year, and upserts every returned row.
type NASSClient struct {
	cfg     NASSConfig
	client  *http.Client
	store   catalog.MarketStore
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewNASSClient creates the client. The API key is validated at Run time so
// a pipeline without tier 1 enabled can still construct it.
func NewNASSClient(cfg NASSConfig, store catalog.MarketStore, logger *zap.Logger) *NASSClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNASSBaseURL
	}
	if cfg.State == "" {
		cfg.State = DefaultState
	}
	if len(cfg.Commodities) == 0 {
		cfg.Commodities = DefaultCommodities
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
	return &NASSClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// nassRow mirrors the fields we keep from a Quick Stats record.
type nassRow struct {
	StateAlpha    string `json:"state_alpha"`
	CountyName    string `json:"county_name"`
	CommodityDesc string `json:"commodity_desc"`
	Year          int    `json:"year"`
	ShortDesc     string `json:"short_desc"`
	Value         string `json:"Value"`
	UnitDesc      string `json:"unit_desc"`
}

type nassResponse struct {
	Data []nassRow `json:"data"`
}

// Run sweeps every commodity-year pair and returns the number of rows
// upserted. A missing API key fails before any request is made; individual
// query failures are logged and skipped.
func (c *NASSClient) Run(ctx context.Context) (int, error) {
	if c.cfg.APIKey == "" {
		return 0, fmt.Errorf("nass api key is not configured")
	}

	total := 0
	for _, commodity := range c.cfg.Commodities {
		for _, year := range c.cfg.Years {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			rows, err := c.query(ctx, commodity, year)
			if err != nil {
				c.logger.Warn("Quick Stats query failed",
					zap.String("commodity", commodity),
					zap.Int("year", year),
					zap.Error(err),
				)
				continue
			}
			for _, row := range rows {
				if err := c.store.UpsertStat(ctx, statFromNASS(row)); err != nil {
					c.logger.Error("Failed to persist stat", zap.Error(err))
					continue
				}
				metrics.ObserveTier1Row(SourceNASS)
				total++
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return total, err
			}
		}
	}
	c.logger.Info("NASS sweep done", zap.Int("rows", total))
	return total, nil
}

func (c *NASSClient) query(ctx context.Context, commodity string, year int) ([]nassRow, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("source_desc", "SURVEY")
	params.Set("sector_desc", "CROPS")
	params.Set("commodity_desc", commodity)
	params.Set("state_alpha", c.cfg.State)
	params.Set("year", strconv.Itoa(year))
	params.Set("agg_level_desc", "COUNTY")
	params.Set("format", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query quick stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query quick stats: status %d", resp.StatusCode)
	}

	var parsed nassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode quick stats response: %w", err)
	}
	return parsed.Data, nil
}

func statFromNASS(row nassRow) catalog.MarketStat {
	return catalog.MarketStat{
		Source: SourceNASS,
		State:  row.StateAlpha,
		County: row.CountyName,
		Entity: row.CommodityDesc,
		Year:   row.Year,
		Metric: row.ShortDesc,
		Value:  parseNASSValue(row.Value),
		Unit:   row.UnitDesc,
		Raw: map[string]any{
			"value": row.Value,
		},
	}
}

// parseNASSValue handles comma-grouped numbers and the withheld markers
// ("(D)", "(Z)") the API uses in place of values.
func parseNASSValue(raw string) *float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" || strings.HasPrefix(cleaned, "(") {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}
