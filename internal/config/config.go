// Package config loads the harvester settings from an optional YAML file and
// HARVESTER_-prefixed environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the status HTTP server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig holds the record store settings. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig holds the discovery tier settings.
type CrawlerConfig struct {
	Seeds          []string      `mapstructure:"seeds"`
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	MaxDepth       int           `mapstructure:"max_depth"`
	Delay          time.Duration `mapstructure:"delay"`
	UserAgent      string        `mapstructure:"user_agent"`
	RenderJS       bool          `mapstructure:"render_js"`
	MinIndicators  int           `mapstructure:"min_indicators"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// WeightsConfig holds the confidence score weights.
type WeightsConfig struct {
	Name        float64 `mapstructure:"name"`
	Description float64 `mapstructure:"description"`
	Payment     float64 `mapstructure:"payment"`
	Eligibility float64 `mapstructure:"eligibility"`
	Deadline    float64 `mapstructure:"deadline"`
}

// ExtractorConfig holds the field extraction settings.
type ExtractorConfig struct {
	Weights WeightsConfig `mapstructure:"weights"`
}

// PDFConfig holds the document tier settings.
type PDFConfig struct {
	Dir           string        `mapstructure:"dir"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Delay         time.Duration `mapstructure:"delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// NASSConfig holds the Quick Stats API settings.
type NASSConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// EWGConfig holds the subsidy table scraper settings.
type EWGConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Tier1Config holds the structured-source tier settings. State is the
// two-letter target state both harvesters are scoped to.
type Tier1Config struct {
	NASS        NASSConfig    `mapstructure:"nass"`
	EWG         EWGConfig     `mapstructure:"ewg"`
	State       string        `mapstructure:"state"`
	Commodities []string      `mapstructure:"commodities"`
	Years       []int         `mapstructure:"years"`
	Delay       time.Duration `mapstructure:"delay"`
}

// PipelineConfig selects which tiers a run executes.
type PipelineConfig struct {
	RunTier1      bool `mapstructure:"run_tier1"`
	RunDiscovery  bool `mapstructure:"run_discovery"`
	RunExtraction bool `mapstructure:"run_extraction"`
	RunPDF        bool `mapstructure:"run_pdf"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	Tier1     Tier1Config     `mapstructure:"tier1"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// Load reads the configuration. Path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)

	// Empty defaults keep these keys visible to AutomaticEnv during
	// Unmarshal.
	v.SetDefault("database.dsn", "")
	v.SetDefault("tier1.nass.api_key", "")

	v.SetDefault("crawler.seeds", []string{
		"https://www.fsa.usda.gov/programs-and-services/index",
		"https://www.rma.usda.gov/Policy-and-Procedure/Insurance-Plans",
		"https://www.nrcs.usda.gov/programs-initiatives",
	})
	v.SetDefault("crawler.allowed_domains", []string{
		"fsa.usda.gov", "rma.usda.gov", "nrcs.usda.gov",
	})
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.delay", 2*time.Second)
	v.SetDefault("crawler.user_agent", "FarmAssistHarvester/1.0 (agricultural program research)")
	v.SetDefault("crawler.render_js", false)
	v.SetDefault("crawler.min_indicators", 3)
	v.SetDefault("crawler.timeout", 30*time.Second)

	v.SetDefault("extractor.weights.name", 0.2)
	v.SetDefault("extractor.weights.description", 0.2)
	v.SetDefault("extractor.weights.payment", 0.3)
	v.SetDefault("extractor.weights.eligibility", 0.2)
	v.SetDefault("extractor.weights.deadline", 0.1)

	v.SetDefault("pdf.dir", "data/pdfs")
	v.SetDefault("pdf.max_concurrent", 3)
	v.SetDefault("pdf.delay", time.Second)
	v.SetDefault("pdf.timeout", 60*time.Second)

	v.SetDefault("tier1.nass.base_url", "https://quickstats.nass.usda.gov/api/api_GET/")
	v.SetDefault("tier1.ewg.base_url", "https://farm.ewg.org/search.php")
	v.SetDefault("tier1.state", "ND")
	v.SetDefault("tier1.commodities", []string{"CORN", "SOYBEANS", "WHEAT", "BARLEY", "SUNFLOWER"})
	v.SetDefault("tier1.years", []int{2018, 2019, 2020, 2021, 2022, 2023})
	v.SetDefault("tier1.delay", time.Second)

	v.SetDefault("pipeline.run_tier1", true)
	v.SetDefault("pipeline.run_discovery", true)
	v.SetDefault("pipeline.run_extraction", true)
	v.SetDefault("pipeline.run_pdf", true)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler max depth must not be negative")
	}
	if c.Pipeline.RunDiscovery && len(c.Crawler.Seeds) == 0 {
		return fmt.Errorf("discovery is enabled but no seeds are configured")
	}
	if c.PDF.MaxConcurrent <= 0 {
		return fmt.Errorf("pdf max concurrent must be positive")
	}
	for name, w := range map[string]float64{
		"name":        c.Extractor.Weights.Name,
		"description": c.Extractor.Weights.Description,
		"payment":     c.Extractor.Weights.Payment,
		"eligibility": c.Extractor.Weights.Eligibility,
		"deadline":    c.Extractor.Weights.Deadline,
	} {
		if w < 0 {
			return fmt.Errorf("extractor weight %s must not be negative", name)
		}
	}
	return nil
}
