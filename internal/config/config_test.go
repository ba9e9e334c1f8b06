package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Empty(t, cfg.Database.DSN)
	require.Equal(t, 2, cfg.Crawler.MaxDepth)
	require.Equal(t, 2*time.Second, cfg.Crawler.Delay)
	require.Equal(t, 3, cfg.Crawler.MinIndicators)
	require.InDelta(t, 0.3, cfg.Extractor.Weights.Payment, 1e-9)
	require.Equal(t, 3, cfg.PDF.MaxConcurrent)
	require.Len(t, cfg.Tier1.Commodities, 5)
	require.Len(t, cfg.Tier1.Years, 6)
	require.True(t, cfg.Pipeline.RunDiscovery)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
crawler:
  max_depth: 1
  seeds:
    - https://example.gov/programs
database:
  dsn: postgres://localhost/harvester
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, 1, cfg.Crawler.MaxDepth)
	require.Equal(t, []string{"https://example.gov/programs"}, cfg.Crawler.Seeds)
	require.Equal(t, "postgres://localhost/harvester", cfg.Database.DSN)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HARVESTER_SERVER_PORT", "7070")
	t.Setenv("HARVESTER_TIER1_NASS_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "secret", cfg.Tier1.NASS.APIKey)
}

func TestValidate_Rejects(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Crawler.MaxDepth = -1
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Crawler.Seeds = nil
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Extractor.Weights.Payment = -0.1
	require.Error(t, bad.Validate())
}
