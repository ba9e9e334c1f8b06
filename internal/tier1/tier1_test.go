package tier1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farmassist/harvester/internal/storage/memory"
)

const quickStatsBody = `{"data":[
  {"state_alpha":"IA","county_name":"","commodity_desc":"CORN","year":2022,
   "short_desc":"CORN, GRAIN - YIELD, MEASURED IN BU / ACRE","Value":"203.5","unit_desc":"BU / ACRE"},
  {"state_alpha":"NE","county_name":"","commodity_desc":"CORN","year":2022,
   "short_desc":"CORN, GRAIN - YIELD, MEASURED IN BU / ACRE","Value":"(D)","unit_desc":"BU / ACRE"}
]}`

func TestNASS_RequiresAPIKey(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	c := NewNASSClient(NASSConfig{BaseURL: server.URL}, memory.NewStore(), zap.NewNop())
	_, err := c.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
	require.Zero(t, hits)
}

func TestNASS_SweepUpsertsRows(t *testing.T) {
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("commodity_desc")+"/"+r.URL.Query().Get("year"))
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.Equal(t, "ND", r.URL.Query().Get("state_alpha"))
		require.Equal(t, "COUNTY", r.URL.Query().Get("agg_level_desc"))
		require.Equal(t, "SURVEY", r.URL.Query().Get("source_desc"))
		w.Write([]byte(quickStatsBody))
	}))
	defer server.Close()

	store := memory.NewStore()
	c := NewNASSClient(NASSConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		Commodities: []string{"CORN", "WHEAT"},
		Years:       []int{2022},
	}, store, zap.NewNop())

	total, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"CORN/2022", "WHEAT/2022"}, queries)
	require.Equal(t, 4, total)
	// The IA and NE rows share everything but state, so both commodities
	// collapse onto the same two natural keys.
	require.Equal(t, 2, store.StatCount())
}

func TestParseNASSValue(t *testing.T) {
	require.InDelta(t, 1234.5, *parseNASSValue("1,234.5"), 1e-9)
	require.Nil(t, parseNASSValue("(D)"))
	require.Nil(t, parseNASSValue(""))
}

const subsidyTableBody = `<html><body><table class="datatable">
<tr><th>Program</th><th>Total Payments</th><th>Recipients</th><th>Average</th></tr>
<tr><td>Livestock Subsidies</td><td>$1,000,000</td><td>2,000</td><td>$500</td></tr>
<tr><td>Conservation Programs</td><td>$3,500,000</td><td>7,000</td><td>$500</td></tr>
</table></body></html>`

func TestEWG_ScrapeYear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2022", r.URL.Query().Get("year"))
		require.Equal(t, "ND", r.URL.Query().Get("state"))
		require.Equal(t, "00000", r.URL.Query().Get("fips"))
		w.Write([]byte(subsidyTableBody))
	}))
	defer server.Close()

	store := memory.NewStore()
	s := NewEWGScraper(EWGConfig{
		BaseURL: server.URL,
		Years:   []int{2022},
	}, store, zap.NewNop())

	total, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Equal(t, 6, store.StatCount())
}

func TestStatsFromEWGRow(t *testing.T) {
	payments := 1000000.0
	recipients := 2000.0
	average := 500.0
	stats := statsFromEWGRow("ND", "Livestock Subsidies", 2022, &payments, &recipients, &average)
	require.Len(t, stats, 3)

	require.Equal(t, "total_payments", stats[0].Metric)
	require.Equal(t, 1000000.0, *stats[0].Value)
	require.Equal(t, "recipient_count", stats[1].Metric)
	require.Equal(t, 2000.0, *stats[1].Value)
	require.Equal(t, "average_payment", stats[2].Metric)
	require.Equal(t, 500.0, *stats[2].Value)
	for _, stat := range stats {
		require.Equal(t, "Livestock Subsidies", stat.Entity)
		require.Equal(t, "ND", stat.State)
	}

	// A withheld cell stays nil instead of zero.
	stats = statsFromEWGRow("ND", "Livestock Subsidies", 2022, &payments, nil, nil)
	require.Nil(t, stats[1].Value)
	require.Nil(t, stats[2].Value)
}

func TestParseCurrencyAndCount(t *testing.T) {
	require.Equal(t, 3500000.0, *parseCurrency("$3,500,000"))
	require.Nil(t, parseCurrency("n/a"))
	require.Equal(t, 7000.0, *parseCount("7,000"))
}
