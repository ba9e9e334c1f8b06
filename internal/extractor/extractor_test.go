package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const fullProgramPage = `<html>
<head><title>Dairy Margin Coverage | Farm Service Agency</title></head>
<body>
<h1>Dairy Margin Coverage Program</h1>
<p>The Dairy Margin Coverage (DMC) program offers protection to dairy producers when
the difference between the all-milk price and the average feed price falls below
a certain dollar amount selected by the producer.</p>
<div><p>Eligibility: producers must own or operate a dairy operation with an
established production history to participate.</p></div>
<p>Payments range from $4.00 to $9.50 per hundredweight (cwt) depending on coverage level.</p>
<p>Deadline: March 15, 2024</p>
</body>
</html>`

func TestExtract_FullPage(t *testing.T) {
	ex := New(DefaultWeights())
	record := ex.Extract(fullProgramPage, "https://www.fsa.usda.gov/programs/dairy-margin-coverage")

	require.Equal(t, "Dairy Margin Coverage Program", record.Name)
	require.NotNil(t, record.Code)
	require.Equal(t, "DMC", *record.Code)
	require.NotNil(t, record.Description)
	require.Greater(t, len(*record.Description), 100)
	require.NotNil(t, record.EligibilityRaw)
	require.NotNil(t, record.Eligibility)
	require.True(t, record.Eligibility.RequiresFarmOwnership)

	require.NotNil(t, record.PaymentMin)
	require.NotNil(t, record.PaymentMax)
	require.InDelta(t, 4.00, *record.PaymentMin, 1e-9)
	require.InDelta(t, 9.50, *record.PaymentMax, 1e-9)
	require.NotNil(t, record.PaymentUnit)
	require.Equal(t, "cwt", *record.PaymentUnit)

	require.NotNil(t, record.ApplicationEnd)
	require.Equal(t, time.March, record.ApplicationEnd.Month())
	require.Nil(t, record.ApplicationStart, "single date must not set a start")

	require.InDelta(t, 1.0, record.Confidence, 1e-9)
}

func TestExtract_Idempotent(t *testing.T) {
	ex := New(DefaultWeights())
	first := ex.Extract(fullProgramPage, "https://example.gov/programs/dmc")
	second := ex.Extract(fullProgramPage, "https://example.gov/programs/dmc")
	require.Equal(t, first, second)
}

func TestExtract_ConfidenceBounds(t *testing.T) {
	ex := New(DefaultWeights())
	pages := []string{
		"",
		"<html><body></body></html>",
		"not html at all >>>",
		fullProgramPage,
	}
	for _, page := range pages {
		record := ex.Extract(page, "https://example.gov/some-program.html")
		require.GreaterOrEqual(t, record.Confidence, 0.0)
		require.LessOrEqual(t, record.Confidence, 1.0)
	}
}

func TestExtract_PaymentScenario(t *testing.T) {
	ex := New(DefaultWeights())
	record := ex.Extract(
		`<html><body><p>Rates are $4.00 to $9.50 per hundredweight (cwt).</p></body></html>`,
		"https://example.gov/ldp",
	)
	require.NotNil(t, record.PaymentMin)
	require.InDelta(t, 4.00, *record.PaymentMin, 1e-9)
	require.InDelta(t, 9.50, *record.PaymentMax, 1e-9)
	require.Equal(t, "cwt", *record.PaymentUnit)
}

func TestExtract_AbsentFieldsAreNil(t *testing.T) {
	ex := New(DefaultWeights())
	record := ex.Extract("<html><body><p>Nothing useful here.</p></body></html>", "https://example.gov/about-us")

	require.Nil(t, record.Code)
	require.Nil(t, record.Description)
	require.Nil(t, record.EligibilityRaw)
	require.Nil(t, record.Eligibility)
	require.Nil(t, record.PaymentRaw)
	require.Nil(t, record.PaymentMin)
	require.Nil(t, record.PaymentUnit)
	require.Nil(t, record.DeadlineText)
	require.Nil(t, record.ApplicationEnd)
}

func TestExtract_NameFallbacks(t *testing.T) {
	ex := New(DefaultWeights())

	t.Run("title suffix stripped", func(t *testing.T) {
		record := ex.Extract(
			`<html><head><title>Livestock Forage Program | USDA</title></head><body></body></html>`,
			"https://example.gov/lfp",
		)
		require.Equal(t, "Livestock Forage Program", record.Name)
	})

	t.Run("url derived", func(t *testing.T) {
		record := ex.Extract("<html><body></body></html>", "https://example.gov/programs/emergency-livestock-relief.html")
		require.Equal(t, "Emergency Livestock Relief", record.Name)
	})
}

func TestExtractCode_Denylist(t *testing.T) {
	code := extractCode("The agency (USDA) runs this program. The ELAP covers losses.")
	require.NotNil(t, code)
	require.Equal(t, "ELAP", *code)
}

func TestExtractDeadlines_StartAndEnd(t *testing.T) {
	ex := New(DefaultWeights())
	record := ex.Extract(
		`<html><body>
		<p>Applications open: January 2, 2024</p>
		<p>Deadline: August 30, 2024</p>
		</body></html>`,
		"https://example.gov/arc",
	)
	require.NotNil(t, record.ApplicationStart)
	require.NotNil(t, record.ApplicationEnd)
	require.Equal(t, time.January, record.ApplicationStart.Month())
	require.Equal(t, time.August, record.ApplicationEnd.Month())
	require.True(t, record.ApplicationStart.Before(*record.ApplicationEnd))
}
