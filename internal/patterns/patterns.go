// Package patterns holds the stateless regex and keyword tables used by page
// classification and field extraction. Everything here is data; the callers
// own the control flow, so the tables can be tuned and tested in isolation.
package patterns

import "regexp"

// PaymentPattern pairs a name with the expression that recognizes one shape
// of payment language. The list is ordered; extraction applies every entry.
type PaymentPattern struct {
	Name string
	Re   *regexp.Regexp
}

// Payment lists the recognized payment phrasings: per-unit dollar rates,
// caps, percentage-of-loss language, and dollar ranges. Range patterns carry
// an optional trailing per-unit suffix so the unit scan sees it.
var Payment = []PaymentPattern{
	{"per_acre", regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*(?:per|/)\s*acre`)},
	{"per_head", regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*(?:per|/)\s*head`)},
	{"per_bushel", regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*(?:per|/)\s*bushel`)},
	{"per_cwt", regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*(?:per|/)\s*(?:cwt|hundredweight)(?:\s*\(cwt\))?`)},
	{"per_ton", regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*(?:per|/)\s*ton`)},
	{"maximum", regexp.MustCompile(`(?i)(?:up to|maximum of?)\s*\$[\d,]+\.?\d*`)},
	{"percent_of_loss", regexp.MustCompile(`(?i)[\d,]+\.?\d*%\s*of\s*(?:losses|costs|expenses|value)`)},
	{"stated_rate", regexp.MustCompile(`(?i)payment rates?\s*(?:is|are|of)?\s*\$[\d,]+\.?\d*`)},
	{"range_to", regexp.MustCompile(`(?i)\$[\d,]+\.?\d*\s*to\s*\$[\d,]+\.?\d*(?:\s*(?:per|/)\s*[a-z]+(?:\s*\([a-z]+\))?)?`)},
	{"range_between", regexp.MustCompile(`(?i)between\s*\$[\d,]+\.?\d*\s*and\s*\$[\d,]+\.?\d*`)},
}

// Deadline lists date-context expressions. Each has exactly one capture
// group holding the date text to parse.
var Deadline = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:deadline|due date|apply by|submit by)[:\s]+([A-Z][a-z]+ \d{1,2},?\s*\d{4})`),
	regexp.MustCompile(`(?i)(?:applications? (?:open|close)s?)[:\s]+([A-Z][a-z]+ \d{1,2},?\s*\d{4})`),
	regexp.MustCompile(`(?i)(?:enrollment period)[:\s]+([A-Z][a-z]+ \d{1,2}.*?through.*?\d{4})`),
	regexp.MustCompile(`(?i)(?:sign.?up|signup) (?:begins|starts|ends)[:\s]+([A-Z][a-z]+ \d{1,2},?\s*\d{4})`),
}

// DollarAmount matches a single dollar figure inside a payment match.
var DollarAmount = regexp.MustCompile(`\$[\d,]+\.?\d*`)

// ParenCode matches a parenthesized all-caps program abbreviation.
var ParenCode = regexp.MustCompile(`\(([A-Z]{2,6})\)`)

// BareCode matches a bare all-caps token considered near the word "program".
var BareCode = regexp.MustCompile(`\b([A-Z]{2,6})\b`)

// CodeDenylist holds acronyms that look like program codes but are agencies
// or file types.
var CodeDenylist = map[string]struct{}{
	"FSA":  {},
	"USDA": {},
	"USA":  {},
	"PDF":  {},
}

// Eligibility matches text that talks about eligibility in any inflection.
var Eligibility = regexp.MustCompile(`(?i)eligib`)

// PaymentUnits is the ordered unit keyword scan applied to payment matches.
// The first hit wins; "%" maps to "percentage" and no hit means "flat_rate".
var PaymentUnits = []string{"acre", "head", "bushel", "cwt", "ton", "animal"}

// UnitPercentage and UnitFlatRate are the derived units with no keyword.
const (
	UnitPercentage = "percentage"
	UnitFlatRate   = "flat_rate"
)

// ProgramIndicators are the page-text signals that a page describes a
// specific program. Classification requires several of these at once.
var ProgramIndicators = []string{
	"eligibility",
	"payment rate",
	"how to apply",
	"deadline",
	"enrollment",
	"program description",
	"benefits",
	"requirements",
}

// ProgramURLKeywords are the path keywords required of a program page URL.
var ProgramURLKeywords = []string{"program", "assistance", "loan", "insurance"}

// FollowURLKeywords gate which same-site links the crawler queues.
var FollowURLKeywords = []string{
	"program", "assistance", "loan", "insurance",
	"conservation", "disaster", "payment", "subsidy",
}

// PaymentTableKeywords flag PDF tables whose header row talks about money.
var PaymentTableKeywords = []string{
	"payment", "rate", "amount", "$", "per acre",
	"subsidy", "cost", "price", "reimbursement",
}

// EligibilityFlagRes back the keyword-derived eligibility booleans.
var (
	FarmOwnershipRe = regexp.MustCompile(`(?i)own|ownership|operator`)
	AcreageRe       = regexp.MustCompile(`(?i)acre|land|farm size`)
	IncomeLimitRe   = regexp.MustCompile(`(?i)income|agi|adjusted gross`)
	ConservationRe  = regexp.MustCompile(`(?i)conservation|environmental`)
)
