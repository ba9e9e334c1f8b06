// Package extractor turns raw page markup into structured program records
// with a completeness confidence score. Extraction is best effort: a field
// that cannot be found is nil, never an error, and the same input always
// yields the same record.
package extractor

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/farmassist/harvester/internal/catalog"
	"github.com/farmassist/harvester/internal/htmltext"
	"github.com/farmassist/harvester/internal/patterns"
)

// Weights control the confidence contribution of each field group. The sum
// is capped at 1.0. The defaults weigh payment data highest because it is
// the hardest field to find and the most valuable downstream.
type Weights struct {
	Name        float64
	Description float64
	Payment     float64
	Eligibility float64
	Deadline    float64
}

// DefaultWeights returns the standard confidence weighting.
func DefaultWeights() Weights {
	return Weights{
		Name:        0.2,
		Description: 0.2,
		Payment:     0.3,
		Eligibility: 0.2,
		Deadline:    0.1,
	}
}

const (
	descriptionMinLen    = 100
	descriptionScoreLen  = 50
	eligibilityBlockMin  = 50
	eligibilityBlockMax  = 1000
	eligibilityMaxBlocks = 5
	codeContextLen       = 200
)

var (
	titleSuffixRe = regexp.MustCompile(`\s*\|\s*.*$`)
	programWordRe = regexp.MustCompile(`(?i)program`)
)

// Extractor applies the pattern library to one page at a time. It is
// stateless and safe for concurrent use.
type Extractor struct {
	weights Weights
}

// New returns an Extractor with the given confidence weights.
func New(weights Weights) *Extractor {
	return &Extractor{weights: weights}
}

// Extract produces a program record from one page's markup. It never fails;
// malformed markup degrades to URL-derived fields and a warning.
func (e *Extractor) Extract(markup, pageURL string) catalog.ProgramRecord {
	record := catalog.ProgramRecord{SourceURL: pageURL}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		record.Name = nameFromURL(pageURL)
		record.Warnings = append(record.Warnings, "markup parse failed")
		record.Confidence = e.score(record)
		return record
	}
	text := htmltext.FromString(markup)

	record.Name = e.extractName(doc, pageURL)
	record.Code = extractCode(text)
	record.Description = extractDescription(doc)
	record.EligibilityRaw = extractEligibility(doc)
	if record.EligibilityRaw != nil {
		record.Eligibility = parseEligibility(*record.EligibilityRaw)
	}
	e.extractPayment(text, &record)
	e.extractDeadlines(text, &record)
	record.Confidence = e.score(record)
	return record
}

func (e *Extractor) extractName(doc *goquery.Document, pageURL string) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return collapseSpaces(h1)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return collapseSpaces(titleSuffixRe.ReplaceAllString(title, ""))
	}
	return nameFromURL(pageURL)
}

// extractCode looks for a parenthesized all-caps abbreviation anywhere, then
// for bare all-caps tokens in the text immediately following the word
// "program". Agency acronyms are dropped via the denylist.
func extractCode(text string) *string {
	for _, m := range patterns.ParenCode.FindAllStringSubmatch(text, -1) {
		if _, denied := patterns.CodeDenylist[m[1]]; !denied {
			return &m[1]
		}
	}
	sections := programWordRe.Split(text, 3)
	if len(sections) < 2 {
		return nil
	}
	for _, section := range sections[1:] {
		if len(section) > codeContextLen {
			section = section[:codeContextLen]
		}
		for _, m := range patterns.BareCode.FindAllStringSubmatch(section, -1) {
			if _, denied := patterns.CodeDenylist[m[1]]; !denied {
				return &m[1]
			}
		}
	}
	return nil
}

func extractDescription(doc *goquery.Document) *string {
	if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			return &trimmed
		}
	}
	var found *string
	doc.Find("p").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 5 {
			return false
		}
		text := collapseSpaces(strings.TrimSpace(s.Text()))
		if len(text) > descriptionMinLen {
			found = &text
			return false
		}
		return true
	})
	return found
}

// extractEligibility gathers the surrounding context of every element whose
// own text mentions eligibility, windowed to skip boilerplate fragments and
// whole-page dumps. Blocks are joined, not deduplicated.
func extractEligibility(doc *goquery.Document) *string {
	var blocks []string
	doc.Find("div, section, p, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !patterns.Eligibility.MatchString(ownText(s)) {
			return true
		}
		context := s.Parent()
		if context.Length() == 0 {
			context = s
		}
		text := collapseSpaces(strings.TrimSpace(context.Text()))
		if len(text) > eligibilityBlockMin && len(text) < eligibilityBlockMax {
			blocks = append(blocks, text)
		}
		return len(blocks) < eligibilityMaxBlocks
	})
	if len(blocks) == 0 {
		return nil
	}
	joined := strings.Join(blocks, " | ")
	return &joined
}

func parseEligibility(raw string) *catalog.EligibilityFlags {
	return &catalog.EligibilityFlags{
		RequiresFarmOwnership:    patterns.FarmOwnershipRe.MatchString(raw),
		RequiresAcreage:          patterns.AcreageRe.MatchString(raw),
		IncomeLimits:             patterns.IncomeLimitRe.MatchString(raw),
		ConservationRequirements: patterns.ConservationRe.MatchString(raw),
	}
}

func (e *Extractor) extractPayment(text string, record *catalog.ProgramRecord) {
	var matches []string
	for _, p := range patterns.Payment {
		matches = append(matches, p.Re.FindAllString(text, -1)...)
	}
	if len(matches) == 0 {
		return
	}
	raw := strings.Join(matches, " | ")
	record.PaymentRaw = &raw
	record.PaymentRange = &matches[0]

	amounts := dollarAmounts(matches)
	if len(amounts) > 0 {
		minAmount, maxAmount := amounts[0], amounts[0]
		for _, a := range amounts[1:] {
			if a < minAmount {
				minAmount = a
			}
			if a > maxAmount {
				maxAmount = a
			}
		}
		record.PaymentMin = &minAmount
		record.PaymentMax = &maxAmount
	}
	unit := paymentUnit(matches)
	record.PaymentUnit = &unit
}

func dollarAmounts(matches []string) []float64 {
	var amounts []float64
	for _, m := range matches {
		for _, figure := range patterns.DollarAmount.FindAllString(m, -1) {
			cleaned := strings.NewReplacer("$", "", ",", "").Replace(figure)
			amount, err := strconv.ParseFloat(cleaned, 64)
			if err != nil {
				continue
			}
			amounts = append(amounts, amount)
		}
	}
	return amounts
}

func paymentUnit(matches []string) string {
	combined := strings.ToLower(strings.Join(matches, " "))
	for _, unit := range patterns.PaymentUnits {
		if strings.Contains(combined, unit) {
			return unit
		}
	}
	if strings.Contains(combined, "%") {
		return patterns.UnitPercentage
	}
	return patterns.UnitFlatRate
}

// extractDeadlines parses every captured date phrase; unparseable captures
// are discarded with a warning. The latest parsed date is the end date, and
// the earliest becomes the start date only when two or more dates parsed.
func (e *Extractor) extractDeadlines(text string, record *catalog.ProgramRecord) {
	var captures []string
	for _, re := range patterns.Deadline {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			captures = append(captures, m[1])
		}
	}
	if len(captures) == 0 {
		return
	}
	raw := strings.Join(captures, " | ")
	record.DeadlineText = &raw

	var dates []time.Time
	for _, capture := range captures {
		parsed, err := dateparse.ParseAny(capture)
		if err != nil {
			record.Warnings = append(record.Warnings, "unparseable date: "+capture)
			continue
		}
		dates = append(dates, parsed)
	}
	if len(dates) == 0 {
		return
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	end := dates[len(dates)-1]
	record.ApplicationEnd = &end
	if len(dates) > 1 {
		start := dates[0]
		record.ApplicationStart = &start
	}
}

func (e *Extractor) score(record catalog.ProgramRecord) float64 {
	score := 0.0
	if record.Name != "" {
		score += e.weights.Name
	}
	if record.Description != nil && len(*record.Description) > descriptionScoreLen {
		score += e.weights.Description
	}
	if record.PaymentMin != nil || record.PaymentRaw != nil {
		score += e.weights.Payment
	}
	if record.EligibilityRaw != nil {
		score += e.weights.Eligibility
	}
	if record.ApplicationEnd != nil || record.DeadlineText != nil {
		score += e.weights.Deadline
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ownText returns the text held directly by the selection's first node,
// excluding descendants, so container elements do not match on behalf of
// their children.
func ownText(s *goquery.Selection) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func nameFromURL(pageURL string) string {
	segment := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" {
		segment = strings.Trim(u.Path, "/")
	}
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	segment = strings.TrimSuffix(segment, ".html")
	segment = strings.ReplaceAll(segment, "-", " ")
	return titleCase(segment)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
