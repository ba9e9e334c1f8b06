// Package htmltext renders markup down to the plain text a reader would see,
// close to the browser's innerText. Script, style and head content is
// dropped and block boundaries become newlines so keyword heuristics can
// match across element edges.
package htmltext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "li": {}, "tr": {},
	"br": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"table": {}, "ul": {}, "ol": {}, "header": {}, "footer": {}, "nav": {},
}

var skipTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "head": {}, "iframe": {},
}

var blankRuns = regexp.MustCompile(`\n{2,}`)
var spaceRuns = regexp.MustCompile(`[ \t]+`)

// FromString parses markup and returns its visible text. Malformed markup is
// handled by the parser's error recovery; the result is never an error, at
// worst an empty string.
func FromString(markup string) string {
	node, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	var b strings.Builder
	walk(node, &b)
	return normalize(b.String())
}

func walk(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if _, skip := skipTags[n.Data]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}
	if n.Type == html.ElementNode {
		if _, block := blockTags[n.Data]; block {
			b.WriteByte('\n')
		}
	}
}

func normalize(s string) string {
	s = spaceRuns.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
