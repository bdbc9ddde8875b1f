// Package query extracts request parameters hidden in free-text questions
// and cleans up model output scaffolding.
package query

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultTopK is the result count used when a query carries no numeric hint.
const DefaultTopK = 3

// maxTopK caps user-supplied hints so a query cannot request an unbounded
// result set from the index or the SQL LIMIT clause.
const maxTopK = 20

var topKPatterns = []*regexp.Regexp{
	regexp.MustCompile(`top\s+(\d+)`),
	regexp.MustCompile(`first\s+(\d+)`),
	regexp.MustCompile(`show\s+me\s+(\d+)`),
	regexp.MustCompile(`give\s+me\s+(\d+)`),
	regexp.MustCompile(`list\s+(\d+)`),
	regexp.MustCompile(`(\d+)\s+items?`),
	regexp.MustCompile(`(\d+)\s+products?`),
	regexp.MustCompile(`(\d+)\s+outlets?`),
}

// TopK returns the result count requested in the query ("top 5", "show me 2
// outlets", ...), or DefaultTopK when no hint is present. Hints outside
// [1, maxTopK] fall back to the default.
func TopK(q string) int {
	lower := strings.ToLower(q)
	for _, p := range topKPatterns {
		m := p.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > maxTopK {
			return DefaultTopK
		}
		return n
	}
	return DefaultTopK
}

var answerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)Final Refined Answer:\s*(.+)`),
	regexp.MustCompile(`(?is)Answer:\s*(.+)`),
	regexp.MustCompile(`(?is)Summary:\s*(.+)`),
	regexp.MustCompile(`(?is)Based on the information:\s*(.+)`),
}

// CleanAnswer strips leading "Answer:"/"Summary:"-style scaffolding that chat
// models sometimes emit around the actual response text.
func CleanAnswer(response string) string {
	for _, p := range answerPatterns {
		if m := p.FindStringSubmatch(response); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return strings.TrimSpace(response)
}
