package evidence

import (
	"regexp"
	"strings"
)

var (
	bracketPattern    = regexp.MustCompile(`\[.*?\]`)
	ataTokenPattern   = regexp.MustCompile(`ata\s*\d+`)
	airframeIDPattern = regexp.MustCompile(`aw139|s/n:?\s*\d+`)
	queryWordPattern  = regexp.MustCompile(`\b[a-z]{4,}\b`)
)

var queryStopWords = map[string]struct{}{
	"does": {}, "have": {}, "been": {}, "with": {}, "that": {}, "this": {}, "from": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "there": {}, "their": {}, "about": {}, "would": {},
	"could": {}, "should": {}, "during": {}, "before": {}, "after": {}, "helicopter": {},
	"aircraft": {}, "system": {}, "problem": {}, "issue": {}, "fault": {}, "check": {},
}

// QueryKeywords returns the significant words of a query in first-seen
// order: lowercase words of four or more letters, excluding stop words,
// bracketed decorations, ATA tokens, the type designator and serial numbers.
func QueryKeywords(query string) []string {
	q := normalize(query)
	q = bracketPattern.ReplaceAllString(q, "")
	q = ataTokenPattern.ReplaceAllString(q, "")
	q = airframeIDPattern.ReplaceAllString(q, "")

	seen := make(map[string]struct{})
	var out []string
	for _, w := range queryWordPattern.FindAllString(q, -1) {
		if _, stop := queryStopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// KeywordOverlap returns how many query keywords occur in the diagnosis
// and how many keywords the query has.
func KeywordOverlap(query, diagnosis string) (matched, total int) {
	keywords := QueryKeywords(query)
	d := normalize(diagnosis)
	for _, kw := range keywords {
		if strings.Contains(d, kw) {
			matched++
		}
	}
	return matched, len(keywords)
}
