package units

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

// GetTemplateFuncMap returns the function map available to diagnosis
// prompt templates.
//
// The returned FuncMap is safe for concurrent use. Functions never panic
// and return safe defaults on bad input.
//
//	tmpl, err := template.New("prompt").Funcs(GetTemplateFuncMap()).Parse(config.PromptTemplate)
func GetTemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		// add converts 0-based indexes to 1-based.
		// Template usage: {{add $i 1}}
		"add": func(a, b int) int {
			return a + b
		},

		// truncate limits s to length runes, adding "..." when it cuts.
		// Template usage: {{truncate $d.Content 1500}}
		"truncate": truncateText,

		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"trim":  strings.TrimSpace,

		// join concatenates elements with sep between them.
		// Template usage: {{join .References ", "}}
		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},

		// percent renders a similarity in [0,1] as a whole percentage.
		// Template usage: {{percent $d.SimilarityScore}}
		"percent": func(f float64) string {
			if f != f || f < 0 {
				f = 0
			}
			return fmt.Sprintf("%.0f%%", f*100)
		},

		// docID returns the manual identifier of a document path.
		// Template usage: {{docID $d.DocPath}}
		"docID": evidence.DocumentIdentifier,
	}
}

// truncateText returns at most length runes of s. When s is cut and
// length allows it, the last three runes become "...".
func truncateText(s string, length int) string {
	if length <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	keep := length
	suffix := ""
	if length > 3 {
		keep = length - 3
		suffix = "..."
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + suffix
		}
		n++
	}
	return s + suffix
}
