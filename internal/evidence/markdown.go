package evidence

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

type rewrite struct {
	pattern *regexp.Regexp
	repl    string
}

// Rewrites applied before emphasis stripping.
var markdownHeaderRewrites = []rewrite{
	{regexp.MustCompile(`={2,}\s*`), ""},
	{regexp.MustCompile(`(?m)^\s*#{1,6}\s*`), ""},
	{regexp.MustCompile(`([.!?-])\s*#{1,6}\s+`), "$1 "},
	{regexp.MustCompile(`(?s)\*\*\*(.+?)\*\*\*`), "$1"},
	{regexp.MustCompile(`(?s)\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`(?s)__(.+?)__`), "$1"},
}

// Rewrites applied after emphasis stripping, in order.
var markdownBodyRewrites = []rewrite{
	{regexp.MustCompile(`\*{2,}`), ""},
	{regexp.MustCompile(`(?m)^\s*[-]{2,}\s*$`), ""},
	{regexp.MustCompile(`(?m)^\s*[_]{3,}\s*$`), ""},
	{regexp.MustCompile("`([^`]+)`"), "$1"},
	{regexp.MustCompile("```[^`]*```"), ""},
	{regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`), "$1"},
	{regexp.MustCompile(`!\[[^\]]*\]\([^\)]+\)`), ""},
	{regexp.MustCompile(`"([^"]{10,})"`), "$1"},
	{regexp.MustCompile(`(?m)^\s*[-*+]\s+`), "  "},
	{regexp.MustCompile(`\n+\s*(\d+)\.\s+`), "\n\n${1}. "},
	{regexp.MustCompile(`\n+\s*(\d+)\.(\d+)\.\s+`), "\n   ${1}.${2}. "},
	{regexp.MustCompile(`\n+\s*(\d+)\.(\d+)\.(\d+)\.\s+`), "\n      ${1}.${2}.${3}. "},
	{regexp.MustCompile(`([^\n])\s+(\d)\.\s+([A-Z])`), "${1}\n\n${2}. ${3}"},
	{regexp.MustCompile(`([^\n])\s+(\d+\.\d+)\.\s+([A-Z])`), "${1}\n   ${2}. ${3}"},
	{
		regexp.MustCompile(`(^|[^\n])(PROCEDURE|PREREQUISITES|SUPPORT EQUIPMENT|DMC Reference|REQUIREMENTS AFTER|SENIOR TECHNICIAN NOTE):`),
		"${1}\n\n${2}:",
	},
	{regexp.MustCompile(`TPD_PSE;(\d+);;;?`), "(PSE Ref: $1)"},
}

var (
	psePairPattern = regexp.MustCompile(`\(PSE Ref: \d+\)\s*\(PSE Ref: \d+\)`)

	whitespaceRewrites = []rewrite{
		{regexp.MustCompile(`\n{3,}`), "\n\n"},
		{regexp.MustCompile(`(?m)^\s+$`), ""},
		{regexp.MustCompile(` {2,}`), " "},
		{regexp.MustCompile(`^\n+`), ""},
	}
)

// CleanMarkdown strips markdown decoration from generated text and lays
// numbered steps and section headers out on their own lines.
func CleanMarkdown(text string) string {
	if text == "" {
		return text
	}
	s := applyRewrites(text, markdownHeaderRewrites)
	s = stripEmphasis(s, '*')
	s = stripEmphasis(s, '_')
	s = applyRewrites(s, markdownBodyRewrites)
	s = psePairPattern.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(m, ") (", ", ")
	})
	s = applyRewrites(s, whitespaceRewrites)
	return strings.TrimSpace(s)
}

func applyRewrites(s string, rules []rewrite) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.repl)
	}
	return s
}

// stripEmphasis removes single-character emphasis such as *word* or _word_.
// A span must open after a non-word rune, close before a non-word rune,
// stay on one line and contain at least one rune.
func stripEmphasis(s string, delim byte) string {
	if strings.IndexByte(s, delim) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == delim && !wordRuneBefore(s, i) {
			if j := closingDelimiter(s, i, delim); j > 0 {
				b.WriteString(s[i+1 : j])
				i = j + 1
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func closingDelimiter(s string, open int, delim byte) int {
	k := strings.IndexAny(s[open+1:], string(delim)+"\n")
	if k <= 0 {
		return -1
	}
	j := open + 1 + k
	if s[j] != delim {
		return -1
	}
	if r, _ := utf8.DecodeRuneInString(s[j+1:]); j+1 < len(s) && isWordRune(r) {
		return -1
	}
	return j
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

var (
	truncatedPartSuffix = regexp.MustCompile(`(?m)([A-Z0-9-]{5,})\s*\([A-Z]{1,2}$`)
	danglingPartParen   = regexp.MustCompile(`(?m)([A-Z0-9-]{5,})\s*\($`)
)

// ValidatePartNumbers removes the dangling parenthesis left behind when a
// generated part number was cut off at the end of a line.
func ValidatePartNumbers(text string) string {
	if text == "" {
		return text
	}
	text = truncatedPartSuffix.ReplaceAllString(text, "$1")
	return danglingPartParen.ReplaceAllString(text, "$1")
}

var whitespaceRun = regexp.MustCompile(`\s+`)

const (
	sentencesPerParagraph = 3
	docPreviewRunes       = 300
	docSummaryRunes       = 500
	docSummaryCount       = 3
)

// FormatDiagnosis turns a retrieval answer and its documents into readable
// paragraphs of at most three sentences followed by a short summary of the
// supporting documents.
func FormatDiagnosis(answer string, docs []domain.RetrievedDocument, query string) string {
	if answer == "" && len(docs) == 0 {
		return "Unable to retrieve documentation for query: " + query + ". Please verify RAG system connectivity."
	}

	var paragraphs []string
	if answer != "" {
		clean := strings.TrimSpace(whitespaceRun.ReplaceAllString(answer, " "))
		var current []string
		for _, sentence := range splitSentences(clean) {
			if sentence == "" {
				continue
			}
			current = append(current, sentence)
			if len(current) == sentencesPerParagraph {
				paragraphs = append(paragraphs, strings.Join(current, " "))
				current = nil
			}
		}
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
		}
	}

	var previews []string
	for _, doc := range docs[:min(len(docs), docSummaryCount)] {
		if p := strings.TrimSpace(truncateRunes(doc.Content, docPreviewRunes)); p != "" {
			previews = append(previews, p)
		}
	}
	if len(previews) > 0 {
		paragraphs = append(paragraphs,
			"Supporting documentation indicates: "+truncateRunes(strings.Join(previews, " "), docSummaryRunes))
	}

	if len(paragraphs) == 0 {
		return "No detailed diagnosis available."
	}
	return strings.Join(paragraphs, "\n\n")
}

// splitSentences splits whitespace-collapsed text after each '.', '!' or
// '?' that is followed by a space.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				out = append(out, s[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	return append(out, s[start:])
}
