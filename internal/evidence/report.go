package evidence

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

const (
	maxPartNumbers = 10
	maxLikely      = 5
	maxFallback    = 3
	maxTests       = 6

	partLocation   = "See maintenance manual for location"
	partAction     = "INSPECT"
	causeReasoning = "Based on symptom analysis and documentation match"
	testExpected   = "Verify per maintenance manual specifications"
)

var partNumberRules = []struct {
	pattern  *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)\b(3G\d{4}[A-Z0-9-]+)\b`), "AW139 Component"},
	{regexp.MustCompile(`(?i)\b(\d{3}-\d{4}-\d{2}-\d{2})\b`), "Assembly Part"},
	{regexp.MustCompile(`(?i)\b(109-\d{4}-\d{2}-\d{2})\b`), "Honeywell Component"},
	{regexp.MustCompile(`(?i)P/N[:\s]*([A-Z0-9-]{6,})`), "Identified Part"},
	{regexp.MustCompile(`(?i)\b([A-Z]{2,3}\d{5,}[A-Z0-9-]*)\b`), "Aircraft Part"},
}

// ExtractPartNumbers returns up to ten unique part numbers found in text,
// each tagged with the category of the rule that matched first.
func ExtractPartNumbers(text string) []domain.AffectedPart {
	var parts []domain.AffectedPart
	seen := make(map[string]struct{})
	for _, r := range partNumberRules {
		for _, m := range r.pattern.FindAllStringSubmatch(text, -1) {
			pn := strings.ToUpper(m[1])
			if _, ok := seen[pn]; ok || len(pn) < 6 {
				continue
			}
			seen[pn] = struct{}{}
			parts = append(parts, domain.AffectedPart{
				PartNumber:  pn,
				Description: r.category,
				Location:    partLocation,
				Action:      partAction,
			})
		}
	}
	if len(parts) > maxPartNumbers {
		parts = parts[:maxPartNumbers]
	}
	return parts
}

var (
	percentFirstPattern = regexp.MustCompile(`(\d{1,3})\s*%[:\s]*([^.\n]+)`)
	percentLastPattern  = regexp.MustCompile(`([^.\n]+)\s*\((\d{1,3})\s*%\)`)

	causeKeywords = []struct {
		keyword     string
		cause       string
		probability int
	}{
		{"electrical", "Electrical Connection Issue", 30},
		{"component", "Component Failure", 35},
		{"wiring", "Wiring Fault", 25},
		{"corrosion", "Corrosion", 15},
		{"wear", "Mechanical Wear", 20},
		{"sensor", "Sensor Malfunction", 25},
		{"connector", "Connector Issue", 20},
	}
)

// ExtractLikelyCauses returns up to five candidate causes ordered by
// descending probability. Causes are read from "NN% cause" and
// "cause (NN%)" phrases; when none qualify, up to three keyword-derived
// causes are used instead.
func ExtractLikelyCauses(text string) []domain.LikelyCause {
	var causes []domain.LikelyCause

	add := func(cause, prob string) {
		p, err := strconv.Atoi(prob)
		if err != nil || p < 5 || p > 100 {
			return
		}
		cause = strings.TrimSpace(cause)
		if utf8.RuneCountInString(cause) <= 10 {
			return
		}
		causes = append(causes, domain.LikelyCause{
			Cause:       truncateRunes(cause, 100),
			Probability: p,
			Reasoning:   causeReasoning,
		})
	}

	for _, m := range percentFirstPattern.FindAllStringSubmatch(text, -1) {
		add(m[2], m[1])
	}
	for _, m := range percentLastPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}

	if len(causes) == 0 {
		lower := normalize(text)
		for _, k := range causeKeywords {
			if len(causes) == maxFallback {
				break
			}
			if strings.Contains(lower, k.keyword) {
				causes = append(causes, domain.LikelyCause{
					Cause:       k.cause,
					Probability: k.probability,
					Reasoning:   causeReasoning,
				})
			}
		}
	}

	sort.SliceStable(causes, func(i, j int) bool {
		return causes[i].Probability > causes[j].Probability
	})
	if len(causes) > maxLikely {
		causes = causes[:maxLikely]
	}
	return causes
}

var (
	sentenceSplitPattern = regexp.MustCompile(`[.!?]`)
	testReferencePattern = regexp.MustCompile(`(?i)(AMP|AWD|AMM)[-\s]?\d{2}[-\s]?\d{2}`)
	testKeywords         = []string{"test", "check", "verify", "inspect", "measure", "continuity"}
)

// ExtractRecommendedTests returns up to six test steps taken from sentences
// that ask for a test, check or inspection. When the text has none, three
// default steps for the given ATA chapter are returned.
func ExtractRecommendedTests(text, ata string) []domain.RecommendedTest {
	var tests []domain.RecommendedTest
	for _, sentence := range sentenceSplitPattern.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if utf8.RuneCountInString(sentence) <= 20 || !containsAny(normalize(sentence), testKeywords) {
			continue
		}

		ref := strings.ToUpper(testReferencePattern.FindString(sentence))
		if ref == "" {
			ref = "AMP-XX-XX"
			if ata != "" {
				ref = "AMP-" + strings.ReplaceAll(ata, "ATA ", "") + "-00"
			}
		}

		tests = append(tests, domain.RecommendedTest{
			Step:           len(tests) + 1,
			Description:    truncateRunes(sentence, 200),
			Reference:      ref,
			ExpectedResult: testExpected,
		})
		if len(tests) == maxTests {
			break
		}
	}
	if len(tests) > 0 {
		return tests
	}
	return defaultTests(ata)
}

func defaultTests(ata string) []domain.RecommendedTest {
	code := "XX"
	if ata != "" {
		code = strings.ReplaceAll(ata, "ATA ", "")
	}
	return []domain.RecommendedTest{
		{
			Step:           1,
			Description:    "Perform visual inspection of " + ata + " components",
			Reference:      "AMP-" + code + "-00-10",
			ExpectedResult: "No visible damage or abnormalities",
		},
		{
			Step:           2,
			Description:    "Verify electrical continuity on associated circuits",
			Reference:      "AWD-" + code + "-00-20",
			ExpectedResult: "Continuity within specifications",
		},
		{
			Step:           3,
			Description:    "Check connector pins for corrosion or damage",
			Reference:      "AMM-" + code + "-10-00",
			ExpectedResult: "Pins clean and properly seated",
		},
	}
}

// Extract runs every report extractor over the final diagnosis text.
// fallbackRefs are used when the text carries no manual reference; at most
// ten of them are kept.
func Extract(text, ata string, fallbackRefs []string) domain.Extraction {
	refs := ExtractReferences(text)
	if len(refs) == 0 && len(fallbackRefs) > 0 {
		refs = append([]string(nil), fallbackRefs[:min(len(fallbackRefs), 10)]...)
	}
	return domain.Extraction{
		AffectedParts:    ExtractPartNumbers(text),
		LikelyCauses:     ExtractLikelyCauses(text),
		RecommendedTests: ExtractRecommendedTests(text, ata),
		References:       refs,
	}
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
