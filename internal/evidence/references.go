package evidence

import (
	"path"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

var ataChapterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ATA[:\s]*(\d{2})[-\s](\d{2})`),
	regexp.MustCompile(`(?i)ATA Chapter[:\s]*(\d{2})`),
	regexp.MustCompile(`(?i)ATA[:\s]*(\d{2})\b`),
}

// ExtractATAChapter returns the first ATA chapter mentioned in text as
// "ATA 24-30" or "ATA 24", or "" when none is present.
func ExtractATAChapter(text string) string {
	for _, p := range ataChapterPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 2 {
			return "ATA " + m[1] + "-" + m[2]
		}
		return "ATA " + m[1]
	}
	return ""
}

const maxReferences = 15

var manualReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)AMM[-\s]\d{2}[-\s]\d{2}[-\s]\d{2,4}`),
	regexp.MustCompile(`(?i)AMP[-\s]\d{2}[-\s]\d{2}[-\s]\d{2,4}`),
	regexp.MustCompile(`(?i)AWD[-\s]\d{2}[-\s]\d{2}[-\s]\d{2,4}`),
	regexp.MustCompile(`(?i)IPD[-\s][A-Z0-9-]+`),
	regexp.MustCompile(`(?i)FIM[-\s]\d{2}[-\s]\d{2}`),
	regexp.MustCompile(`(?i)IETP[-\s]AW139[-\s][A-Z0-9-]+`),
	regexp.MustCompile(`(?i)CMM[-\s]\d{2}[-\s]\d{2}`),
}

// ExtractReferences returns up to 15 unique manual references (AMM, AMP,
// AWD, IPD, FIM, IETP, CMM) upper-cased with spaces replaced by hyphens.
// References are grouped by pattern in the order above.
func ExtractReferences(text string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, p := range manualReferencePatterns {
		for _, m := range p.FindAllString(text, -1) {
			ref := strings.ReplaceAll(strings.ToUpper(m), " ", "-")
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	if len(refs) > maxReferences {
		refs = refs[:maxReferences]
	}
	return refs
}

var (
	shortDMCPattern      = regexp.MustCompile(`(?i)\d{2}-[A-Z]-\d{2}-\d{2}`)
	procedureStepPattern = regexp.MustCompile(`(?m)^[ \t]*(\d+)\.[ \t]*(.*)$`)
	safetyTerms          = []string{"caution", "warning", "note:", "safety"}
)

// HasDMCReference reports whether text carries anything shaped like the
// leading part of a data module code (e.g. 39-A-24-31).
func HasDMCReference(text string) bool { return shortDMCPattern.MatchString(text) }

// HasProcedureSteps reports whether text contains a line starting with a
// step number such as "1.".
func HasProcedureSteps(text string) bool { return procedureStepPattern.MatchString(text) }

// HasSafetyNote reports whether text contains caution, warning or safety
// wording.
func HasSafetyNote(text string) bool { return containsAny(normalize(text), safetyTerms) }

// ExtractProcedureSteps returns the text of every numbered top-level step
// in order of appearance. Steps without text are skipped.
func ExtractProcedureSteps(text string) []string {
	var steps []string
	for _, m := range procedureStepPattern.FindAllStringSubmatch(text, -1) {
		if s := strings.TrimSpace(m[2]); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

// ExtractDMCCodes returns the unique data module codes found in text,
// upper-cased, in order of appearance.
func ExtractDMCCodes(text string) []string {
	matches := dmcPattern.FindAllString(text, -1)
	for i := range matches {
		matches[i] = strings.ToUpper(matches[i])
	}
	return dedupe(matches)
}

// DocumentIdentifier derives the display identifier of a manual document
// from its path: the base name without the "DMC-" prefix and the .xml or
// .pdf extension.
func DocumentIdentifier(docPath string) string {
	base := path.Base(strings.ReplaceAll(docPath, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	for _, ext := range []string{".xml", ".XML", ".pdf", ".PDF"} {
		base = strings.TrimSuffix(base, ext)
	}
	if len(base) >= 4 && strings.EqualFold(base[:4], "dmc-") {
		base = base[4:]
	}
	return base
}

// NearestReference finds the candidate closest to ref by edit distance.
// Candidates are compared on their embedded DMC when one is present and
// otherwise on a prefix of the same length as ref. It returns "" and -1
// when there are no candidates.
func NearestReference(ref string, candidates []string) (string, int) {
	want := strings.ToUpper(ref)
	best, bestDist := "", -1
	for _, c := range candidates {
		key := strings.ToUpper(c)
		if m := dmcPattern.FindString(key); m != "" {
			key = m
		} else if len(key) > len(want) {
			key = key[:len(want)]
		}
		d := levenshtein.ComputeDistance(want, key)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}
