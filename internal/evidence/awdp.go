package evidence

import (
	"regexp"
	"strings"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

// Fallback texts used when wiring diagram evidence has no concrete reference.
const (
	AWDPNotAvailable      = "Not Available"
	AWDPReferencedInProc  = "Referenced in procedure"
	AWDPSeeReferencedDocs = "See wiring data in referenced documents"
)

const maxAWDPReferences = 3

var (
	awdpDocIndicators = []string{
		"awdp", "wiring data", "wiring diagram", "schematic", "circuit diagram", "electrical diagram",
	}
	awdpBodyIndicators      = []string{"awdp", "wiring diagram", "schematic", "circuit diagram"}
	awdpSecondaryIndicators = []string{"wiring", "schematic", "circuit", "diagram", "connector", "pin"}

	awdpReferencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)30-[A-Z]-\d{2}-\d{2}-\d{2}-\d{2}[A-Z]-\d{3}[A-Z]-[A-Z]`),
		regexp.MustCompile(`(?i)39-[A-Z]-AWDP-\d{2}-[A-Z0-9X-]+`),
		regexp.MustCompile(`(?i)\d{2}-[A-Z]-\d{2}-\d{2}-\d{2}-\d{2}[A-Z]-\d{3}[A-Z]-[A-Z]`),
	}
)

// DetectAWDP scans the retrieved documents and the diagnosis body for
// wiring diagram evidence and collects up to three unique references.
func DetectAWDP(docs []domain.RetrievedDocument, body string) domain.AWDPInfo {
	var (
		found bool
		refs  []string
	)

	for _, doc := range docs {
		combined := doc.Content + " " + doc.DocPath
		if !containsAny(normalize(combined), awdpDocIndicators) {
			continue
		}
		found = true
		for _, p := range awdpReferencePatterns {
			refs = append(refs, p.FindAllString(combined, -1)...)
		}
		if len(refs) == 0 {
			refs = append(refs, AWDPReferencedInProc)
		}
	}

	for _, p := range awdpReferencePatterns {
		if m := p.FindAllString(body, -1); len(m) > 0 {
			refs = append(refs, m...)
			found = true
		}
	}

	if !found && containsAny(normalize(body), awdpBodyIndicators) {
		found = true
		refs = append(refs, AWDPReferencedInProc)
	}

	return newAWDPInfo(found, refs, false)
}

// SecondaryAWDP inspects the results of the dedicated wiring diagram search.
// The first document mentioning wiring vocabulary wins; ok is false when no
// document qualifies.
func SecondaryAWDP(docs []domain.RetrievedDocument) (domain.AWDPInfo, bool) {
	for _, doc := range docs {
		if !containsAny(normalize(doc.Content), awdpSecondaryIndicators) {
			continue
		}
		ref := AWDPSeeReferencedDocs
		if m := awdpReferencePatterns[0].FindString(doc.Content + " " + doc.DocPath); m != "" {
			ref = m
		}
		return newAWDPInfo(true, []string{ref}, true), true
	}
	return domain.AWDPInfo{Reference: AWDPNotAvailable}, false
}

// SecondaryAWDPQuery builds the query text of the wiring diagram search.
func SecondaryAWDPQuery(ataCode, configCode, configName string) string {
	q := "wiring diagram schematic circuit " + ataCode + " AWDP"
	if configCode != "" {
		q += " " + configCode + " " + configName
	}
	return q
}

func newAWDPInfo(found bool, refs []string, secondary bool) domain.AWDPInfo {
	unique := dedupe(refs)
	if len(unique) > maxAWDPReferences {
		unique = unique[:maxAWDPReferences]
	}
	info := domain.AWDPInfo{
		Found:      found,
		References: unique,
		Secondary:  secondary,
		Reference:  AWDPNotAvailable,
	}
	if len(unique) > 0 {
		info.Reference = strings.Join(unique, ", ")
	}
	return info
}

// dedupe returns the unique values of in, keeping first-seen order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
