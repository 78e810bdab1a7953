package vectorstore

import (
	"strings"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

// trainingFallbackSize bounds the documents searched when a training
// material filter matches nothing.
const trainingFallbackSize = 10

var trainingKeywords = map[domain.TrainingMaterial][]string{
	domain.TrainingPrimusEpic: {"primus", "epic", "avionics", "mfd", "pfd", "display unit", "cockpit display"},
	domain.TrainingPT6C67CD:   {"pt6c", "67cd", "engine", "turbine", "compressor", "turboshaft", "n1", "n2", "t5", "itt"},
	domain.TrainingAirframe:   {"airframe", "fuselage", "structure", "cabin", "tail boom", "landing gear", "skin"},
}

// FilterDocuments narrows docs to the manuals selected by f.
//
// Training material filters keep documents whose text or path mentions one
// of the material's keywords and fall back to the first ten documents.
// ATA filters keep documents whose path contains "-<chapter>-" and fall
// back to every document.
func FilterDocuments(docs []Document, f domain.ManualFilter) []Document {
	switch f.Kind {
	case domain.FilterTrainingMaterial:
		keywords := trainingKeywords[f.TrainingMaterial()]
		var out []Document
		for _, d := range docs {
			text, p := strings.ToLower(d.Text), strings.ToLower(d.DocPath)
			for _, kw := range keywords {
				if strings.Contains(text, kw) || strings.Contains(p, kw) {
					out = append(out, d)
					break
				}
			}
		}
		if len(out) == 0 {
			return docs[:min(len(docs), trainingFallbackSize)]
		}
		return out

	case domain.FilterATA:
		marker := "-" + f.Code + "-"
		var out []Document
		for _, d := range docs {
			if strings.Contains(d.DocPath, marker) {
				out = append(out, d)
			}
		}
		if len(out) == 0 {
			return docs
		}
		return out

	default:
		return docs
	}
}

var (
	startQueryIndicators = []string{"start", "starting", "does not start", "will not start", "not starting", "wont start"}
	awdpQueryTerms       = []string{"electrical", "wiring", "wire", "connector", "pin", "circuit"}
	awdpInjectTerms      = []string{"generator", "starter", "electrical", "wiring", "connector"}
)

// KeywordBoost returns the score adjustment for a document given the
// query. Start problems favour start sequence and fault isolation
// documents and penalise overheat documents the query does not mention.
// Wiring diagrams are favoured for electrical, generator and fault
// queries.
func KeywordBoost(query, docText string) float64 {
	q := strings.ToLower(query)
	d := strings.ToLower(docText)
	var boost float64

	if strings.Contains(q, "does not start") && strings.Contains(d, "does not start") {
		boost += 0.15
	}
	if strings.Contains(q, "not starting") && strings.Contains(d, "not starting") {
		boost += 0.15
	}
	if strings.Contains(q, "will not start") && (strings.Contains(d, "will not start") || strings.Contains(d, "does not start")) {
		boost += 0.15
	}

	if containsAny(q, startQueryIndicators) {
		if containsAny(d, []string{"start sequence", "start cycle", "starting system"}) {
			boost += 0.12
		}
		if strings.Contains(d, "starter generator") {
			boost += 0.10
		}
		if strings.Contains(d, "engine start") {
			boost += 0.08
		}
		if containsAny(d, []string{"gen hot", "overheat", "temperature"}) &&
			!containsAny(q, []string{"hot", "overheat", "temperature"}) {
			boost -= 0.12
		}
	}

	if strings.Contains(d, "fault isolation") {
		if strings.Contains(q, "start") && (strings.Contains(d, "start") || strings.Contains(d, "crank")) {
			boost += 0.10
		}
		if strings.Contains(q, "hot") && strings.Contains(d, "hot") {
			boost += 0.10
		}
	}

	if containsAny(d, []string{"awdp", "wiring diagram", "wiring data"}) {
		if containsAny(q, awdpQueryTerms) {
			boost += 0.12
		}
		if strings.Contains(q, "generator") || strings.Contains(q, "starter") {
			boost += 0.08
		}
		if containsAny(q, []string{"fault", "does not", "not working"}) {
			boost += 0.06
		}
	}
	return boost
}

// NeedsWiringDiagram reports whether a query warrants injecting a wiring
// diagram document into the results.
func NeedsWiringDiagram(query string) bool {
	return containsAny(strings.ToLower(query), awdpInjectTerms)
}

// IsWiringDiagram reports whether d is, or cites, a wiring diagram. Only
// the first 1000 bytes of text are inspected.
func IsWiringDiagram(d Document) bool {
	p := strings.ToLower(d.DocPath)
	text := d.Text
	if len(text) > 1000 {
		text = text[:1000]
	}
	text = strings.ToLower(text)
	return strings.Contains(p, "39-a-awdp") || strings.Contains(text, "39-a-awdp") || strings.Contains(text, "wiring diagram")
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
