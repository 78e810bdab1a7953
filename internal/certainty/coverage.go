package certainty

import (
	"fmt"
	"strings"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

// coverageKeywords decide whether a document belongs to a training
// material set. They are matched against the lowercased content and path.
var coverageKeywords = map[domain.TrainingMaterial][]string{
	domain.TrainingPrimusEpic: {"primus", "epic", "avionics", "cmc", "fms"},
	domain.TrainingPT6C67CD:   {"pt6c", "67c", "engine", "turbine", "power plant"},
	domain.TrainingAirframe:   {"airframe", "structure", "fuselage", "cabin"},
}

// documentMatches reports whether doc belongs to the filtered manual.
func documentMatches(doc domain.RetrievedDocument, f domain.ManualFilter) bool {
	switch f.Kind {
	case domain.FilterTrainingMaterial:
		content := strings.ToLower(doc.Content)
		path := strings.ToLower(doc.DocPath)
		for _, kw := range coverageKeywords[f.TrainingMaterial()] {
			if strings.Contains(content, kw) || strings.Contains(path, kw) {
				return true
			}
		}
		return false
	case domain.FilterATA:
		return strings.Contains(strings.ToLower(doc.DocPath), "-"+f.Code+"-")
	default:
		return true
	}
}

func (s *Scorer) coverage(docs []domain.RetrievedDocument, f domain.ManualFilter) domain.ComponentScore {
	c := domain.ComponentScore{Weight: s.cfg.Weights.Coverage}
	n := len(docs)
	if n == 0 {
		c.Details = []string{"CRITICAL: No documents found in RAG"}
		return c
	}

	matching, high := 0, 0
	for _, d := range docs {
		if !documentMatches(d, f) {
			continue
		}
		matching++
		if d.Similarity() > s.cfg.HighRelevance {
			high++
		}
	}

	ratio := float64(matching) / float64(n)
	var detail string
	switch {
	case ratio >= 0.8 && high >= 3:
		c.Score = 100
		detail = fmt.Sprintf("Excellent: %d/%d docs, %d high-relevance", matching, n, high)
	case ratio >= 0.8:
		c.Score = 85
		detail = fmt.Sprintf("Good match ratio but few high-relevance: %d/%d", matching, n)
	case ratio >= 0.5:
		c.Score = 65
		detail = fmt.Sprintf("Moderate: %d/%d docs from selected manual", matching, n)
	case ratio >= 0.2:
		c.Score = 40
		detail = fmt.Sprintf("Weak: %d/%d docs from selected manual", matching, n)
	default:
		c.Score = 15
		detail = fmt.Sprintf("Poor: Only %d/%d docs from selected manual", matching, n)
	}
	c.Details = []string{detail}
	return c
}
