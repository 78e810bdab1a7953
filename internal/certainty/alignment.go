package certainty

import (
	"fmt"
	"strings"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

// Query alignment penalties. Each one only lowers the factor.
const (
	alignmentMissingSubsystem = 25
	alignmentGeneric          = 35
	alignmentMismatch         = 40
	alignmentNoKeywords       = 50
)

func keywordAlignment(matched, total int) int {
	ratio := float64(matched) / float64(total)
	switch {
	case ratio >= 0.6:
		return 100
	case ratio >= 0.4:
		return 70
	case ratio >= 0.2:
		return 45
	default:
		return 20
	}
}

func (s *Scorer) queryAlignment(f evidence.Flags) domain.ComponentScore {
	c := domain.ComponentScore{Weight: s.cfg.Weights.QueryAlignment}

	for _, label := range f.MissingSubsystems {
		c.Details = append(c.Details,
			fmt.Sprintf("CRITICAL: Query implies %s but diagnosis does NOT analyze it", label))
	}

	if f.KeywordsTotal > 0 {
		c.Score = keywordAlignment(f.KeywordsMatched, f.KeywordsTotal)
		if c.Score == 20 {
			c.Details = append(c.Details,
				fmt.Sprintf("Weak keyword overlap: %d/%d", f.KeywordsMatched, f.KeywordsTotal))
		}
	} else {
		c.Score = alignmentNoKeywords
	}

	switch {
	case len(f.MissingSubsystems) > 0:
		c.Score = min(c.Score, alignmentMissingSubsystem)
		c.Details = append(c.Details, "SUBSYSTEM PENALTY: Diagnosis missing analysis of "+
			strings.Join(f.MissingSubsystems, ", "))
	case len(f.InferredSubsystems) > 0:
		c.Details = append(c.Details, "Subsystem verified: "+
			strings.Join(f.InferredSubsystems, ", ")+" analyzed in diagnosis")
	}

	if f.Generic {
		c.Score = min(c.Score, alignmentGeneric)
		c.Details = append(c.Details, "PENALTY: Generic troubleshooting without specific component analysis")
	}
	if f.ElectricalMismatch {
		c.Score = min(c.Score, alignmentMismatch)
		c.Details = append(c.Details,
			"PENALTY: Diagnosis suggests electrical checks for likely mechanical problem without analyzing mechanism")
	}

	c.Score = clampFactor(c.Score)
	return c
}
