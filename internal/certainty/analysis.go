package certainty

import (
	"fmt"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

// System analysis points per signal.
const (
	pointsComponent   = 25
	pointsCausal      = 25
	pointsMechanism   = 20
	pointsLocation    = 15
	pointsFailureMode = 15
)

func (s *Scorer) systemAnalysis(f evidence.Flags) domain.ComponentScore {
	c := domain.ComponentScore{Weight: s.cfg.Weights.SystemAnalysis}

	points := 0
	add := func(ok bool, n int, detail string) {
		if ok {
			points += n
			c.Details = append(c.Details, detail)
		}
	}
	add(f.SpecificComponent, pointsComponent, "Specific component identified")
	add(f.CausalReasoning, pointsCausal, "Causal reasoning present")
	add(f.Mechanism, pointsMechanism, "Mechanism/system explained")
	add(f.Location, pointsLocation, "Specific location referenced")
	add(f.FailureMode, pointsFailureMode, "Failure mode identified")

	c.Score = clampFactor(points)
	if !f.SpecificComponent && !f.Mechanism {
		c.Score = min(c.Score, 30)
		c.Details = append(c.Details, "WARNING: No specific component or mechanism analysis")
	}
	if !f.CausalReasoning {
		c.Score = min(c.Score, 50)
		c.Details = append(c.Details, "WARNING: No causal reasoning (why the problem occurs)")
	}
	return c
}

// evidenceScore maps the weighted evidence counter to a factor value.
func evidenceScore(count int) int {
	switch {
	case count <= 0:
		return 0
	case count <= 2:
		return 20
	case count <= 4:
		return 40
	case count <= 6:
		return 60
	case count <= 9:
		return 80
	default:
		return 100
	}
}

func (s *Scorer) evidenceFactor(f evidence.Flags) domain.ComponentScore {
	return domain.ComponentScore{
		Score:   evidenceScore(f.EvidenceCount),
		Weight:  s.cfg.Weights.Evidence,
		Count:   f.EvidenceCount,
		Details: []string{fmt.Sprintf("Found %d evidences: %v", f.EvidenceCount, f.EvidenceFound)},
	}
}
