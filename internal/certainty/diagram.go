package certainty

import (
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

func (s *Scorer) diagramAnalysis(f evidence.Flags, task domain.TaskType, hasAWDP bool) domain.ComponentScore {
	c := domain.ComponentScore{Weight: s.cfg.Weights.DiagramAnalysis}

	var detail string
	switch {
	case task.IsFault():
		switch {
		case hasAWDP && f.AWDPReference:
			c.Score, detail = 100, "AWDP diagram found and referenced in diagnosis"
		case hasAWDP:
			c.Score, detail = 70, "AWDP document found but not explicitly analyzed"
		case f.AWDPReference:
			c.Score, detail = 60, "AWDP referenced but document not in RAG results"
		default:
			c.Score, detail = 20, "WARNING: No AWDP/wiring diagram analysis for fault isolation"
		}
	case task.IsProcedure():
		if f.AMPReference || f.RealDMC {
			c.Score, detail = 100, "Correct manual section referenced for procedure"
		} else {
			c.Score, detail = 40, "Procedure without specific manual reference"
		}
	default:
		if f.HasManualReference() {
			c.Score, detail = 100, "Manual references found"
		} else {
			c.Score, detail = 50, "No specific manual references"
		}
	}
	c.Details = []string{detail}
	return c
}
