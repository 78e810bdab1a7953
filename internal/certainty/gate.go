package certainty

import (
	"fmt"
	"strings"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

// capRule is one step of the global cap cascade.
type capRule struct {
	limit  int
	fires  bool
	reason string
}

// applyCaps lowers raw through the cap cascade and appends the reason of
// every cap that fired to applied.
func (s *Scorer) applyCaps(raw float64, f evidence.Flags, task domain.TaskType, hasAWDP bool, applied *[]string) float64 {
	caps := s.cfg.Caps
	fault := task.IsFault()
	missing := strings.Join(f.MissingSubsystems, ", ")

	rules := []capRule{
		{caps.FaultWithoutAWDP, fault && !hasAWDP && !f.AWDPReference,
			"Fault isolation without AWDP/wiring analysis"},
		{caps.Generic, f.Generic,
			"Generic diagnosis without specific component analysis"},
		{caps.NoManualReference, !f.HasManualReference(),
			"No specific manual references (DMC/AMP/AWDP)"},
		{caps.NoComponent, !f.SpecificComponent && !f.RealPartNumber,
			"No specific component or part number identified"},
		{caps.FaultWithoutCausal, fault && !f.CausalReasoning,
			"Fault isolation without causal reasoning"},
		{caps.MissingSubsystem, len(f.MissingSubsystems) > 0,
			"Diagnosis does not analyze required subsystem: " + missing},
		{caps.ElectricalMismatch, f.ElectricalMismatch,
			"Electrical checks for mechanical problem without mechanism analysis"},
	}

	score := raw
	for _, r := range rules {
		if !r.fires || score <= float64(r.limit) {
			continue
		}
		score = float64(r.limit)
		*applied = append(*applied, fmt.Sprintf("CAP %d%%: %s", r.limit, r.reason))
	}
	return score
}

func gateBlockedReason(limit int) string {
	return fmt.Sprintf("CAP %d%%: Does not meet ALL strict criteria for SAFE_TO_PROCEED", limit)
}

// gateFailures returns the unlock conditions that do not hold, in a fixed
// order. An empty result means the score may reach the threshold.
func (s *Scorer) gateFailures(b domain.ScoreBreakdown, f evidence.Flags, task domain.TaskType, hasAWDP bool) []string {
	g := s.cfg.Gate
	var out []string
	if b.SystemAnalysis.Score < g.MinSystemAnalysis {
		out = append(out, fmt.Sprintf("SystemAnalysis %d<%d", b.SystemAnalysis.Score, g.MinSystemAnalysis))
	}
	if b.Coverage.Score < g.MinCoverage {
		out = append(out, fmt.Sprintf("Coverage %d<%d", b.Coverage.Score, g.MinCoverage))
	}
	if f.EvidenceCount < g.MinEvidenceCount {
		out = append(out, fmt.Sprintf("Evidence %d<%d", f.EvidenceCount, g.MinEvidenceCount))
	}
	if b.QueryAlignment.Score < g.MinAlignment {
		out = append(out, fmt.Sprintf("Alignment %d<%d", b.QueryAlignment.Score, g.MinAlignment))
	}
	if !f.SpecificComponent {
		out = append(out, "NoSpecificComponent")
	}
	if !f.CausalReasoning {
		out = append(out, "NoCausalReasoning")
	}
	if task.IsFault() && !hasAWDP && !f.AWDPReference {
		out = append(out, "NoAWDP")
	}
	if !f.HasManualReference() {
		out = append(out, "NoManualRef")
	}
	if len(f.MissingSubsystems) > 0 {
		out = append(out, "MissingSubsystem("+strings.Join(f.MissingSubsystems, ", ")+")")
	}
	return out
}
