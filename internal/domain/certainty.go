package domain

// CertaintyStatus is the accept or reject verdict derived from a score.
type CertaintyStatus string

const (
	// StatusSafeToProceed marks a diagnosis that met the threshold.
	StatusSafeToProceed CertaintyStatus = "SAFE_TO_PROCEED"

	// StatusRequireExpert marks a diagnosis that needs expert review.
	StatusRequireExpert CertaintyStatus = "REQUIRE_EXPERT"
)

// DefaultCertaintyThreshold is the score at which a diagnosis is
// considered safe to proceed.
const DefaultCertaintyThreshold = 95

// Score bounds enforced on every final score.
const (
	MinCertaintyScore = 40
	MaxCertaintyScore = 100
)

// StatusFor derives the status for a score against a threshold.
func StatusFor(score, threshold int) CertaintyStatus {
	if score >= threshold {
		return StatusSafeToProceed
	}
	return StatusRequireExpert
}

// ComponentScore is one weighted factor of the certainty score.
type ComponentScore struct {
	// Score is the factor value in [0, 100].
	Score int `json:"score"`

	// Weight is the factor's share of the raw score.
	Weight float64 `json:"weight"`

	// Count is the weighted evidence counter. It is only set on the
	// evidence factor.
	Count int `json:"count,omitempty"`

	// Details lists human readable notes explaining the factor value.
	Details []string `json:"details"`
}

// Weighted returns Score times Weight.
func (c ComponentScore) Weighted() float64 { return float64(c.Score) * c.Weight }

// ScoreBreakdown holds the five factors of the certainty score.
type ScoreBreakdown struct {
	Coverage        ComponentScore `json:"coverage"`
	SystemAnalysis  ComponentScore `json:"system_analysis"`
	Evidence        ComponentScore `json:"evidence"`
	QueryAlignment  ComponentScore `json:"query_alignment"`
	DiagramAnalysis ComponentScore `json:"diagram_analysis"`
}

// WeightedSum returns the raw score before caps.
func (b ScoreBreakdown) WeightedSum() float64 {
	return b.Coverage.Weighted() +
		b.SystemAnalysis.Weighted() +
		b.Evidence.Weighted() +
		b.QueryAlignment.Weighted() +
		b.DiagramAnalysis.Weighted()
}

// CertaintyResult is the auditable output of the certainty scorer.
type CertaintyResult struct {
	// Score is the final integer score in [40, 100].
	Score int `json:"score"`

	// Status is derived from Score and the configured threshold.
	Status CertaintyStatus `json:"status"`

	// Breakdown explains each factor.
	Breakdown ScoreBreakdown `json:"breakdown"`

	// CapsApplied lists every cap that lowered the score, in order.
	CapsApplied []string `json:"caps_applied"`

	// CanExceed95 reports whether every unlock gate condition held.
	CanExceed95 bool `json:"can_exceed_95"`

	// GateFailures names the gate conditions that did not hold.
	GateFailures []string `json:"gate_failures,omitempty"`

	// EvidenceFound names the evidence kinds detected in the diagnosis.
	EvidenceFound []string `json:"evidence_found"`

	// InferredSubsystems lists subsystems implied by the query.
	InferredSubsystems []string `json:"inferred_subsystems,omitempty"`

	// MissingSubsystems lists implied subsystems the diagnosis ignores.
	MissingSubsystems []string `json:"missing_subsystems,omitempty"`

	// RawScore is the weighted sum before caps.
	RawScore float64 `json:"raw_score"`
}

// ApplyCap lowers the score to limit when it is above it, records the
// reason and re-derives the status. It returns true when the cap fired.
func (r *CertaintyResult) ApplyCap(limit, threshold int, reason string) bool {
	if r.Score <= limit {
		return false
	}
	r.Score = limit
	r.CapsApplied = append(r.CapsApplied, reason)
	r.Status = StatusFor(r.Score, threshold)
	return true
}
