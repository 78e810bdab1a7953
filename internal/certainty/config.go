// Package certainty implements the certainty scorer for maintenance
// diagnoses. A Scorer combines five weighted factors, lowers the result
// through a cascade of safety caps and only lets a score reach the safe
// threshold when every unlock condition holds.
//
// Scorer values are immutable after construction and safe for concurrent
// use.
package certainty

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

var validate = validator.New()

// Weights are the factor shares of the raw score. They must sum to 1.
type Weights struct {
	Coverage        float64 `yaml:"coverage" json:"coverage" validate:"gte=0,lte=1"`
	SystemAnalysis  float64 `yaml:"system_analysis" json:"system_analysis" validate:"gte=0,lte=1"`
	Evidence        float64 `yaml:"evidence" json:"evidence" validate:"gte=0,lte=1"`
	QueryAlignment  float64 `yaml:"query_alignment" json:"query_alignment" validate:"gte=0,lte=1"`
	DiagramAnalysis float64 `yaml:"diagram_analysis" json:"diagram_analysis" validate:"gte=0,lte=1"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Coverage + w.SystemAnalysis + w.Evidence + w.QueryAlignment + w.DiagramAnalysis
}

// Caps are the limits of the global cap cascade, applied in field order,
// followed by the limit used when the unlock gate blocks a score.
type Caps struct {
	FaultWithoutAWDP   int `yaml:"fault_without_awdp" json:"fault_without_awdp" validate:"gte=0,lte=100"`
	Generic            int `yaml:"generic" json:"generic" validate:"gte=0,lte=100"`
	NoManualReference  int `yaml:"no_manual_reference" json:"no_manual_reference" validate:"gte=0,lte=100"`
	NoComponent        int `yaml:"no_component" json:"no_component" validate:"gte=0,lte=100"`
	FaultWithoutCausal int `yaml:"fault_without_causal" json:"fault_without_causal" validate:"gte=0,lte=100"`
	MissingSubsystem   int `yaml:"missing_subsystem" json:"missing_subsystem" validate:"gte=0,lte=100"`
	ElectricalMismatch int `yaml:"electrical_mismatch" json:"electrical_mismatch" validate:"gte=0,lte=100"`
	GateBlocked        int `yaml:"gate_blocked" json:"gate_blocked" validate:"gte=0,lte=100"`
}

// Gate holds the numeric thresholds of the unlock gate.
type Gate struct {
	MinSystemAnalysis int `yaml:"min_system_analysis" json:"min_system_analysis" validate:"gte=0,lte=100"`
	MinCoverage       int `yaml:"min_coverage" json:"min_coverage" validate:"gte=0,lte=100"`
	MinEvidenceCount  int `yaml:"min_evidence_count" json:"min_evidence_count" validate:"gte=0"`
	MinAlignment      int `yaml:"min_alignment" json:"min_alignment" validate:"gte=0,lte=100"`
}

// Config is the complete scorer configuration.
type Config struct {
	Weights Weights `yaml:"weights" json:"weights"`
	Caps    Caps    `yaml:"caps" json:"caps"`
	Gate    Gate    `yaml:"gate" json:"gate"`

	// Threshold is the minimum score for SAFE_TO_PROCEED.
	Threshold int `yaml:"threshold" json:"threshold" validate:"gte=1,lte=100"`

	// HighRelevance is the similarity above which a matching document
	// counts as highly relevant.
	HighRelevance float64 `yaml:"high_relevance" json:"high_relevance" validate:"gte=0,lte=1"`

	// Subsystems is the subsystem inference table. Empty selects the
	// built-in table.
	Subsystems []evidence.SubsystemRule `yaml:"subsystems,omitempty" json:"subsystems,omitempty" validate:"omitempty,dive"`
}

// DefaultConfig returns the calibrated v3.0 configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Coverage:        0.25,
			SystemAnalysis:  0.25,
			Evidence:        0.20,
			QueryAlignment:  0.20,
			DiagramAnalysis: 0.10,
		},
		Caps: Caps{
			FaultWithoutAWDP:   85,
			Generic:            80,
			NoManualReference:  85,
			NoComponent:        82,
			FaultWithoutCausal: 80,
			MissingSubsystem:   75,
			ElectricalMismatch: 78,
			GateBlocked:        94,
		},
		Gate: Gate{
			MinSystemAnalysis: 75,
			MinCoverage:       85,
			MinEvidenceCount:  5,
			MinAlignment:      70,
		},
		Threshold:     domain.DefaultCertaintyThreshold,
		HighRelevance: 0.7,
	}
}

// Validate checks field ranges, that the weights sum to 1 and that a
// blocked score stays below the threshold.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid certainty config: %w", err)
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("invalid certainty config: weights sum to %.4f, want 1", sum)
	}
	if c.Caps.GateBlocked >= c.Threshold {
		return fmt.Errorf("invalid certainty config: gate_blocked %d must be below threshold %d",
			c.Caps.GateBlocked, c.Threshold)
	}
	return nil
}
