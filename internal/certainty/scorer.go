package certainty

import (
	"math"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

// Input is everything the scorer looks at for one diagnosis.
type Input struct {
	// Documents are the retrieved manual excerpts.
	Documents []domain.RetrievedDocument `json:"documents"`

	// Diagnosis is the text under evaluation.
	Diagnosis string `json:"diagnosis"`

	// Query is the originating maintenance query.
	Query string `json:"query"`

	// Filter is the manual filter the documents were retrieved with.
	Filter domain.ManualFilter `json:"filter"`

	// TaskType selects the diagram rules. Unknown values are treated as
	// fault isolation.
	TaskType domain.TaskType `json:"task_type"`

	// HasAWDP reports whether wiring diagram evidence was found upstream.
	HasAWDP bool `json:"has_awdp"`
}

// Scorer computes certainty results. The zero value is not usable; build
// one with NewScorer or Default.
type Scorer struct {
	cfg       Config
	extractor *evidence.Extractor
}

// NewScorer validates cfg and returns a Scorer that owns a private copy
// of it.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var rules []evidence.SubsystemRule
	if len(cfg.Subsystems) > 0 {
		rules = cfg.Subsystems
	}
	ex := evidence.NewExtractor(rules)
	cfg.Subsystems = ex.Rules()
	return &Scorer{cfg: cfg, extractor: ex}, nil
}

// Default returns a Scorer with DefaultConfig.
func Default() *Scorer {
	s, err := NewScorer(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return s
}

// Config returns a copy of the scorer configuration.
func (s *Scorer) Config() Config {
	cfg := s.cfg
	cfg.Subsystems = evidence.CloneRules(s.cfg.Subsystems)
	return cfg
}

// Threshold returns the SAFE_TO_PROCEED threshold.
func (s *Scorer) Threshold() int { return s.cfg.Threshold }

// Score evaluates in. It never fails: degenerate input yields a low score.
func (s *Scorer) Score(in Input) domain.CertaintyResult {
	task := in.TaskType.Normalize()
	flags := s.extractor.Extract(in.Diagnosis, in.Query)

	breakdown := domain.ScoreBreakdown{
		Coverage:        s.coverage(in.Documents, in.Filter),
		SystemAnalysis:  s.systemAnalysis(flags),
		Evidence:        s.evidenceFactor(flags),
		QueryAlignment:  s.queryAlignment(flags),
		DiagramAnalysis: s.diagramAnalysis(flags, task, in.HasAWDP),
	}

	raw := breakdown.WeightedSum()
	res := domain.CertaintyResult{
		Breakdown:          breakdown,
		CapsApplied:        []string{},
		EvidenceFound:      flags.EvidenceFound,
		InferredSubsystems: flags.InferredSubsystems,
		MissingSubsystems:  flags.MissingSubsystems,
		RawScore:           raw,
	}

	score := s.applyCaps(raw, flags, task, in.HasAWDP, &res.CapsApplied)

	res.GateFailures = s.gateFailures(breakdown, flags, task, in.HasAWDP)
	res.CanExceed95 = len(res.GateFailures) == 0
	if clampScore(score) >= s.cfg.Threshold && !res.CanExceed95 {
		score = float64(s.cfg.Caps.GateBlocked)
		res.CapsApplied = append(res.CapsApplied, gateBlockedReason(s.cfg.Caps.GateBlocked))
	}

	res.Score = clampScore(score)
	res.Status = domain.StatusFor(res.Score, s.cfg.Threshold)
	return res
}

// clampScore rounds half to even and clamps to the score bounds.
func clampScore(score float64) int {
	if math.IsNaN(score) {
		return domain.MinCertaintyScore
	}
	r := int(math.RoundToEven(math.Max(-1, math.Min(score, 1000))))
	return max(domain.MinCertaintyScore, min(r, domain.MaxCertaintyScore))
}

// clampFactor bounds a factor value to [0, 100].
func clampFactor(v int) int { return max(0, min(v, 100)) }
