package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ ports.Unit = (*CertaintyUnit)(nil)

// CertaintyUnit scores the final diagnosis text against the retrieved
// documents and the raw query.
// This is a deterministic unit that does not require LLM calls.
type CertaintyUnit struct {
	name   string
	scorer *certainty.Scorer
	tracer trace.Tracer
}

// NewCertaintyUnit creates a CertaintyUnit.
func NewCertaintyUnit(name string, scorer *certainty.Scorer) (*CertaintyUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if scorer == nil {
		return nil, ErrNilScorer
	}
	return &CertaintyUnit{name: name, scorer: scorer, tracer: otel.Tracer("certainty-unit")}, nil
}

// Name returns the unit's identifier.
func (cu *CertaintyUnit) Name() string { return cu.name }

// Execute stores the certainty result under domain.KeyCertainty.
func (cu *CertaintyUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := cu.tracer.Start(ctx, "CertaintyUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "certainty"),
			attribute.String("unit.id", cu.name),
			attribute.Int("config.threshold", cu.scorer.Threshold()),
		),
	)
	defer span.End()

	req, err := domain.MustGet(state, domain.KeyRequest)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", cu.name, err)
		span.RecordError(err)
		return state, err
	}
	text, err := domain.MustGet(state, domain.KeyDiagnosis)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", cu.name, err)
		span.RecordError(err)
		return state, err
	}
	retrieval, _ := domain.Get(state, domain.KeyRetrieval)
	awdp, _ := domain.Get(state, domain.KeyAWDP)

	res := cu.scorer.Score(certainty.Input{
		Documents: retrieval.Documents,
		Diagnosis: text,
		Query:     req.Query,
		Filter:    req.Filter(),
		TaskType:  req.Task(),
		HasAWDP:   awdp.Found,
	})

	span.SetAttributes(
		attribute.Int("certainty.score", res.Score),
		attribute.String("certainty.status", string(res.Status)),
		attribute.Float64("certainty.raw_score", res.RawScore),
		attribute.Int("certainty.caps_applied", len(res.CapsApplied)),
		attribute.Bool("certainty.can_exceed_95", res.CanExceed95),
		attribute.Bool("no_llm_cost", true),
	)
	return domain.With(state, domain.KeyCertainty, res), nil
}

// Validate checks that the unit is properly configured.
func (cu *CertaintyUnit) Validate() error {
	if cu.scorer == nil {
		return ErrNilScorer
	}
	return nil
}

// CreateCertaintyUnit builds a CertaintyUnit. The scorer is taken from
// params[DepScorer]; the default scorer is used when none is injected.
func CreateCertaintyUnit(id string, params map[string]any) (ports.Unit, error) {
	scorer, _ := params[DepScorer].(*certainty.Scorer)
	if scorer == nil {
		scorer = certainty.Default()
	}
	return NewCertaintyUnit(id, scorer)
}
