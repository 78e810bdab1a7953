package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ ports.Unit = (*ExtractionUnit)(nil)

// ExtractionUnit pulls affected parts, likely causes, recommended tests
// and manual references out of the final diagnosis text. Retrieval
// references fill in when the text cites none.
// This is a deterministic unit that does not require LLM calls.
type ExtractionUnit struct {
	name   string
	tracer trace.Tracer
}

// NewExtractionUnit creates an ExtractionUnit.
func NewExtractionUnit(name string) (*ExtractionUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &ExtractionUnit{name: name, tracer: otel.Tracer("extraction-unit")}, nil
}

// Name returns the unit's identifier.
func (eu *ExtractionUnit) Name() string { return eu.name }

// Execute stores the structured report fields under domain.KeyExtraction.
func (eu *ExtractionUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := eu.tracer.Start(ctx, "ExtractionUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "extraction"),
			attribute.String("unit.id", eu.name),
		),
	)
	defer span.End()

	text, err := domain.MustGet(state, domain.KeyDiagnosis)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", eu.name, err)
		span.RecordError(err)
		return state, err
	}
	ata, _ := domain.Get(state, domain.KeyATAChapter)
	retrieval, _ := domain.Get(state, domain.KeyRetrieval)

	ex := evidence.Extract(text, ata, retrieval.References)

	span.SetAttributes(
		attribute.Int("extraction.parts", len(ex.AffectedParts)),
		attribute.Int("extraction.causes", len(ex.LikelyCauses)),
		attribute.Int("extraction.tests", len(ex.RecommendedTests)),
		attribute.Int("extraction.references", len(ex.References)),
		attribute.Bool("no_llm_cost", true),
	)
	return domain.With(state, domain.KeyExtraction, ex), nil
}

// Validate checks that the unit is properly configured.
func (eu *ExtractionUnit) Validate() error {
	if eu.name == "" {
		return ErrEmptyUnitName
	}
	return nil
}

// CreateExtractionUnit builds an ExtractionUnit. The unit takes no
// parameters.
func CreateExtractionUnit(id string, _ map[string]any) (ports.Unit, error) {
	return NewExtractionUnit(id)
}
