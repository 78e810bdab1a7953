package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ ports.Unit = (*CrossCheckUnit)(nil)

// DefaultMaxEditDistance is the largest edit distance at which a diagnosis
// DMC still counts as matching a retrieved document.
const DefaultMaxEditDistance = 2

// CrossCheckConfig configures the CrossCheckUnit.
type CrossCheckConfig struct {
	// VerifyReferences compares every DMC of the diagnosis against the
	// retrieved document identifiers.
	VerifyReferences bool `yaml:"verify_references" json:"verify_references"`

	// MaxEditDistance is the match tolerance of the reference check.
	MaxEditDistance int `yaml:"max_edit_distance" json:"max_edit_distance" validate:"min=0,max=10"`
}

func defaultCrossCheckConfig() CrossCheckConfig {
	return CrossCheckConfig{VerifyReferences: true, MaxEditDistance: DefaultMaxEditDistance}
}

// CrossCheckUnit validates the procedure structure of the diagnosis body
// and wraps it into the final diagnosis text: the technical references
// header, the body and the cross-check footer. The final text replaces
// domain.KeyDiagnosis so every later stage scores what the mechanic reads.
type CrossCheckUnit struct {
	name   string
	config CrossCheckConfig
	tracer trace.Tracer
}

// NewCrossCheckUnit creates a CrossCheckUnit.
func NewCrossCheckUnit(name string, config CrossCheckConfig) (*CrossCheckUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &CrossCheckUnit{name: name, config: config, tracer: otel.Tracer("crosscheck-unit")}, nil
}

// Name returns the unit's identifier.
func (cu *CrossCheckUnit) Name() string { return cu.name }

// Execute stores the cross-check verdict and the final diagnosis text.
func (cu *CrossCheckUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := cu.tracer.Start(ctx, "CrossCheckUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "crosscheck"),
			attribute.String("unit.id", cu.name),
		),
	)
	defer span.End()

	req, err := domain.MustGet(state, domain.KeyRequest)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", cu.name, err)
		span.RecordError(err)
		return state, err
	}
	body, err := domain.MustGet(state, domain.KeyDiagnosis)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", cu.name, err)
		span.RecordError(err)
		return state, err
	}
	ata, _ := domain.Get(state, domain.KeyATAChapter)
	awdp, ok := domain.Get(state, domain.KeyAWDP)
	if !ok {
		awdp.Reference = evidence.AWDPNotAvailable
	}

	cc := evidence.CrossCheckDiagnosis(body)
	if cu.config.VerifyReferences {
		retrieval, _ := domain.Get(state, domain.KeyRetrieval)
		cc.UnmatchedReferences = evidence.UnmatchedReferences(body, documentIdentifiers(retrieval.Documents), cu.config.MaxEditDistance)
	}

	final := evidence.ReportHeader(ata, awdp.Reference, req) + body + evidence.CrossCheckFooter(cc)

	span.SetAttributes(
		attribute.String("crosscheck.status", cc.Status),
		attribute.Bool("crosscheck.has_dmc", cc.HasDMC),
		attribute.Bool("crosscheck.has_steps", cc.HasProcedureSteps),
		attribute.Int("crosscheck.unmatched_references", len(cc.UnmatchedReferences)),
	)
	log := logger.FromContext(ctx)
	log.Debug("cross-check finished", "unit", cu.name, "status", cc.Status)
	if len(cc.UnmatchedReferences) > 0 {
		log.Warn("diagnosis cites references not found in retrieved documents",
			"unit", cu.name, "references", cc.UnmatchedReferences)
	}

	return state.WithMultiple(map[string]any{
		domain.KeyCrossCheck.Name(): cc,
		domain.KeyDiagnosis.Name():  final,
	}), nil
}

// Validate checks that the unit is properly configured.
func (cu *CrossCheckUnit) Validate() error { return validateConfig(cu.config) }

func documentIdentifiers(docs []domain.RetrievedDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		id := d.ATAIdentifier
		if id == "" {
			id = evidence.DocumentIdentifier(d.DocPath)
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateCrossCheckUnit builds a CrossCheckUnit from a parameter map.
func CreateCrossCheckUnit(id string, params map[string]any) (ports.Unit, error) {
	cfg, err := decodeConfig(withoutDependencies(params), defaultCrossCheckConfig())
	if err != nil {
		return nil, err
	}
	return NewCrossCheckUnit(id, cfg)
}
