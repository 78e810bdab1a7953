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

var _ ports.Unit = (*AWDPUnit)(nil)

// AWDPConfig configures the AWDPUnit.
type AWDPConfig struct {
	// SecondarySearch enables the dedicated wiring diagram search when the
	// primary documents and the diagnosis carry no AWDP evidence.
	SecondarySearch bool `yaml:"secondary_search" json:"secondary_search"`

	// TopK bounds the documents of the secondary search.
	TopK int `yaml:"top_k" json:"top_k" validate:"min=1,max=20"`
}

func defaultAWDPConfig() AWDPConfig {
	return AWDPConfig{SecondarySearch: true, TopK: DefaultAWDPTopK}
}

// AWDPUnit detects wiring diagram (AWDP) evidence in the retrieved
// documents and the diagnosis body. When nothing is found and the request
// names an ATA code, it falls back to the secondary wiring diagram search,
// using the prefetched result when the retrieval stage already ran it.
// A failing secondary search is logged and leaves the result empty.
type AWDPUnit struct {
	name      string
	config    AWDPConfig
	retriever ports.Retriever
	tracer    trace.Tracer
}

// NewAWDPUnit creates an AWDPUnit. retriever may be nil, in which case
// only a prefetched secondary search is used.
func NewAWDPUnit(name string, retriever ports.Retriever, config AWDPConfig) (*AWDPUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &AWDPUnit{
		name:      name,
		config:    config,
		retriever: retriever,
		tracer:    otel.Tracer("awdp-unit"),
	}, nil
}

// Name returns the unit's identifier.
func (au *AWDPUnit) Name() string { return au.name }

// Execute stores the AWDP detection result under domain.KeyAWDP.
func (au *AWDPUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := au.tracer.Start(ctx, "AWDPUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "awdp"),
			attribute.String("unit.id", au.name),
		),
	)
	defer span.End()

	req, err := domain.MustGet(state, domain.KeyRequest)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", au.name, err)
		span.RecordError(err)
		return state, err
	}
	retrieval, err := domain.MustGet(state, domain.KeyRetrieval)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", au.name, err)
		span.RecordError(err)
		return state, err
	}
	body, _ := domain.Get(state, domain.KeyDiagnosis)

	info := evidence.DetectAWDP(retrieval.Documents, body)
	if !info.Found && req.ATACode != "" && au.config.SecondarySearch {
		if docs, ok := au.secondaryDocuments(ctx, state, req); ok {
			if sec, found := evidence.SecondaryAWDP(docs); found {
				info = sec
			}
		}
	}

	span.SetAttributes(
		attribute.Bool("awdp.found", info.Found),
		attribute.Bool("awdp.secondary", info.Secondary),
		attribute.String("awdp.reference", info.Reference),
	)
	logger.FromContext(ctx).Debug("awdp detection finished",
		"unit", au.name, "found", info.Found, "secondary", info.Secondary, "reference", info.Reference)

	return domain.With(state, domain.KeyAWDP, info), nil
}

// secondaryDocuments returns the documents of the secondary search,
// running it when the retrieval stage did not prefetch it.
func (au *AWDPUnit) secondaryDocuments(ctx context.Context, state domain.State, req domain.DiagnosisRequest) ([]domain.RetrievedDocument, bool) {
	if res, ok := domain.Get(state, domain.KeyAWDPSearch); ok {
		return res.Documents, true
	}
	if au.retriever == nil {
		return nil, false
	}

	filter := req.Filter()
	res, err := au.retriever.Retrieve(ctx, ports.RetrievalQuery{
		Text:           filter.QueryPrefix() + evidence.SecondaryAWDPQuery(req.ATACode, req.AircraftConfiguration, req.ConfigurationName),
		TopK:           au.config.TopK,
		Filter:         filter,
		SkipGeneration: true,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("secondary AWDP search failed", "unit", au.name, "error", err)
		return nil, false
	}
	return res.Documents, true
}

// Validate checks that the unit is properly configured.
func (au *AWDPUnit) Validate() error { return validateConfig(au.config) }

// CreateAWDPUnit builds an AWDPUnit from a parameter map. The optional
// retriever is taken from params[DepRetriever].
func CreateAWDPUnit(id string, params map[string]any) (ports.Unit, error) {
	retriever, _ := params[DepRetriever].(ports.Retriever)
	cfg, err := decodeConfig(withoutDependencies(params), defaultAWDPConfig())
	if err != nil {
		return nil, err
	}
	return NewAWDPUnit(id, retriever, cfg)
}
