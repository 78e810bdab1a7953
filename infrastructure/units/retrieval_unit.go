package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ ports.Unit = (*RetrievalUnit)(nil)

// Default retrieval depths.
const (
	DefaultRetrievalTopK = 10
	DefaultAWDPTopK      = 5
)

// RetrievalConfig configures the RetrievalUnit.
type RetrievalConfig struct {
	// TopK bounds the documents retrieved for the enhanced query.
	TopK int `yaml:"top_k" json:"top_k" validate:"min=1,max=50"`

	// AWDPTopK bounds the documents of the secondary wiring diagram search.
	AWDPTopK int `yaml:"awdp_top_k" json:"awdp_top_k" validate:"min=1,max=20"`

	// PrefetchAWDP runs the secondary wiring diagram search alongside the
	// main query whenever the request names an ATA code.
	PrefetchAWDP bool `yaml:"prefetch_awdp" json:"prefetch_awdp"`

	// SkipGeneration asks the retriever for documents only.
	SkipGeneration bool `yaml:"skip_generation" json:"skip_generation"`
}

func defaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:         DefaultRetrievalTopK,
		AWDPTopK:     DefaultAWDPTopK,
		PrefetchAWDP: true,
	}
}

// RetrievalUnit queries the manual index with the request decorated by task
// type, aircraft configuration and manual filter. When the request names an
// ATA code it also prefetches the secondary wiring diagram search so the
// AWDP stage does not pay for a second round trip.
// The unit is stateless and thread-safe.
type RetrievalUnit struct {
	name      string
	config    RetrievalConfig
	retriever ports.Retriever
	tracer    trace.Tracer
}

// NewRetrievalUnit creates a RetrievalUnit.
func NewRetrievalUnit(name string, retriever ports.Retriever, config RetrievalConfig) (*RetrievalUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if retriever == nil {
		return nil, ErrNilRetriever
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &RetrievalUnit{
		name:      name,
		config:    config,
		retriever: retriever,
		tracer:    otel.Tracer("retrieval-unit"),
	}, nil
}

// Name returns the unit's identifier.
func (ru *RetrievalUnit) Name() string { return ru.name }

// Execute retrieves documents for the request in state and stores the
// query, the enhanced query, the retrieval result and, when prefetched,
// the secondary wiring diagram search.
func (ru *RetrievalUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := ru.tracer.Start(ctx, "RetrievalUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "retrieval"),
			attribute.String("unit.id", ru.name),
			attribute.Int("config.top_k", ru.config.TopK),
		),
	)
	defer span.End()

	req, err := domain.MustGet(state, domain.KeyRequest)
	if err != nil {
		err = fmt.Errorf("unit %s: %w", ru.name, err)
		span.RecordError(err)
		return state, err
	}
	if req.Query == "" {
		err := fmt.Errorf("unit %s: %w", ru.name, ErrEmptyQuery)
		span.RecordError(err)
		return state, err
	}

	filter := req.Filter()
	enhanced := req.EnhancedQuery()
	log := logger.FromContext(ctx).With("unit", ru.name)

	var (
		primary   domain.RetrievalResult
		secondary domain.RetrievalResult
		prefetch  = ru.config.PrefetchAWDP && req.ATACode != ""
		gotAWDP   bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := ru.retriever.Retrieve(gctx, ports.RetrievalQuery{
			Text:           filter.QueryPrefix() + enhanced,
			TopK:           ru.config.TopK,
			Filter:         filter,
			SkipGeneration: ru.config.SkipGeneration,
		})
		if err != nil {
			return err
		}
		primary = res
		return nil
	})
	if prefetch {
		g.Go(func() error {
			res, err := ru.retriever.Retrieve(gctx, ports.RetrievalQuery{
				Text:           filter.QueryPrefix() + evidence.SecondaryAWDPQuery(req.ATACode, req.AircraftConfiguration, req.ConfigurationName),
				TopK:           ru.config.AWDPTopK,
				Filter:         filter,
				SkipGeneration: true,
			})
			if err != nil {
				// The wiring diagram search is best effort.
				log.Warn("secondary AWDP search failed", "error", err)
				return nil
			}
			secondary, gotAWDP = res, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		err = fmt.Errorf("unit %s: %w: %w", ru.name, domain.ErrRetrievalUnavailable, err)
		span.RecordError(err)
		return state, err
	}

	updates := map[string]any{
		domain.KeyQuery.Name():         req.Query,
		domain.KeyEnhancedQuery.Name(): enhanced,
		domain.KeyRetrieval.Name():     primary,
	}
	if gotAWDP {
		updates[domain.KeyAWDPSearch.Name()] = secondary
	}

	span.SetAttributes(
		attribute.Int("retrieval.documents", len(primary.Documents)),
		attribute.String("retrieval.ata", primary.ATA),
		attribute.Bool("retrieval.awdp_prefetched", gotAWDP),
	)
	log.Debug("retrieval finished",
		"documents", len(primary.Documents),
		"ata", primary.ATA,
		"awdp_prefetched", gotAWDP,
	)

	return state.WithMultiple(updates), nil
}

// Validate checks that the unit is properly configured.
func (ru *RetrievalUnit) Validate() error {
	if ru.retriever == nil {
		return ErrNilRetriever
	}
	return validateConfig(ru.config)
}

// CreateRetrievalUnit builds a RetrievalUnit from a parameter map. The
// retriever is taken from params[DepRetriever].
func CreateRetrievalUnit(id string, params map[string]any) (ports.Unit, error) {
	retriever, _ := params[DepRetriever].(ports.Retriever)
	if retriever == nil {
		return nil, ErrNilRetriever
	}
	cfg, err := decodeConfig(withoutDependencies(params), defaultRetrievalConfig())
	if err != nil {
		return nil, err
	}
	return NewRetrievalUnit(id, retriever, cfg)
}
