package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hangarlabs/aw139-certainty/infrastructure/units"
	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// Dependencies is the infrastructure the registry injects into unit
// factories. Nil fields are simply not injected; factories that need them
// fail with their own error.
type Dependencies struct {
	LLMClient ports.LLMClient
	Retriever ports.Retriever
	Scorer    *certainty.Scorer
	Metrics   ports.MetricsCollector
}

// DefaultUnitRegistry creates the diagnosis pipeline units by type name
// and injects the shared infrastructure into their factories.
type DefaultUnitRegistry struct {
	factories map[string]ports.UnitFactory
	deps      Dependencies
	mu        sync.RWMutex
}

// NewDefaultUnitRegistry creates a registry with every built-in unit type
// registered.
func NewDefaultUnitRegistry(deps Dependencies) *DefaultUnitRegistry {
	registry := &DefaultUnitRegistry{
		factories: make(map[string]ports.UnitFactory),
		deps:      deps,
	}
	registry.registerBuiltinFactories()
	return registry
}

func (r *DefaultUnitRegistry) registerBuiltinFactories() {
	r.factories[UnitTypeRetrieval] = units.CreateRetrievalUnit
	r.factories[UnitTypeDiagnosis] = units.CreateDiagnosisUnit
	r.factories[UnitTypeAWDP] = units.CreateAWDPUnit
	r.factories[UnitTypeCrossCheck] = units.CreateCrossCheckUnit
	r.factories[UnitTypeExtraction] = units.CreateExtractionUnit
	r.factories[UnitTypeCertainty] = units.CreateCertaintyUnit
	r.factories[UnitTypeReview] = units.CreateReviewUnit
}

// CreateUnit creates a unit of unitType. The config map is copied and the
// registry dependencies are added under the well known keys unless the
// caller already set them.
func (r *DefaultUnitRegistry) CreateUnit(unitType string, id string, config map[string]any) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	deps := r.deps
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}
	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	params := make(map[string]any, len(config)+4)
	maps.Copy(params, config)
	inject := func(key string, value any, present bool) {
		if _, set := params[key]; !set && present {
			params[key] = value
		}
	}
	inject(units.DepLLMClient, deps.LLMClient, deps.LLMClient != nil)
	inject(units.DepRetriever, deps.Retriever, deps.Retriever != nil)
	inject(units.DepScorer, deps.Scorer, deps.Scorer != nil)
	inject(units.DepMetrics, deps.Metrics, deps.Metrics != nil)

	unit, err := factory(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}
	return unit, nil
}

// RegisterUnitFactory adds or replaces the factory of a unit type.
func (r *DefaultUnitRegistry) RegisterUnitFactory(unitType string, factory ports.UnitFactory) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}

// SetLLMClient replaces the default LLM client for units created later.
func (r *DefaultUnitRegistry) SetLLMClient(client ports.LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deps.LLMClient = client
}
