package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/hangarlabs/aw139-certainty/infrastructure/middleware"
	"github.com/hangarlabs/aw139-certainty/infrastructure/units"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// ErrStageOrder is returned when a stage needs a value that no earlier
// stage provides.
var ErrStageOrder = errors.New("invalid stage order")

// ModelResolver returns the LLM client for a "provider/model" spec.
type ModelResolver func(spec string) (ports.LLMClient, error)

// LoadedPipeline is a compiled pipeline definition.
type LoadedPipeline struct {
	// Pipeline is the executable stage sequence.
	Pipeline *Pipeline
	// Dependencies links every unit to the units whose output it reads.
	Dependencies *Graph
	// Order lists the unit IDs in dependency order.
	Order []string
	// Definition is the validated source document.
	Definition PipelineDefinition
	// Hash is the sha256 of the normalized definition.
	Hash string
}

// PipelineLoader parses, validates and compiles pipeline definitions.
// Compiled pipelines are cached by the hash of their normalized YAML and
// concurrent loads of the same definition are compiled once.
type PipelineLoader struct {
	validator    *validator.Validate
	unitRegistry ports.UnitRegistry
	resolveModel ModelResolver
	metrics      ports.MetricsCollector
	budget       middleware.Budget
	overrides    map[string]map[string]any
	cache        map[string]*LoadedPipeline
	cacheMu      sync.RWMutex
	sf           singleflight.Group
}

// LoaderOption configures a PipelineLoader.
type LoaderOption func(*PipelineLoader)

// WithModelResolver enables the per unit "model" field.
func WithModelResolver(resolve ModelResolver) LoaderOption {
	return func(pl *PipelineLoader) { pl.resolveModel = resolve }
}

// WithLoaderMetrics records stage metrics and budget usage on m.
func WithLoaderMetrics(m ports.MetricsCollector) LoaderOption {
	return func(pl *PipelineLoader) { pl.metrics = m }
}

// WithDefaultBudget applies b to every diagnosis unit that declares no
// budget of its own.
func WithDefaultBudget(b middleware.Budget) LoaderOption {
	return func(pl *PipelineLoader) { pl.budget = b }
}

// WithParameterOverrides sets parameters on every unit of unitType,
// replacing the values of the definition.
func WithParameterOverrides(unitType string, params map[string]any) LoaderOption {
	return func(pl *PipelineLoader) {
		if pl.overrides == nil {
			pl.overrides = make(map[string]map[string]any)
		}
		pl.overrides[unitType] = maps.Clone(params)
	}
}

// NewPipelineLoader creates a loader that builds units through registry.
func NewPipelineLoader(registry ports.UnitRegistry, opts ...LoaderOption) (*PipelineLoader, error) {
	if registry == nil {
		return nil, fmt.Errorf("unit registry cannot be nil")
	}
	v := validator.New()
	if err := RegisterValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	pl := &PipelineLoader{
		validator:    v,
		unitRegistry: registry,
		cache:        make(map[string]*LoadedPipeline),
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl, nil
}

// LoadFromFile loads a pipeline definition from a YAML file.
// The returned pipeline is shared with other callers through the cache
// and must not be mutated.
func (pl *PipelineLoader) LoadFromFile(ctx context.Context, path string) (*LoadedPipeline, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return pl.load(ctx, data)
}

// LoadFromReader loads a pipeline definition from r.
func (pl *PipelineLoader) LoadFromReader(ctx context.Context, r io.Reader) (*LoadedPipeline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return pl.load(ctx, data)
}

// LoadDefault loads the built-in pipeline.
func (pl *PipelineLoader) LoadDefault(ctx context.Context) (*LoadedPipeline, error) {
	return pl.load(ctx, []byte(DefaultPipelineYAML))
}

func (pl *PipelineLoader) load(ctx context.Context, data []byte) (*LoadedPipeline, error) {
	def, err := pl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	hash, err := pl.calculateHash(def)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := pl.sf.Do(hash, func() (any, error) {
		if loaded, ok := pl.getCached(hash); ok {
			return loaded, nil
		}
		if err := pl.validateDefinition(def); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		loaded, err := pl.build(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to build pipeline: %w", err)
		}
		loaded.Hash = hash
		pl.storeCached(hash, loaded)
		logger.FromContext(ctx).Info("pipeline loaded",
			"pipeline", def.Pipeline.ID, "stages", len(def.Pipeline.Stages), "units", len(def.Units))
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoadedPipeline), nil
}

// parseYAML decodes strictly: unknown fields are errors.
func (pl *PipelineLoader) parseYAML(data []byte) (*PipelineDefinition, error) {
	var def PipelineDefinition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &def, nil
}

func (pl *PipelineLoader) validateDefinition(def *PipelineDefinition) error {
	if err := pl.validator.Struct(def); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := pl.validateSemantics(def); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics checks identifier uniqueness, stage references and the
// parameters of every unit.
func (pl *PipelineLoader) validateSemantics(def *PipelineDefinition) error {
	allIDs := make(map[string]string)
	unitIDs := make(map[string]struct{})

	for _, unit := range def.Units {
		if kind, exists := allIDs[unit.ID]; exists {
			return fmt.Errorf("duplicate ID %q: already used by %s", unit.ID, kind)
		}
		allIDs[unit.ID] = "unit"
		unitIDs[unit.ID] = struct{}{}

		params, err := decodeParameters(unit.Parameters)
		if err != nil {
			return fmt.Errorf("unit %s: %w", unit.ID, err)
		}
		if err := ValidateUnitParameters(unit.Type, params); err != nil {
			return fmt.Errorf("unit %s parameter validation failed: %w", unit.ID, err)
		}
		if unit.Model != "" && pl.resolveModel == nil {
			return fmt.Errorf("unit %s sets model %q but no model resolver is configured", unit.ID, unit.Model)
		}
	}

	placed := make(map[string]string)
	for _, stage := range def.Pipeline.Stages {
		if stage.Layer != "" {
			if kind, exists := allIDs[stage.Layer]; exists {
				return fmt.Errorf("duplicate ID %q: already used by %s", stage.Layer, kind)
			}
			allIDs[stage.Layer] = "layer"
			if len(stage.Units) < 2 {
				return fmt.Errorf("layer %s needs at least two units", stage.Layer)
			}
		} else if stage.Concurrency != 0 {
			return fmt.Errorf("stage %s: concurrency only applies to layers", stage.Unit)
		}
		for _, id := range stage.Members() {
			if _, exists := unitIDs[id]; !exists {
				return fmt.Errorf("stage %s references non-existent unit: %s", stage.ID(), id)
			}
			if prev, exists := placed[id]; exists {
				return fmt.Errorf("unit %s is used by stages %s and %s", id, prev, stage.ID())
			}
			placed[id] = stage.ID()
		}
	}

	for _, unit := range def.Units {
		if _, ok := placed[unit.ID]; !ok {
			return fmt.Errorf("unit %s is not used by any stage", unit.ID)
		}
	}
	return nil
}

// build creates the units, wires them into stages and derives the unit
// dependency graph from the state keys each unit type reads and writes.
func (pl *PipelineLoader) build(ctx context.Context, def *PipelineDefinition) (*LoadedPipeline, error) {
	configs := make(map[string]UnitConfig, len(def.Units))
	for _, uc := range def.Units {
		configs[uc.ID] = uc
	}

	adapters := make(map[string]*UnitAdapter, len(def.Units))
	graph := NewGraph()
	for _, uc := range def.Units {
		unit, err := pl.createUnit(uc)
		if err != nil {
			return nil, fmt.Errorf("failed to create unit %s: %w", uc.ID, err)
		}
		adapter := NewUnitAdapter(unit, uc.ID, pl.metrics)
		adapters[uc.ID] = adapter
		if err := graph.AddNode(adapter); err != nil {
			return nil, err
		}
	}

	if err := linkStages(def, configs, graph); err != nil {
		return nil, err
	}
	sorted, err := graph.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStageOrder, err)
	}
	order := make([]string, len(sorted))
	for i, exec := range sorted {
		order[i] = exec.ID()
	}

	pipeline := NewPipeline(def.Pipeline.ID)
	for _, stage := range def.Pipeline.Stages {
		var exec ports.Executable
		if stage.Layer == "" {
			exec = adapters[stage.Unit]
		} else {
			layer := NewLayer(stage.Layer)
			if stage.Concurrency > 0 {
				layer.SetConcurrencyLimit(stage.Concurrency)
			}
			for _, id := range stage.Units {
				if err := layer.Add(adapters[id]); err != nil {
					return nil, fmt.Errorf("failed to add unit to layer: %w", err)
				}
			}
			exec = layer
		}
		if err := pipeline.Add(exec); err != nil {
			return nil, fmt.Errorf("failed to add stage: %w", err)
		}
	}

	logger.FromContext(ctx).Debug("pipeline compiled",
		"pipeline", def.Pipeline.ID, "stages", len(def.Pipeline.Stages), "order", order)
	return &LoadedPipeline{Pipeline: pipeline, Dependencies: graph, Order: order, Definition: *def}, nil
}

// createUnit decodes the unit parameters, resolves a per unit model and
// wraps the unit in a budget manager when a budget is set.
func (pl *PipelineLoader) createUnit(uc UnitConfig) (ports.Unit, error) {
	params, err := decodeParameters(uc.Parameters)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = make(map[string]any)
	}
	maps.Copy(params, pl.overrides[uc.Type])

	if uc.Model != "" {
		client, err := pl.resolveModel(uc.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve model %q: %w", uc.Model, err)
		}
		params[units.DepLLMClient] = client
	}

	unit, err := pl.unitRegistry.CreateUnit(uc.Type, uc.ID, params)
	if err != nil {
		return nil, err
	}

	budget := uc.Budget
	if budget.Unlimited() && uc.Type == UnitTypeDiagnosis {
		budget = pl.budget
	}
	if budget.Unlimited() {
		return unit, nil
	}
	managed := middleware.NewBudgetManager(budget, unit, middleware.NewOTelBudgetObserver(pl.metrics, uc.ID))
	if err := managed.Validate(); err != nil {
		return nil, err
	}
	return managed, nil
}

func decodeParameters(node yaml.Node) (map[string]any, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	var params map[string]any
	if err := node.Decode(&params); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return params, nil
}

// unitContract lists the state keys a unit type must find, may read and
// writes.
type unitContract struct {
	requires []string
	uses     []string
	provides []string
}

var unitContracts = map[string]unitContract{
	UnitTypeRetrieval: {
		requires: []string{domain.KeyRequest.Name()},
		provides: []string{domain.KeyQuery.Name(), domain.KeyEnhancedQuery.Name(),
			domain.KeyRetrieval.Name(), domain.KeyAWDPSearch.Name()},
	},
	UnitTypeDiagnosis: {
		requires: []string{domain.KeyRequest.Name(), domain.KeyRetrieval.Name()},
		provides: []string{domain.KeyDiagnosis.Name(), domain.KeyDiagnosisSource.Name(), domain.KeyATAChapter.Name()},
	},
	UnitTypeAWDP: {
		requires: []string{domain.KeyRequest.Name(), domain.KeyRetrieval.Name()},
		uses:     []string{domain.KeyDiagnosis.Name(), domain.KeyAWDPSearch.Name()},
		provides: []string{domain.KeyAWDP.Name()},
	},
	UnitTypeCrossCheck: {
		requires: []string{domain.KeyRequest.Name(), domain.KeyDiagnosis.Name()},
		uses:     []string{domain.KeyATAChapter.Name(), domain.KeyAWDP.Name(), domain.KeyRetrieval.Name()},
		provides: []string{domain.KeyDiagnosis.Name(), domain.KeyCrossCheck.Name()},
	},
	UnitTypeExtraction: {
		requires: []string{domain.KeyDiagnosis.Name()},
		uses:     []string{domain.KeyATAChapter.Name(), domain.KeyRetrieval.Name()},
		provides: []string{domain.KeyExtraction.Name()},
	},
	UnitTypeCertainty: {
		requires: []string{domain.KeyRequest.Name(), domain.KeyDiagnosis.Name()},
		uses:     []string{domain.KeyRetrieval.Name(), domain.KeyAWDP.Name()},
		provides: []string{domain.KeyCertainty.Name()},
	},
	UnitTypeReview: {
		requires: []string{domain.KeyRequest.Name(), domain.KeyDiagnosis.Name(),
			domain.KeyCertainty.Name(), domain.KeyExtraction.Name()},
		uses:     []string{domain.KeyCrossCheck.Name(), domain.KeyATAChapter.Name(), domain.KeyDiagnosisSource.Name()},
		provides: []string{domain.KeyCertainty.Name(), domain.KeyReport.Name()},
	},
}

// inputKeys are seeded by the service before the first stage runs.
var inputKeys = map[string]struct{}{
	domain.KeyRequest.Name():   {},
	domain.KeyRequestID.Name(): {},
}

// linkStages walks the stages in order. Every required key must be
// provided by an earlier stage; each read of a key adds an edge from its
// latest earlier writer. Members of one layer may not write the same key.
func linkStages(def *PipelineDefinition, configs map[string]UnitConfig, graph *Graph) error {
	writer := make(map[string]string)
	for _, stage := range def.Pipeline.Stages {
		written := make(map[string]string)
		for _, id := range stage.Members() {
			contract, ok := unitContracts[configs[id].Type]
			if !ok {
				continue
			}
			for _, key := range contract.requires {
				if _, seeded := inputKeys[key]; seeded {
					continue
				}
				if _, ok := writer[key]; !ok {
					return fmt.Errorf("%w: unit %s requires %q, which no earlier stage provides",
						ErrStageOrder, id, key)
				}
			}
			for _, key := range append(append([]string{}, contract.requires...), contract.uses...) {
				src, ok := writer[key]
				if !ok || src == id || graph.HasEdge(src, id) {
					continue
				}
				if err := graph.AddEdge(src, id); err != nil {
					return fmt.Errorf("%w: %v", ErrStageOrder, err)
				}
			}
			for _, key := range contract.provides {
				if other, clash := written[key]; clash {
					return fmt.Errorf("%w: units %s and %s of layer %s both write %q",
						ErrStageOrder, other, id, stage.ID(), key)
				}
				written[key] = id
			}
		}
		for key, id := range written {
			writer[key] = id
		}
	}
	return nil
}

// calculateHash computes the sha256 of the re-encoded definition so that
// formatting differences do not defeat the cache.
func (pl *PipelineLoader) calculateHash(def *PipelineDefinition) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(def); err != nil {
		return "", fmt.Errorf("failed to encode definition for hashing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func (pl *PipelineLoader) getCached(hash string) (*LoadedPipeline, bool) {
	pl.cacheMu.RLock()
	defer pl.cacheMu.RUnlock()

	loaded, ok := pl.cache[hash]
	return loaded, ok
}

func (pl *PipelineLoader) storeCached(hash string, loaded *LoadedPipeline) {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache[hash] = loaded
}

// ClearCache drops every compiled pipeline.
func (pl *PipelineLoader) ClearCache() {
	pl.cacheMu.Lock()
	defer pl.cacheMu.Unlock()

	pl.cache = make(map[string]*LoadedPipeline)
}

// Describe renders the stage plan, one stage per line, for logs and the
// CLI.
func (lp *LoadedPipeline) Describe() string {
	var b strings.Builder
	for i, stage := range lp.Definition.Pipeline.Stages {
		if i > 0 {
			b.WriteString("\n")
		}
		if stage.Layer != "" {
			fmt.Fprintf(&b, "%d. %s [%s]", i+1, stage.Layer, strings.Join(stage.Units, " | "))
		} else {
			fmt.Fprintf(&b, "%d. %s", i+1, stage.Unit)
		}
	}
	return b.String()
}
