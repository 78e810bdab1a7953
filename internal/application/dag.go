package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// ErrMergeConflict is returned when two executables of a layer write
// different values under the same key.
var ErrMergeConflict = errors.New("conflicting writes in parallel layer")

// Pipeline is a sequential execution container that processes executables
// in strict order, where each executable's output becomes the input for
// the next executable in the sequence.
type Pipeline struct {
	// id is the unique identifier for this pipeline.
	id string
	// executables contains the ordered list of stages.
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	mu    sync.RWMutex
}

// NewPipeline creates a new sequential execution pipeline with the specified
// identifier, ready to accept executable components.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute processes all executables in this pipeline sequentially,
// passing the output state from each executable as input to the next.
// Execute stops between stages when ctx is cancelled and returns the
// state reached so far. A failing stage is named in the returned error.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	executables := make([]ports.Executable, len(p.executables))
	copy(executables, p.executables)
	p.mu.RUnlock()

	log := logger.FromContext(ctx).With("pipeline", p.id)
	currentState := state
	for _, exec := range executables {
		select {
		case <-ctx.Done():
			return currentState, ctx.Err()
		default:
		}

		start := time.Now()
		newState, err := exec.Execute(ctx, currentState)
		if err != nil {
			log.Warn("stage failed", "stage", exec.ID(), "error", err)
			return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		log.Debug("stage finished", "stage", exec.ID(), "duration", time.Since(start))
		currentState = newState
	}

	return currentState, nil
}

// ID returns the unique string identifier for this pipeline.
func (p *Pipeline) ID() string {
	return p.id
}

// Add appends an executable to the end of this pipeline's execution
// sequence. Add returns an error if the executable is nil or if an
// executable with the same ID already exists in the pipeline.
// Add is safe for concurrent use with Execute.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the ordered list of executables.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ports.Executable, len(p.executables))
	copy(result, p.executables)
	return result
}

// Layer is a parallel execution container that runs independent
// executables concurrently on the same input state.
type Layer struct {
	id          string
	executables []ports.Executable
	idSet       map[string]struct{}
	// mergeStrategy combines the outputs. If nil, ChangeSetMerge is used.
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit caps concurrent executions. Defaults to
	// runtime.NumCPU() * 2.
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates a new parallel execution layer with the specified
// identifier.
func NewLayer(id string) *Layer {
	return &Layer{
		id:               id,
		executables:      make([]ports.Executable, 0),
		idSet:            make(map[string]struct{}),
		concurrencyLimit: runtime.NumCPU() * 2,
	}
}

// Execute runs all executables of the layer concurrently, each receiving
// the same input state. The first failure cancels the others and is
// returned. Successful outputs are handed to the merge strategy in the
// order the executables were added, so the merged state does not depend
// on scheduling.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := make([]ports.Executable, len(l.executables))
	copy(executables, l.executables)
	limit := l.concurrencyLimit
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}
	if strategy == nil {
		strategy = ChangeSetMerge{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	states := make([]domain.State, len(executables))
	for i, exec := range executables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := exec.Execute(gctx, state)
			if err != nil {
				return fmt.Errorf("executable %s: %w", exec.ID(), err)
			}
			states[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return state, fmt.Errorf("layer %s: %w", l.id, err)
	}

	merged, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// ID returns the unique string identifier for this layer.
func (l *Layer) ID() string {
	return l.id
}

// Add includes an executable in this layer's parallel execution group.
// Add returns an error if the executable is nil or if an executable
// with the same ID already exists in the layer.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the executables in the order they were
// added.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]ports.Executable, len(l.executables))
	copy(result, l.executables)
	return result
}

// SetMergeStrategy configures how parallel execution results are combined.
// It must be called before Execute.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mergeStrategy = strategy
}

// SetConcurrencyLimit configures the maximum number of executables that
// run at once. Zero or negative values restore the default.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.concurrencyLimit = limit
}

// ChangeSetMerge merges the keys each parallel output changed relative to
// the layer input. Usage counters are summed as deltas. Two outputs that
// write different values under the same key are a conflict.
type ChangeSetMerge struct{}

var usageKeys = map[string]struct{}{
	domain.KeyTokensUsed.Name(): {},
	domain.KeyCallsMade.Name():  {},
}

// Merge implements ports.MergeStrategy.
func (ChangeSetMerge) Merge(baseState domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return baseState, nil
	}

	baseUsage := baseState.Usage()
	var tokens, calls int64
	updates := make(map[string]any)
	writer := make(map[string]int)

	for i, s := range states {
		u := s.Usage()
		tokens += u.Tokens - baseUsage.Tokens
		calls += u.Calls - baseUsage.Calls

		keys := s.Keys()
		slices.Sort(keys)
		for _, k := range keys {
			if _, ok := usageKeys[k]; ok {
				continue
			}
			v, _ := s.GetRaw(k)
			if bv, ok := baseState.GetRaw(k); ok && reflect.DeepEqual(bv, v) {
				continue
			}
			if prev, ok := updates[k]; ok && !reflect.DeepEqual(prev, v) {
				return baseState, fmt.Errorf("%w: key %q written by outputs %d and %d",
					ErrMergeConflict, k, writer[k], i)
			}
			updates[k] = v
			writer[k] = i
		}
	}

	merged := baseState.WithMultiple(updates)
	if tokens != 0 || calls != 0 {
		merged = merged.AddUsage(tokens, calls)
	}
	return merged, nil
}

// Graph is a directed acyclic graph of executables. The pipeline loader
// uses it to record which stage consumes the output of which other stage
// and to derive a valid execution order.
type Graph struct {
	nodes    map[string]ports.Executable
	edges    map[string][]string
	edgeSet  map[string]struct{}
	inDegree map[string]int
	mu       sync.RWMutex
}

// NewGraph creates a new empty directed acyclic graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]ports.Executable),
		edges:    make(map[string][]string),
		edgeSet:  make(map[string]struct{}),
		inDegree: make(map[string]int),
	}
}

// AddNode registers an executable as a node. The executable's ID must be
// unique within the graph.
func (g *Graph) AddNode(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to graph")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := exec.ID()
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node with ID %s already exists in graph", id)
	}

	g.nodes[id] = exec
	g.edges[id] = make([]string, 0)
	g.inDegree[id] = 0

	return nil
}

// AddEdge records that targetID depends on sourceID. The edge is rolled
// back when it would create a cycle.
func (g *Graph) AddEdge(sourceID, targetID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[sourceID]; !exists {
		return fmt.Errorf("source node %s does not exist", sourceID)
	}
	if _, exists := g.nodes[targetID]; !exists {
		return fmt.Errorf("target node %s does not exist", targetID)
	}

	edgeKey := sourceID + "->" + targetID
	if _, exists := g.edgeSet[edgeKey]; exists {
		return fmt.Errorf("edge from %s to %s already exists", sourceID, targetID)
	}

	g.edges[sourceID] = append(g.edges[sourceID], targetID)
	g.edgeSet[edgeKey] = struct{}{}
	g.inDegree[targetID]++

	if g.hasCycleUnsafe() {
		g.edges[sourceID] = g.edges[sourceID][:len(g.edges[sourceID])-1]
		delete(g.edgeSet, edgeKey)
		g.inDegree[targetID]--
		return fmt.Errorf("adding edge from %s to %s would create a cycle", sourceID, targetID)
	}

	return nil
}

// HasEdge reports whether sourceID -> targetID was added.
func (g *Graph) HasEdge(sourceID, targetID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.edgeSet[sourceID+"->"+targetID]
	return ok
}

// TopologicalSort returns the executables in dependency order using
// Kahn's algorithm. Ties are broken by ID so the order is stable.
func (g *Graph) TopologicalSort() ([]ports.Executable, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	ready := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	result := make([]ports.Executable, 0, len(g.nodes))
	for len(ready) > 0 {
		nodeID := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[nodeID])

		released := false
		for _, neighbor := range g.edges[nodeID] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = append(ready, neighbor)
				released = true
			}
		}
		if released {
			slices.Sort(ready)
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("graph contains a cycle")
	}
	return result, nil
}

// HasCycle reports whether the graph contains a circular dependency.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.hasCycleUnsafe()
}

// hasCycleUnsafe runs a three-color depth-first search. The caller must
// hold the graph mutex.
func (g *Graph) hasCycleUnsafe() bool {
	// White (0): unvisited, Gray (1): visiting, Black (2): visited.
	colors := make(map[string]int, len(g.nodes))

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		colors[nodeID] = 1
		for _, neighbor := range g.edges[nodeID] {
			if colors[neighbor] == 1 {
				return true
			}
			if colors[neighbor] == 0 && dfs(neighbor) {
				return true
			}
		}
		colors[nodeID] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && dfs(id) {
			return true
		}
	}
	return false
}

// GetNode retrieves an executable by its identifier.
func (g *Graph) GetNode(id string) (ports.Executable, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	exec, exists := g.nodes[id]
	return exec, exists
}

var (
	_ ports.Pipeline      = (*Pipeline)(nil)
	_ ports.Layer         = (*Layer)(nil)
	_ ports.MergeStrategy = ChangeSetMerge{}
)
