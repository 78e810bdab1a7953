package ports

import (
	"context"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

// MergeStrategy defines how multiple states from parallel executions
// should be combined into a single output state.
type MergeStrategy interface {
	// Merge combines multiple states from parallel executions into a single state.
	// The baseState parameter is the original input state to the layer.
	// The states parameter contains all successfully executed states from the
	// layer, in the order the executables were added.
	// The implementation must be deterministic and must not modify its inputs.
	Merge(baseState domain.State, states []domain.State) (domain.State, error)
}

// Executable is anything that can run inside a pipeline: a unit adapter,
// a layer of parallel units, or a nested pipeline.
type Executable interface {
	// Execute processes the given state and returns the updated state.
	// The input state is immutable and MUST NOT be modified; use
	// domain.With or State.WithMultiple to derive a new one. Multiple
	// executables may receive the same state concurrently inside a layer.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the unique identifier of this executable.
	ID() string
}

// Pipeline runs executables in strict order, feeding each one's output
// into the next.
type Pipeline interface {
	Executable

	// Add appends an executable to the end of the sequence.
	// It returns an error for nil executables and duplicate IDs.
	Add(exec Executable) error

	// Executables returns the ordered list of executables.
	// The returned slice should not be modified by callers.
	Executables() []Executable
}

// Layer runs independent executables concurrently on the same input state
// and merges their outputs.
type Layer interface {
	Executable

	// Add includes an executable in this layer's parallel group.
	Add(exec Executable) error

	// Executables returns all executables of the layer.
	// The returned slice should not be modified by callers.
	Executables() []Executable

	// SetMergeStrategy configures how parallel results are combined.
	// If not set, a last-write-wins strategy is used.
	SetMergeStrategy(strategy MergeStrategy)
}
