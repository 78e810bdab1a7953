// Package domain contains pure, dependency-free domain models and types
// for the maintenance diagnosis service.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the string form of the key.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys used by the diagnosis pipeline.
var (
	// KeyRequest stores the normalized diagnosis request.
	KeyRequest = Key[DiagnosisRequest]{"request"}

	// KeyQuery stores the raw maintenance query as typed by the mechanic.
	KeyQuery = Key[string]{"query"}

	// KeyEnhancedQuery stores the query decorated with task type and
	// aircraft configuration, as sent to retrieval.
	KeyEnhancedQuery = Key[string]{"enhanced_query"}

	// KeyRetrieval stores the retrieval result for the enhanced query.
	KeyRetrieval = Key[RetrievalResult]{"retrieval"}

	// KeyAWDPSearch stores the prefetched secondary wiring diagram search.
	// It is only present when the request names an ATA code.
	KeyAWDPSearch = Key[RetrievalResult]{"awdp_search"}

	// KeyAWDP stores wiring diagram detection results.
	KeyAWDP = Key[AWDPInfo]{"awdp"}

	// KeyDiagnosis stores the diagnosis text. Units downstream of the
	// review stage see the final text including header and footer.
	KeyDiagnosis = Key[string]{"diagnosis"}

	// KeyDiagnosisSource describes how the diagnosis text was produced.
	KeyDiagnosisSource = Key[string]{"diagnosis_source"}

	// KeyATAChapter stores the resolved ATA chapter for the report.
	KeyATAChapter = Key[string]{"ata_chapter"}

	// KeyCrossCheck stores the review stage verdict on the diagnosis.
	KeyCrossCheck = Key[CrossCheck]{"cross_check"}

	// KeyExtraction stores the structured report fields.
	KeyExtraction = Key[Extraction]{"extraction"}

	// KeyCertainty stores the certainty result, after caller-side caps.
	KeyCertainty = Key[CertaintyResult]{"certainty"}

	// KeyReport stores the assembled diagnosis report.
	KeyReport = Key[DiagnosisReport]{"report"}

	// Execution context keys.

	// KeyPipelineID stores the identifier of the pipeline being executed.
	KeyPipelineID = Key[string]{"execution.pipeline_id"}

	// KeyRequestID stores the correlation id of the request.
	KeyRequestID = Key[string]{"execution.request_id"}

	// KeyTraceLevel stores the current trace level (e.g., "debug", "info").
	KeyTraceLevel = Key[string]{"execution.trace_level"}

	// KeyTokensUsed tracks cumulative LLM token consumption.
	KeyTokensUsed = Key[int64]{"execution.usage.tokens_used"}

	// KeyCallsMade tracks cumulative LLM calls.
	KeyCallsMade = Key[int64]{"execution.usage.calls_made"}
)

// deepCopyValue creates a deep copy of a value to ensure true immutability.
// It handles slices, maps, and other reference types that would otherwise
// allow external modification of State data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(copyInto(v.Index(i)))
		}
		return newSlice.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		newMap := reflect.MakeMapWithSize(v.Type(), v.Len())
		for _, key := range v.MapKeys() {
			newMap.SetMapIndex(copyInto(key), copyInto(v.MapIndex(key)))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return v.Interface()
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(copyInto(v.Elem()))
		return newPtr.Interface()

	case reflect.Struct:
		// Unexported fields are left at their zero value; domain types only
		// carry exported fields.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(copyInto(v.Field(i)))
			}
		}
		return newStruct.Interface()

	default:
		// Primitive types are returned as-is since they are copied by value.
		return value
	}
}

// copyInto deep copies v and returns a value assignable to v's type.
// Nil interfaces come back as the zero value of the static type.
func copyInto(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface && v.IsNil() {
		return reflect.Zero(v.Type())
	}
	copied := deepCopyValue(v.Interface())
	if copied == nil {
		return reflect.Zero(v.Type())
	}
	return reflect.ValueOf(copied)
}

// State represents an immutable collection of pipeline data. It uses
// copy-on-write semantics to ensure thread-safety and prevent unintended
// mutations. State is the primary data structure for passing information
// between Units.
type State struct {
	data map[string]any
}

// NewState creates a new empty State.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	diagnosis, ok := Get(state, KeyDiagnosis)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// MustGet is Get for values that a previous stage is required to have set.
// It returns ErrKeyNotFound wrapped in a StateError when the key is absent.
func MustGet[T any](s State, key Key[T]) (T, error) {
	v, ok := Get(s, key)
	if !ok {
		var zero T
		return zero, NewStateError(key.name, "get", ErrKeyNotFound)
	}
	return v, nil
}

// GetRaw is a method version of Get that uses a string key.
// For type safety, use the generic Get function instead.
func (s State) GetRaw(keyName string) (any, bool) {
	value, exists := s.data[keyName]
	if !exists {
		return nil, false
	}
	return deepCopyValue(value), true
}

// With creates a new State with the specified key-value pair added or
// updated, leaving the original unchanged.
//
// Example:
//
//	next := With(state, KeyDiagnosis, text)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any, 1)
	}
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithRaw is a method version of With that uses a string key and allows
// chaining. For type safety, use the generic With function instead.
func (s State) WithRaw(keyName string, value any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any, 1)
	}
	newData[keyName] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added
// or updated in a single clone operation.
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	if newData == nil {
		newData = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// ExecutionContext contains metadata about the current pipeline run.
type ExecutionContext struct {
	// PipelineID is the identifier of the pipeline being executed.
	PipelineID string

	// RequestID correlates logs, spans and the final report.
	RequestID string
}

// WithExecutionContext returns a State carrying execution metadata and
// zeroed usage counters. It is called once before the first unit runs.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	return s.WithMultiple(map[string]any{
		KeyPipelineID.name: ctx.PipelineID,
		KeyRequestID.name:  ctx.RequestID,
		KeyTokensUsed.name: int64(0),
		KeyCallsMade.name:  int64(0),
	})
}

// GetExecutionContext extracts execution metadata from the State.
func (s State) GetExecutionContext() (ExecutionContext, bool) {
	pipelineID, ok1 := Get(s, KeyPipelineID)
	requestID, ok2 := Get(s, KeyRequestID)
	if !ok1 || !ok2 {
		return ExecutionContext{}, false
	}
	return ExecutionContext{PipelineID: pipelineID, RequestID: requestID}, true
}

// Usage tracks LLM resource consumption during a pipeline run.
type Usage struct {
	Tokens int64
	Calls  int64
}

// AddUsage returns a State with the usage counters incremented.
func (s State) AddUsage(tokens, calls int64) State {
	current := s.Usage()
	return s.WithMultiple(map[string]any{
		KeyTokensUsed.name: current.Tokens + tokens,
		KeyCallsMade.name:  current.Calls + calls,
	})
}

// Usage returns the cumulative usage recorded in the State.
func (s State) Usage() Usage {
	tokens, _ := Get(s, KeyTokensUsed)
	calls, _ := Get(s, KeyCallsMade)
	return Usage{Tokens: tokens, Calls: calls}
}
