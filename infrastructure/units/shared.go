// Package units provides the diagnosis pipeline stages that implement the
// ports.Unit interface.
package units

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Common errors returned by units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrNilLLMClient is returned when an LLM backed unit has no client.
	ErrNilLLMClient = errors.New("LLM client cannot be nil")

	// ErrNilRetriever is returned when a retrieval backed unit has no retriever.
	ErrNilRetriever = errors.New("retriever cannot be nil")

	// ErrNilScorer is returned when the certainty unit has no scorer.
	ErrNilScorer = errors.New("scorer cannot be nil")

	// ErrEmptyQuery is returned when the request carries no query text.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// decodeConfig overlays a parameter map onto defaults using YAML
// marshaling, then validates the result.
func decodeConfig[T any](params map[string]any, defaults T) (T, error) {
	cfg := defaults
	if len(params) == 0 {
		return cfg, validateConfig(cfg)
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return cfg, fmt.Errorf("marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// withoutDependencies returns params minus the infrastructure keys that
// the registry injects, so the rest can be decoded as plain configuration.
func withoutDependencies(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case DepLLMClient, DepRetriever, DepScorer, DepMetrics:
			continue
		}
		out[k] = v
	}
	return out
}

// Well known parameter keys under which the registry injects
// infrastructure into unit factories.
const (
	DepLLMClient = "llm_client"
	DepRetriever = "retriever"
	DepScorer    = "scorer"
	DepMetrics   = "metrics"
)
