package application

import (
	"gopkg.in/yaml.v3"

	"github.com/hangarlabs/aw139-certainty/infrastructure/middleware"
)

// Unit types understood by the pipeline loader.
const (
	UnitTypeRetrieval  = "retrieval"
	UnitTypeDiagnosis  = "diagnosis"
	UnitTypeAWDP       = "awdp"
	UnitTypeCrossCheck = "crosscheck"
	UnitTypeExtraction = "extraction"
	UnitTypeCertainty  = "certainty"
	UnitTypeReview     = "review"
)

// PipelineDefinition is the YAML document describing a diagnosis pipeline:
// the units it is built from and the order of its stages.
type PipelineDefinition struct {
	// Version is the schema version of the document.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata describes the pipeline for operators.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Units declares every unit referenced by the stages.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
	// Pipeline lists the stages in execution order.
	Pipeline PipelineConfig `yaml:"pipeline" validate:"required"`
}

// Metadata provides descriptive information about a pipeline.
type Metadata struct {
	Name        string            `yaml:"name" validate:"required,min=1,max=255"`
	Description string            `yaml:"description" validate:"max=1000"`
	Tags        []string          `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	Labels      map[string]string `yaml:"labels" validate:"max=50"`
}

// UnitConfig declares one unit of the pipeline.
type UnitConfig struct {
	// ID is the unit identifier, referenced by stages and used in logs,
	// spans and metrics.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Type selects the unit implementation.
	Type string `yaml:"type" validate:"required,oneof=retrieval diagnosis awdp crosscheck extraction certainty review"`
	// Model optionally binds the unit to a specific "provider/model" client
	// instead of the service default.
	Model string `yaml:"model,omitempty" validate:"omitempty,providermodel"`
	// Budget wraps the unit in a budget manager when any limit is set.
	Budget middleware.Budget `yaml:"budget,omitempty"`
	// Parameters is decoded by the unit factory into its configuration.
	Parameters yaml.Node `yaml:"parameters,omitempty"`
}

// PipelineConfig lists the stages of the pipeline.
type PipelineConfig struct {
	ID     string        `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	Stages []StageConfig `yaml:"stages" validate:"required,min=1,dive"`
}

// StageConfig is either a single unit or a layer of units that run
// concurrently on the same input.
type StageConfig struct {
	// Unit names a single unit.
	Unit string `yaml:"unit,omitempty" validate:"required_without=Layer,excluded_with=Layer"`
	// Layer names a parallel group. Units lists its members.
	Layer string `yaml:"layer,omitempty" validate:"omitempty,alphanum"`
	// Units are the members of a layer, at least two.
	Units []string `yaml:"units,omitempty" validate:"required_with=Layer,excluded_with=Unit"`
	// Concurrency caps the members of a layer that run at once.
	Concurrency int `yaml:"concurrency,omitempty" validate:"omitempty,min=1,max=64"`
}

// ID returns the stage identifier: the unit id or the layer id.
func (s StageConfig) ID() string {
	if s.Layer != "" {
		return s.Layer
	}
	return s.Unit
}

// Members returns the unit ids of the stage.
func (s StageConfig) Members() []string {
	if s.Layer != "" {
		return s.Units
	}
	return []string{s.Unit}
}

// DefaultPipelineYAML is the built-in diagnosis pipeline used when no
// pipeline file is configured.
const DefaultPipelineYAML = `version: "1.0.0"
metadata:
  name: aw139-diagnosis
  description: Retrieval, diagnosis, wiring diagram detection, cross-check, certainty scoring and review.
  tags: [aw139, maintenance]
units:
  - id: retrieve
    type: retrieval
    parameters:
      top_k: 10
      awdp_top_k: 5
      prefetch_awdp: true
  - id: diagnose
    type: diagnosis
    parameters:
      mode: rag
      fallback_to_rag: true
  - id: awdp
    type: awdp
    parameters:
      secondary_search: true
      top_k: 5
  - id: crosscheck
    type: crosscheck
    parameters:
      verify_references: true
      max_edit_distance: 2
  - id: extract
    type: extraction
  - id: certainty
    type: certainty
  - id: review
    type: review
pipeline:
  id: diagnosis
  stages:
    - unit: retrieve
    - unit: diagnose
    - unit: awdp
    - unit: crosscheck
    - layer: evidence
      units: [extract, certainty]
    - unit: review
`
