package application

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/hangarlabs/aw139-certainty/internal/certainty"
)

// paramKind is the YAML scalar kind a unit parameter must decode to.
type paramKind int

const (
	kindInt paramKind = iota
	kindFloat
	kindBool
	kindString
)

func (k paramKind) String() string {
	switch k {
	case kindInt:
		return "an integer"
	case kindFloat:
		return "a number"
	case kindBool:
		return "a boolean"
	default:
		return "a string"
	}
}

// paramRule constrains one parameter. Numeric bounds apply to kindInt and
// kindFloat, choices to kindString.
type paramRule struct {
	kind     paramKind
	min, max float64
	choices  []string
}

// unitParameterRules lists the parameters each unit type accepts. The
// factories validate the decoded configuration again; these rules catch
// typos and wrong types while the pipeline file is loaded.
var unitParameterRules = map[string]map[string]paramRule{
	UnitTypeRetrieval: {
		"top_k":           {kind: kindInt, min: 1, max: 50},
		"awdp_top_k":      {kind: kindInt, min: 1, max: 20},
		"prefetch_awdp":   {kind: kindBool},
		"skip_generation": {kind: kindBool},
	},
	UnitTypeDiagnosis: {
		"mode":            {kind: kindString, choices: []string{"rag", "llm"}},
		"system_prompt":   {kind: kindString},
		"prompt_template": {kind: kindString},
		"temperature":     {kind: kindFloat, min: 0, max: 1},
		"max_tokens":      {kind: kindInt, min: 100, max: 8000},
		"context_docs":    {kind: kindInt, min: 1, max: 20},
		"context_chars":   {kind: kindInt, min: 100, max: 10000},
		"fallback_to_rag": {kind: kindBool},
	},
	UnitTypeAWDP: {
		"secondary_search": {kind: kindBool},
		"top_k":            {kind: kindInt, min: 1, max: 20},
	},
	UnitTypeCrossCheck: {
		"verify_references": {kind: kindBool},
		"max_edit_distance": {kind: kindInt, min: 0, max: 10},
	},
	UnitTypeExtraction: {},
	UnitTypeCertainty:  {},
	UnitTypeReview: {
		"threshold":                        {kind: kindInt, min: 1, max: 100},
		"fault_without_causes_cap":         {kind: kindInt, min: 40, max: 100},
		"remove_install_without_steps_cap": {kind: kindInt, min: 40, max: 100},
	},
}

// ValidateUnitParameters checks the decoded parameters of a unit against
// the rules of its type: unknown keys, wrong types and out of range values
// are rejected.
func ValidateUnitParameters(unitType string, params map[string]any) error {
	rules, ok := unitParameterRules[unitType]
	if !ok {
		return fmt.Errorf("unknown unit type: %s", unitType)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rule, ok := rules[key]
		if !ok {
			return fmt.Errorf("%s does not accept parameter %q", unitType, key)
		}
		if err := rule.check(key, params[key]); err != nil {
			return fmt.Errorf("%s: %w", unitType, err)
		}
	}
	return nil
}

func (r paramRule) check(key string, value any) error {
	switch r.kind {
	case kindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s must be %s", key, r.kind)
		}
	case kindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s must be %s", key, r.kind)
		}
		if len(r.choices) > 0 && !slices.Contains(r.choices, s) {
			return fmt.Errorf("%s must be one of %v, got %q", key, r.choices, s)
		}
	case kindInt, kindFloat:
		var f float64
		switch v := value.(type) {
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		case float64:
			if r.kind == kindInt && v != math.Trunc(v) {
				return fmt.Errorf("%s must be %s", key, r.kind)
			}
			f = v
		default:
			return fmt.Errorf("%s must be %s", key, r.kind)
		}
		if f < r.min || f > r.max {
			return fmt.Errorf("%s must be between %g and %g", key, r.min, r.max)
		}
	}
	return nil
}

// RegisterValidators registers the custom tags used by the pipeline and
// service configuration: semver, providermodel and the weights struct
// check of the certainty configuration.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("providermodel", validateProviderModel); err != nil {
		return fmt.Errorf("failed to register providermodel validator: %w", err)
	}
	v.RegisterStructValidation(validateWeights, certainty.Weights{})
	return nil
}

// validateSemver validates that a string follows X.Y.Z with non-negative
// integers.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	if err != nil || n != 3 || major < 0 || minor < 0 || patch < 0 {
		return false
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch) == value
}

var providerModelPattern = regexp.MustCompile(`^[a-z0-9]+(/[A-Za-z0-9\-_.]+(@[A-Za-z0-9\-_.]+)?)?$`)

// validateProviderModel accepts "provider", "provider/model" and
// "provider/model@version".
func validateProviderModel(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	return providerModelPattern.MatchString(model)
}

// validateWeights reports a "weights" error when the certainty factor
// weights do not sum to 1.
func validateWeights(sl validator.StructLevel) {
	w, ok := sl.Current().Interface().(certainty.Weights)
	if !ok {
		return
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		sl.ReportError(w.Coverage, "Coverage", "coverage", "weights", fmt.Sprintf("%.4f", w.Sum()))
	}
}
