package application

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/internal/certainty"
)

func TestValidateUnitParameters(t *testing.T) {
	tests := []struct {
		name     string
		unitType string
		params   map[string]any
		wantErr  string
	}{
		{name: "no parameters", unitType: UnitTypeExtraction},
		{
			name:     "valid retrieval",
			unitType: UnitTypeRetrieval,
			params:   map[string]any{"top_k": 10, "awdp_top_k": 5, "prefetch_awdp": true},
		},
		{
			name:     "integral float accepted as integer",
			unitType: UnitTypeReview,
			params:   map[string]any{"threshold": 85.0},
		},
		{
			name:     "fractional float rejected as integer",
			unitType: UnitTypeReview,
			params:   map[string]any{"threshold": 85.5},
			wantErr:  "threshold must be an integer",
		},
		{
			name:     "temperature accepts ints and floats",
			unitType: UnitTypeDiagnosis,
			params:   map[string]any{"temperature": 0, "max_tokens": 2500},
		},
		{
			name:     "unknown unit type",
			unitType: "ensemble",
			wantErr:  "unknown unit type: ensemble",
		},
		{
			name:     "unknown key",
			unitType: UnitTypeCertainty,
			params:   map[string]any{"threshold": 85},
			wantErr:  `certainty does not accept parameter "threshold"`,
		},
		{
			name:     "wrong type",
			unitType: UnitTypeAWDP,
			params:   map[string]any{"secondary_search": "yes"},
			wantErr:  "secondary_search must be a boolean",
		},
		{
			name:     "choice not allowed",
			unitType: UnitTypeDiagnosis,
			params:   map[string]any{"mode": "hybrid"},
			wantErr:  "mode must be one of [rag llm]",
		},
		{
			name:     "below minimum",
			unitType: UnitTypeReview,
			params:   map[string]any{"fault_without_causes_cap": 10},
			wantErr:  "fault_without_causes_cap must be between 40 and 100",
		},
		{
			name:     "first failing key in sorted order is reported",
			unitType: UnitTypeRetrieval,
			params:   map[string]any{"top_k": 0, "awdp_top_k": 0},
			wantErr:  "awdp_top_k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUnitParameters(tt.unitType, tt.params)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegisterValidators(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidators(v))

	type versioned struct {
		Version string `validate:"semver"`
		Model   string `validate:"providermodel"`
	}

	tests := []struct {
		name  string
		value versioned
		valid bool
	}{
		{name: "plain", value: versioned{Version: "1.2.3", Model: "openai"}, valid: true},
		{name: "provider and model", value: versioned{Version: "0.0.1", Model: "openai/gpt-4o"}, valid: true},
		{name: "versioned model", value: versioned{Version: "10.20.30", Model: "anthropic/claude-sonnet@2025"}, valid: true},
		{name: "empty model", value: versioned{Version: "1.0.0"}, valid: true},
		{name: "two parts", value: versioned{Version: "1.0", Model: "openai"}},
		{name: "pre-release", value: versioned{Version: "1.0.0-beta", Model: "openai"}},
		{name: "leading zero", value: versioned{Version: "01.0.0", Model: "openai"}},
		{name: "upper case provider", value: versioned{Version: "1.0.0", Model: "OpenAI/gpt-4o"}},
		{name: "empty model name", value: versioned{Version: "1.0.0", Model: "openai/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.value)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRegisterValidators_Weights(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidators(v))

	ok := certainty.DefaultConfig().Weights
	assert.NoError(t, v.Struct(ok))

	bad := ok
	bad.Coverage += 0.1
	err := v.Struct(bad)
	require.Error(t, err)

	var fieldErrs validator.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "weights", fieldErrs[0].Tag())
}
