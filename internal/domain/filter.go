package domain

import "strings"

// FilterKind classifies a manual filter.
type FilterKind int

const (
	// FilterNone applies no narrowing.
	FilterNone FilterKind = iota
	// FilterATA narrows to an ATA chapter.
	FilterATA
	// FilterTrainingMaterial narrows to one training manual set.
	FilterTrainingMaterial
)

// String returns the lowercase name of the kind.
func (k FilterKind) String() string {
	switch k {
	case FilterATA:
		return "ata"
	case FilterTrainingMaterial:
		return "training_material"
	default:
		return "none"
	}
}

// TrainingMaterial identifies one of the training manual sets.
type TrainingMaterial string

// Known training materials.
const (
	TrainingPrimusEpic TrainingMaterial = "PRIMUS_EPIC"
	TrainingPT6C67CD   TrainingMaterial = "PT6C_67CD"
	TrainingAirframe   TrainingMaterial = "AW139_AIRFRAME"
)

// TrainingMaterials lists the known training materials in a stable order.
func TrainingMaterials() []TrainingMaterial {
	return []TrainingMaterial{TrainingPrimusEpic, TrainingPT6C67CD, TrainingAirframe}
}

// QueryContext returns the phrase prepended to queries that target the
// training material.
func (m TrainingMaterial) QueryContext() string {
	switch m {
	case TrainingPrimusEpic:
		return "Primus Epic avionics system"
	case TrainingPT6C67CD:
		return "PT6C-67CD engine"
	case TrainingAirframe:
		return "AW139 Airframe systems"
	default:
		return ""
	}
}

// ManualFilter restricts which manuals a request is answered from.
// The zero value applies no narrowing.
type ManualFilter struct {
	// Kind is the filter classification.
	Kind FilterKind `json:"kind"`

	// Code is the two-digit ATA chapter for FilterATA, or the training
	// material identifier for FilterTrainingMaterial.
	Code string `json:"code"`

	// Raw is the filter as supplied by the caller.
	Raw string `json:"raw"`
}

// ParseManualFilter classifies a raw ata_code value. Training material
// identifiers are matched exactly. ATA codes may carry an "ATA " prefix and
// a section suffix such as "32-50"; only the chapter is kept. Anything else
// yields a filter of kind FilterNone that still remembers the raw text.
func ParseManualFilter(raw string) ManualFilter {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ManualFilter{}
	}

	for _, m := range TrainingMaterials() {
		if trimmed == string(m) {
			return ManualFilter{Kind: FilterTrainingMaterial, Code: trimmed, Raw: raw}
		}
	}

	code := strings.TrimSpace(strings.TrimPrefix(trimmed, "ATA "))
	if len(code) >= 2 && isDigit(code[0]) && isDigit(code[1]) && (len(code) == 2 || !isDigit(code[2])) {
		return ManualFilter{Kind: FilterATA, Code: code[:2], Raw: raw}
	}

	return ManualFilter{Kind: FilterNone, Raw: raw}
}

// IsNone reports whether the filter applies no narrowing.
func (f ManualFilter) IsNone() bool { return f.Kind == FilterNone }

// TrainingMaterial returns the training material for FilterTrainingMaterial
// filters and "" otherwise.
func (f ManualFilter) TrainingMaterial() TrainingMaterial {
	if f.Kind != FilterTrainingMaterial {
		return ""
	}
	return TrainingMaterial(f.Code)
}

// QueryPrefix returns the context prefix used when querying retrieval,
// e.g. "ATA 32: " or "PT6C-67CD engine: ". Unrecognized non-empty filters
// are passed through as "ATA <raw>: ".
func (f ManualFilter) QueryPrefix() string {
	switch f.Kind {
	case FilterTrainingMaterial:
		return f.TrainingMaterial().QueryContext() + ": "
	case FilterATA:
		return "ATA " + strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(f.Raw), "ATA ")) + ": "
	default:
		if strings.TrimSpace(f.Raw) == "" {
			return ""
		}
		return "ATA " + strings.TrimSpace(f.Raw) + ": "
	}
}

// String returns the raw filter.
func (f ManualFilter) String() string { return f.Raw }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
