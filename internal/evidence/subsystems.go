package evidence

import "slices"

// SubsystemRule maps query trigger keywords to the vocabulary a diagnosis
// must contain to count as covering that subsystem.
type SubsystemRule struct {
	// Name is the stable identifier of the subsystem.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Triggers are substrings of the lowercased query that imply the subsystem.
	Triggers []string `yaml:"triggers" json:"triggers" validate:"required,min=1,dive,required"`

	// Required are substrings of the lowercased diagnosis, at least one of
	// which must be present.
	Required []string `yaml:"required" json:"required" validate:"required,min=1,dive,required"`

	// Label is the display name used in details and caps.
	Label string `yaml:"label" json:"label" validate:"required"`
}

// DefaultSubsystemRules returns a fresh copy of the built-in table.
// Rules are evaluated in this order.
func DefaultSubsystemRules() []SubsystemRule {
	rules := []SubsystemRule{
		{
			Name:     "steering",
			Triggers: []string{"turn", "turning", "steer", "steering", "taxi", "taxing", "taxiing", "ground maneuver"},
			Required: []string{
				"steering", "nose wheel", "nosewheel", "nose gear", "nose landing gear",
				"shimmy damper", "torque link", "steering actuator", "steering valve",
				"steering cylinder", "castering", "tiller",
			},
			Label: "Nose Wheel Steering System",
		},
		{
			Name: "landing_gear",
			Triggers: []string{
				"landing gear", "gear", "retract", "extend", "gear up", "gear down",
				"squat switch", "weight on wheels", "wow",
			},
			Required: []string{
				"landing gear", "actuator", "uplock", "downlock", "squat switch",
				"gear door", "oleo", "strut", "retract", "extend", "selector valve",
			},
			Label: "Landing Gear System",
		},
		{
			Name:     "hydraulic",
			Triggers: []string{"hydraulic", "pressure", "pump", "fluid", "leak"},
			Required: []string{
				"hydraulic pump", "reservoir", "accumulator", "pressure switch",
				"relief valve", "hydraulic module", "servo", "actuator", "manifold",
				"filter", "hydraulic system",
			},
			Label: "Hydraulic System",
		},
		{
			Name: "engine",
			Triggers: []string{
				"engine", "turbine", "power", "torque", "ng", "np", "itt", "start",
				"hot start", "hung start", "flameout", "ecu", "fadec",
			},
			Required: []string{
				"engine", "turbine", "compressor", "combustion", "fuel control",
				"fuel nozzle", "igniter", "gearbox", "oil", "bearing", "fadec", "ecu",
			},
			Label: "Engine/Powerplant System",
		},
		{
			Name: "electrical",
			Triggers: []string{
				"generator", "battery", "bus", "power loss", "electrical", "voltage",
				"breaker", "tripped", "no power",
			},
			Required: []string{
				"generator", "battery", "bus", "contactor", "breaker", "relay",
				"transformer", "rectifier", "inverter", "gcr", "gcb", "btb",
			},
			Label: "Electrical Power System",
		},
		{
			Name: "flight_controls",
			Triggers: []string{
				"cyclic", "collective", "pedal", "yaw", "pitch", "roll",
				"autopilot", "trim", "stick", "vibration",
			},
			Required: []string{
				"servo", "actuator", "swashplate", "pitch link", "mixing unit",
				"trim", "boost", "feel spring", "gradient unit", "autopilot",
			},
			Label: "Flight Control System",
		},
		{
			Name: "rotor",
			Triggers: []string{
				"rotor", "blade", "hub", "mast", "tail rotor", "main rotor",
				"track", "balance", "vibration", "lead-lag",
			},
			Required: []string{
				"rotor", "blade", "hub", "damper", "bearing", "pitch horn",
				"lead-lag", "drag brace", "elastomeric", "spindle",
			},
			Label: "Rotor System",
		},
		{
			Name: "avionics",
			Triggers: []string{
				"display", "screen", "cas", "warning", "caution", "advisory",
				"radio", "nav", "gps", "transponder", "ahrs", "adc",
			},
			Required: []string{
				"display", "processor", "symbol generator", "dmu", "dcu",
				"sensor", "computer", "bus", "arinc", "can bus",
			},
			Label: "Avionics System",
		},
		{
			Name:     "fuel",
			Triggers: []string{"fuel", "tank", "boost pump", "transfer", "crossfeed", "quantity"},
			Required: []string{
				"fuel pump", "fuel tank", "fuel valve", "boost pump", "transfer pump",
				"crossfeed", "fuel quantity", "fuel filter", "fuel line",
			},
			Label: "Fuel System",
		},
	}
	return rules
}

// CloneRules returns a deep copy of rules.
func CloneRules(rules []SubsystemRule) []SubsystemRule {
	out := make([]SubsystemRule, len(rules))
	for i, r := range rules {
		out[i] = SubsystemRule{
			Name:     r.Name,
			Triggers: slices.Clone(r.Triggers),
			Required: slices.Clone(r.Required),
			Label:    r.Label,
		}
	}
	return out
}

// SubsystemInference is the outcome of matching a query against the
// subsystem table.
type SubsystemInference struct {
	// Inferred lists labels of subsystems the query implies.
	Inferred []string

	// Missing lists labels of implied subsystems the diagnosis ignores.
	Missing []string
}

// InferSubsystems checks, for every rule whose trigger occurs in the query,
// that the diagnosis mentions at least one required term. Matching is by
// substring on normalized text.
func InferSubsystems(rules []SubsystemRule, query, diagnosis string) SubsystemInference {
	q := normalize(query)
	d := normalize(diagnosis)

	var out SubsystemInference
	for _, r := range rules {
		if !containsAny(q, r.Triggers) {
			continue
		}
		out.Inferred = append(out.Inferred, r.Label)
		if !containsAny(d, r.Required) {
			out.Missing = append(out.Missing, r.Label)
		}
	}
	return out
}
