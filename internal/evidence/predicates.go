package evidence

// HasSpecificComponent reports whether the diagnosis names a mechanical or
// electrical part class such as a valve, actuator or connector.
func HasSpecificComponent(diagnosis string) bool {
	return componentPattern.MatchString(normalize(diagnosis))
}

// HasCausalReasoning reports whether the diagnosis explains why the fault
// occurs ("because", "due to", "if ... then ...").
func HasCausalReasoning(diagnosis string) bool {
	return causalPattern.MatchString(normalize(diagnosis))
}

// HasMechanism reports whether the diagnosis explains how the system works.
func HasMechanism(diagnosis string) bool {
	return mechanismPattern.MatchString(normalize(diagnosis))
}

// HasLocation reports whether the diagnosis carries spatial qualifiers
// such as LH/RH, station numbers or panel identifiers.
func HasLocation(diagnosis string) bool {
	return locationPattern.MatchString(diagnosis)
}

// HasFailureMode reports whether the diagnosis names a failure state.
func HasFailureMode(diagnosis string) bool {
	return failureModePattern.MatchString(normalize(diagnosis))
}

// HasRealDMC reports whether the diagnosis contains a data module code
// such as 39-A-32-51-00-00A.
func HasRealDMC(diagnosis string) bool {
	return dmcPattern.MatchString(diagnosis)
}

// HasAMPReference reports whether the diagnosis contains an AMP or AMM
// section reference such as AMP 32-51-00.
func HasAMPReference(diagnosis string) bool {
	return ampPattern.MatchString(diagnosis)
}

// HasAWDPReference reports whether the diagnosis contains a wiring diagram
// reference such as AWDP-24.
func HasAWDPReference(diagnosis string) bool {
	return awdpRefPattern.MatchString(diagnosis)
}

// HasRealPartNumber reports whether the diagnosis contains a structured
// part number.
func HasRealPartNumber(diagnosis string) bool {
	return partNumberPattern.MatchString(diagnosis)
}

// HasConnectorPin reports whether the diagnosis references a connector,
// plug or pin by number.
func HasConnectorPin(diagnosis string) bool {
	return connectorPattern.MatchString(diagnosis)
}

// HasManualReference reports whether any structured manual reference
// (DMC, AMP/AMM or AWDP) exists in the diagnosis.
func HasManualReference(diagnosis string) bool {
	return HasRealDMC(diagnosis) || HasAMPReference(diagnosis) || HasAWDPReference(diagnosis)
}

// IsGenericTroubleshooting reports whether the diagnosis only offers
// boilerplate checks without naming a component or mechanism.
func IsGenericTroubleshooting(diagnosis string) bool {
	lower := normalize(diagnosis)
	return genericPattern.MatchString(lower) &&
		!componentPattern.MatchString(lower) &&
		!mechanismPattern.MatchString(lower)
}

// SuggestsElectricalChecks reports whether the diagnosis proposes
// electrical checks.
func SuggestsElectricalChecks(diagnosis string) bool {
	return containsAny(normalize(diagnosis), electricalCheckTerms)
}

// ImpliesMechanicalProblem reports whether the query describes a symptom
// that is most likely mechanical.
func ImpliesMechanicalProblem(query string) bool {
	return containsAny(normalize(query), mechanicalSymptomTerms)
}

// IsElectricalMismatch reports whether the diagnosis proposes electrical
// checks for a likely mechanical symptom without analyzing the mechanism.
func IsElectricalMismatch(diagnosis, query string) bool {
	return SuggestsElectricalChecks(diagnosis) &&
		ImpliesMechanicalProblem(query) &&
		!HasMechanism(diagnosis)
}

// CountEvidence returns the weighted evidence counter of the diagnosis and
// the evidence kinds that contributed to it, in reporting order. Each
// quantity match adds one; structured references add their weight once.
func CountEvidence(diagnosis string) (int, []string) {
	count := 0
	found := make([]string, 0, len(quantities)+5)

	for _, q := range quantities {
		if n := len(q.pattern.FindAllStringIndex(diagnosis, -1)); n > 0 {
			count += n
			found = append(found, q.kind)
		}
	}

	structured := []struct {
		kind   string
		weight int
		hit    bool
	}{
		{"dmc_code", WeightDMC, HasRealDMC(diagnosis)},
		{"amp_ref", WeightAMPReference, HasAMPReference(diagnosis)},
		{"awdp_ref", WeightAWDPReference, HasAWDPReference(diagnosis)},
		{"real_part_number", WeightPartNumber, HasRealPartNumber(diagnosis)},
		{"connector_pin", WeightConnectorPin, HasConnectorPin(diagnosis)},
	}
	for _, s := range structured {
		if s.hit {
			count += s.weight
			found = append(found, s.kind)
		}
	}

	return count, found
}
