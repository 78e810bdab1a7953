package evidence

// Flags is the full set of signals extracted from one diagnosis and query.
type Flags struct {
	SpecificComponent  bool
	CausalReasoning    bool
	Mechanism          bool
	Location           bool
	FailureMode        bool
	RealDMC            bool
	AMPReference       bool
	AWDPReference      bool
	RealPartNumber     bool
	ConnectorPin       bool
	Generic            bool
	ElectricalMismatch bool

	EvidenceCount int
	EvidenceFound []string

	InferredSubsystems []string
	MissingSubsystems  []string

	KeywordsMatched int
	KeywordsTotal   int
}

// HasManualReference reports whether a DMC, AMP or AWDP reference exists.
func (f Flags) HasManualReference() bool {
	return f.RealDMC || f.AMPReference || f.AWDPReference
}

// Extractor computes Flags using a subsystem rule table.
type Extractor struct {
	rules []SubsystemRule
}

// NewExtractor returns an Extractor over a private copy of rules. A nil
// table selects DefaultSubsystemRules.
func NewExtractor(rules []SubsystemRule) *Extractor {
	if rules == nil {
		rules = DefaultSubsystemRules()
	} else {
		rules = CloneRules(rules)
	}
	return &Extractor{rules: rules}
}

// Rules returns a copy of the extractor's subsystem table.
func (e *Extractor) Rules() []SubsystemRule { return CloneRules(e.rules) }

// Extract evaluates every signal for the given diagnosis and query.
func (e *Extractor) Extract(diagnosis, query string) Flags {
	count, found := CountEvidence(diagnosis)
	inf := InferSubsystems(e.rules, query, diagnosis)
	matched, total := KeywordOverlap(query, diagnosis)

	return Flags{
		SpecificComponent:  HasSpecificComponent(diagnosis),
		CausalReasoning:    HasCausalReasoning(diagnosis),
		Mechanism:          HasMechanism(diagnosis),
		Location:           HasLocation(diagnosis),
		FailureMode:        HasFailureMode(diagnosis),
		RealDMC:            HasRealDMC(diagnosis),
		AMPReference:       HasAMPReference(diagnosis),
		AWDPReference:      HasAWDPReference(diagnosis),
		RealPartNumber:     HasRealPartNumber(diagnosis),
		ConnectorPin:       HasConnectorPin(diagnosis),
		Generic:            IsGenericTroubleshooting(diagnosis),
		ElectricalMismatch: IsElectricalMismatch(diagnosis, query),
		EvidenceCount:      count,
		EvidenceFound:      found,
		InferredSubsystems: inf.Inferred,
		MissingSubsystems:  inf.Missing,
		KeywordsMatched:    matched,
		KeywordsTotal:      total,
	}
}
