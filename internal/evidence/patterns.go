// Package evidence turns free-text maintenance diagnoses and queries into
// named signals. Every signal is an independent predicate backed by its own
// compiled pattern table so it can be tested in isolation. The package also
// carries the text utilities used to assemble and mine diagnosis reports.
//
// All functions are pure and safe for concurrent use.
package evidence

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalize lowercases text for keyword matching.
// A Caser is not safe for concurrent use, so one is built per call.
func normalize(s string) string {
	return cases.Lower(language.Und).String(s)
}

// containsAny reports whether s contains any of the terms as a substring.
func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// System analysis vocabulary. These run against normalized text.
var (
	componentPattern = regexp.MustCompile(`\b(?:actuator|valve|pump|generator|starter|relay|contactor|` +
		`solenoid|bearing|seal|bushing|link|rod|arm|gear|shaft|` +
		`damper|accumulator|filter|regulator|transducer|` +
		`steering|shimmy|oleo|strut|torque\s*link|scissor|` +
		`swashplate|servo|pitch\s*link|collective|pedal|` +
		`connector|harness|bus|breaker|ground\s*point)\b`)

	causalPattern = regexp.MustCompile(`\b(?:because|due to|caused by|resulting from|leads to|` +
		`prevents|restricts|blocks|fails to|unable to|` +
		`when .{5,40} the .{5,30} (?:cannot|does not|fails|stops)|` +
		`if .{5,30} then .{5,30}|` +
		`this (?:causes|results|prevents|restricts))\b`)

	mechanismPattern = regexp.MustCompile(`\b(?:mechanism|assembly|linkage|hydraulic\s*(?:line|circuit|system)|` +
		`electrical\s*(?:circuit|path|bus)|control\s*(?:chain|path|loop)|` +
		`mechanical\s*(?:connection|linkage|system)|` +
		`steering\s*(?:mechanism|system|assembly)|` +
		`how (?:the|this) .{5,40} works|` +
		`the .{5,30} is (?:connected|linked|driven|controlled) by)\b`)

	failureModePattern = regexp.MustCompile(`\b(?:worn|corroded|seized|cracked|broken|leaking|loose|` +
		`intermittent|open\s*circuit|short\s*circuit|grounded|` +
		`binding|sticking|jamm(?:ed|ing)|frozen|stripped|` +
		`fatigued|deformed|contaminated|degraded|misaligned)\b`)

	genericPattern = regexp.MustCompile(`(?:check continuity|verify wiring|inspect connector|check hydraulic)`)
)

// Case-insensitive patterns that run against the original text.
var (
	locationPattern = regexp.MustCompile(`(?i)\b(?:LH|RH|left|right|forward|aft|upper|lower|inboard|outboard|` +
		`station\s*\d|frame\s*\d|bay\s*\d|zone\s*\d|` +
		`panel\s*[A-Z0-9]|rack\s*\d|shelf\s*\d)\b`)

	dmcPattern        = regexp.MustCompile(`(?i)\b\d{2}-[A-Z]-\d{2}-\d{2}-\d{2}-\d{2}[A-Z]?`)
	ampPattern        = regexp.MustCompile(`(?i)\b(?:AMP|AMM)\s*[-:]?\s*\d{2}[-]\d{2}[-]\d{2}`)
	awdpRefPattern    = regexp.MustCompile(`(?i)\b(?:AWD|AWDP)\s*[-:]?\s*\d{2}`)
	partNumberPattern = regexp.MustCompile(`(?i)\b(?:3G\d{4}[A-Z0-9-]+|\d{3}-\d{4}-\d{2}|P/N\s*[A-Z0-9-]{6,})\b`)
	connectorPattern  = regexp.MustCompile(`(?i)\b(?:pin\s*\d+|connector\s*[A-Z]?\d|plug\s*[A-Z]?\d)\b`)
)

// quantity is a physical measurement kind counted as evidence.
type quantity struct {
	kind    string
	pattern *regexp.Regexp
}

// quantities lists measurement kinds in reporting order. The resistance
// pattern only applies a word boundary after alphabetic units because Ω is
// not a word character for RE2.
var quantities = []quantity{
	{"torque", regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(?:N\s*m|Nm|lbf?\s*in|lb-in|ft-lb|lb-ft)\b`)},
	{"pressure", regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(?:psi|bar|kPa|MPa)\b`)},
	{"voltage", regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(?:V|mV|kV)\b`)},
	{"current", regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(?:A|mA)\b`)},
	{"temperature", regexp.MustCompile(`(?i)\b-?\d+\.?\d*\s*°?(?:C|F)\b`)},
	{"dimension", regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(?:mm|cm|m|in|ft)\b`)},
	{"resistance", regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(?:(?:ohm|kohm)\b|MΩ|Ω)`)},
}

// Evidence weights added to the evidence counter per structured match.
const (
	WeightDMC           = 3
	WeightAMPReference  = 2
	WeightAWDPReference = 2
	WeightPartNumber    = 2
	WeightConnectorPin  = 1
)

// Vocabulary for the electrical-for-mechanical mismatch rule.
var (
	electricalCheckTerms = []string{"continuity", "wiring", "circuit", "resistance", "voltage"}

	mechanicalSymptomTerms = []string{
		"turn", "steering", "gear", "stuck", "binding", "seized", "jam", "stiff",
		"vibration", "noise", "grind", "click", "play", "loose", "worn",
	}
)
