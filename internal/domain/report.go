package domain

import "strings"

// DefaultSerialNumber is used when a request carries no serial number.
const DefaultSerialNumber = "31486"

// DiagnosisRequest is a maintenance query submitted for diagnosis.
type DiagnosisRequest struct {
	// Query is the maintenance question or symptom description.
	Query string `json:"query" yaml:"query" validate:"required,max=4000"`

	// SerialNumber is the aircraft serial number.
	SerialNumber string `json:"serial_number" yaml:"serial_number" validate:"omitempty,max=32"`

	// ATACode is an ATA chapter or a training material identifier.
	ATACode string `json:"ata_code" yaml:"ata_code" validate:"omitempty,max=32"`

	// TaskType is the raw task type. Unknown values fall back to fault
	// isolation.
	TaskType string `json:"task_type" yaml:"task_type" validate:"omitempty,max=64"`

	// AircraftConfiguration is the configuration code (SN, LN, ENH, PLUS).
	AircraftConfiguration string `json:"aircraft_configuration" yaml:"aircraft_configuration" validate:"omitempty,max=16"`

	// ConfigurationName is the configuration display name.
	ConfigurationName string `json:"configuration_name" yaml:"configuration_name" validate:"omitempty,max=64"`
}

// Normalized returns a copy with defaults applied and whitespace trimmed.
func (r DiagnosisRequest) Normalized() DiagnosisRequest {
	r.Query = strings.TrimSpace(r.Query)
	r.SerialNumber = strings.TrimSpace(r.SerialNumber)
	if r.SerialNumber == "" {
		r.SerialNumber = DefaultSerialNumber
	}
	r.ATACode = strings.TrimSpace(r.ATACode)
	r.TaskType = string(ParseTaskType(strings.TrimSpace(r.TaskType)))
	r.AircraftConfiguration = strings.TrimSpace(r.AircraftConfiguration)
	r.ConfigurationName = strings.TrimSpace(r.ConfigurationName)
	return r
}

// Task returns the parsed task type.
func (r DiagnosisRequest) Task() TaskType { return ParseTaskType(r.TaskType) }

// Filter returns the parsed manual filter.
func (r DiagnosisRequest) Filter() ManualFilter { return ParseManualFilter(r.ATACode) }

// EnhancedQuery decorates the query with task label and configuration,
// e.g. "[Fault Isolation] [LN - Long Nose] HYD 1 PRESS caution".
func (r DiagnosisRequest) EnhancedQuery() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(r.Task().Label())
	b.WriteString("]")
	if r.AircraftConfiguration != "" {
		b.WriteString(" [")
		b.WriteString(r.AircraftConfiguration)
		b.WriteString(" - ")
		b.WriteString(r.ConfigurationName)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(r.Query)
	return b.String()
}

// AffectedPart is a part number found in the diagnosis.
type AffectedPart struct {
	PartNumber  string `json:"part_number"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Action      string `json:"action"`
}

// LikelyCause is a candidate root cause with an estimated probability.
type LikelyCause struct {
	Cause       string `json:"cause"`
	Probability int    `json:"probability"`
	Reasoning   string `json:"reasoning"`
}

// RecommendedTest is one recommended verification step.
type RecommendedTest struct {
	Step           int    `json:"step"`
	Description    string `json:"description"`
	Reference      string `json:"reference"`
	ExpectedResult string `json:"expected_result"`
}

// Extraction holds the structured fields pulled out of a diagnosis.
type Extraction struct {
	AffectedParts    []AffectedPart    `json:"affected_parts"`
	LikelyCauses     []LikelyCause     `json:"likely_causes"`
	RecommendedTests []RecommendedTest `json:"recommended_tests"`
	References       []string          `json:"references"`
}

// Cross-check verdicts.
const (
	CrossCheckVerified         = "VERIFIED - NO CORRECTIONS"
	CrossCheckImprovements     = "VERIFIED WITH IMPROVEMENTS"
	CrossCheckCriticalRequired = "CRITICAL CORRECTION REQUIRED"
)

// CrossCheck is the review stage verdict on a diagnosis body.
type CrossCheck struct {
	// Status is one of the CrossCheck* constants.
	Status string `json:"status"`

	// Notes explain the status.
	Notes []string `json:"notes"`

	// HasDMC reports whether a DMC-style reference was found.
	HasDMC bool `json:"has_dmc"`

	// HasProcedureSteps reports whether numbered steps were found.
	HasProcedureSteps bool `json:"has_procedure_steps"`

	// HasSafetyNote reports whether caution, warning or safety text exists.
	HasSafetyNote bool `json:"has_safety_note"`

	// UnmatchedReferences lists diagnosis DMCs with no close match among
	// the retrieved documents.
	UnmatchedReferences []string `json:"unmatched_references,omitempty"`
}

// DiagnosisReport is the full response for a diagnosis request.
type DiagnosisReport struct {
	RequestID          string            `json:"request_id"`
	Query              string            `json:"query"`
	SerialNumber       string            `json:"serial_number"`
	TaskType           TaskType          `json:"task_type"`
	Diagnosis          string            `json:"diagnosis"`
	ATAChapter         string            `json:"ata_chapter"`
	CertaintyScore     int               `json:"certainty_score"`
	CertaintyStatus    CertaintyStatus   `json:"certainty_status"`
	CertaintyBreakdown ScoreBreakdown    `json:"certainty_breakdown"`
	CapsApplied        []string          `json:"caps_applied"`
	AffectedParts      []AffectedPart    `json:"affected_parts"`
	LikelyCauses       []LikelyCause     `json:"likely_causes"`
	RecommendedTests   []RecommendedTest `json:"recommended_tests"`
	References         []string          `json:"references"`
	CrossCheckStatus   string            `json:"cross_check_status"`
	SupervisorNotes    string            `json:"supervisor_notes"`
	Source             string            `json:"source"`
	ProcessingTimeMs   float64           `json:"processing_time_ms"`
	TokensUsed         int64             `json:"tokens_used"`
}
