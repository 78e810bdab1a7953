package evidence

import (
	"fmt"
	"strings"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

// Cross-check notes attached to each verdict.
const (
	NoteDMCValidated     = "DMC references found and validated"
	NoteStepsVerified    = "Procedure steps verified against manual structure"
	NoteDMCShouldVerify  = "Procedure steps present but DMC reference should be verified"
	NoteMissingProcedure = "Missing mandatory procedure structure"
)

// CrossCheckDiagnosis classifies a diagnosis body by its procedure
// structure. A body with both a DMC reference and numbered steps is
// verified, steps alone need improvement, anything else requires a
// critical correction.
func CrossCheckDiagnosis(body string) domain.CrossCheck {
	cc := domain.CrossCheck{
		HasDMC:            HasDMCReference(body),
		HasProcedureSteps: HasProcedureSteps(body),
		HasSafetyNote:     HasSafetyNote(body),
	}
	switch {
	case cc.HasDMC && cc.HasProcedureSteps:
		cc.Status = domain.CrossCheckVerified
		cc.Notes = []string{NoteDMCValidated, NoteStepsVerified}
	case cc.HasProcedureSteps:
		cc.Status = domain.CrossCheckImprovements
		cc.Notes = []string{NoteDMCShouldVerify}
	default:
		cc.Status = domain.CrossCheckCriticalRequired
		cc.Notes = []string{NoteMissingProcedure}
	}
	return cc
}

// UnmatchedReferences returns the DMCs of body whose nearest document
// identifier is more than maxDistance edits away. With no identifiers every
// DMC is unmatched.
func UnmatchedReferences(body string, identifiers []string, maxDistance int) []string {
	var unmatched []string
	for _, code := range ExtractDMCCodes(body) {
		_, d := NearestReference(code, identifiers)
		if d < 0 || d > maxDistance {
			unmatched = append(unmatched, code)
		}
	}
	return unmatched
}

// ReportHeader renders the "Technical References Used:" block that opens
// the final diagnosis.
func ReportHeader(ataChapter, awdpRef string, req domain.DiagnosisRequest) string {
	amp := ataChapter
	if amp == "" {
		amp = "See referenced DMC codes"
	}
	if awdpRef == "" {
		awdpRef = AWDPNotAvailable
	}

	var b strings.Builder
	b.WriteString("Technical References Used:\n")
	fmt.Fprintf(&b, "AMP: %s\n", amp)
	fmt.Fprintf(&b, "AWDP: %s\n", awdpRef)
	if req.AircraftConfiguration != "" {
		fmt.Fprintf(&b, "Aircraft Config: %s (%s)\n", req.AircraftConfiguration, req.ConfigurationName)
	}
	fmt.Fprintf(&b, "Task Type: %s\n\n", req.Task().Label())
	return b.String()
}

// CrossCheckFooter renders the "Cross-Check Status:" block appended to the
// final diagnosis. Notes are indented, one per line.
func CrossCheckFooter(cc domain.CrossCheck) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\nCross-Check Status: %s\n", cc.Status)
	for i, note := range cc.Notes {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  ")
		b.WriteString(note)
	}
	return b.String()
}

// SupervisorNotes returns the approval text for a final score.
func SupervisorNotes(score, threshold int, task domain.TaskType) string {
	if score >= threshold {
		return fmt.Sprintf("APPROVED - Certainty score %d%% meets safety threshold. "+
			"Task type: %s. All checklist items verified. "+
			"Report approved for maintenance execution.", score, task.Label())
	}
	return fmt.Sprintf("APPROVED WITH EXPERT REQUIRED - Certainty score %d%% below %d%% threshold. "+
		"Task type: %s. Expert consultation mandatory before proceeding.", score, threshold, task.Label())
}
