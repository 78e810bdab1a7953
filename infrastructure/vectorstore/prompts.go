package vectorstore

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"

	"github.com/hangarlabs/aw139-certainty/internal/evidence"
)

// QueryKind selects the answer prompt.
type QueryKind int

const (
	QueryGeneral QueryKind = iota
	QueryFault
	QueryCalibration
	QueryProcedure
	QueryElectrical
)

func (k QueryKind) String() string {
	switch k {
	case QueryFault:
		return "fault"
	case QueryCalibration:
		return "calibration"
	case QueryProcedure:
		return "procedure"
	case QueryElectrical:
		return "electrical"
	default:
		return "general"
	}
}

var (
	faultTerms       = []string{"fail", "failure", "fault", "error", "malfunction", "inoperative", "not working", "caution", "warning", "advisory"}
	calibrationTerms = []string{"calibration", "calibrate", "adjust", "adjustment", "zero", "incorrect reading", "wrong reading", "on ground", "on the ground", "feet with", "feet on"}
	readingVerbs     = []string{"showing", "reading", "displays"}
	readingUnits     = []string{"feet", "ft", "knots", "kt", "psi", "degrees"}
	procedureTerms   = []string{"how to", "como", "step by step", "passo a passo", "procedure", "procedimento", "download", "uploading", "data downloading", "installation", "removal", "replace", "install", "remove", "configure", "configuration", "setup", "setting"}
	electricalTerms  = []string{"electrical", "voltage", "power", "generator", "sensor", "electronic", "troubleshoot", "luz", "light", "ldg", "sistema", "continuity", "pin", "connector", "wiring", "fuel", "low"}
)

// ClassifyQuery decides which answer prompt fits query. Fault reports win
// over calibration symptoms, which win over procedures.
func ClassifyQuery(query string) QueryKind {
	q := strings.ToLower(query)
	fault := containsAny(q, faultTerms)
	calibration := !fault && (containsAny(q, calibrationTerms) ||
		(containsAny(q, readingVerbs) && containsAny(q, readingUnits)))

	switch {
	case fault:
		return QueryFault
	case calibration:
		return QueryCalibration
	case containsAny(q, procedureTerms):
		return QueryProcedure
	case containsAny(q, electricalTerms):
		return QueryElectrical
	default:
		return QueryGeneral
	}
}

const promptFooter = `
Leave out technician log templates, blank parts replaced sections and
signature or date fields. The application adds those itself.`

var systemPrompts = map[QueryKind]*template.Template{
	QueryFault: template.Must(template.New("fault").Parse(`You are a senior AW139 troubleshooting specialist with more than 25 years on type.
The mechanic reports a fault code, CAS message or system failure. Answer with a
fault isolation procedure, not a calibration.

Work through it in this order:
1. Explain what the message means and which system raises it.
2. Find the "Fault isolation procedure" or fault code section in the documentation.
3. List the root causes that trigger the message.
4. Give the exact troubleshooting steps from the manual.

AVAILABLE DMC REFERENCES: {{.DMCList}}

Structure the answer as:

FAULT ISOLATION PROCEDURE
DMC Reference: [exact DMC of the fault isolation procedure]

FAULT MESSAGE ANALYSIS:
- Fault message, system affected, trigger conditions, possible root causes

TROUBLESHOOTING PROCEDURE (EXACT STEPS FROM MANUAL):
1. [verification step]
   1.1. [component to check]
   1.2. [expected result or go/no-go decision]

COMPONENT TESTS:
- Test [component]: [expected result]

IF FAULT PERSISTS:
- Replace [component] per [DMC reference]

SENIOR TECHNICIAN NOTE:
[most common causes of this fault]
{{.Footer}}`)),

	QueryCalibration: template.Must(template.New("calibration").Parse(`You are a senior AW139 avionics specialist with more than 25 years on type.
The mechanic describes an instrument showing an incorrect value. Treat it as a
calibration or adjustment problem unless the documentation says otherwise.

Work through it in this order:
1. Look for "Operation test" or "Functional test" procedures first.
2. Find the adjustment or calibration steps.
3. Give the exact adjustment procedure from the manual.
4. Suggest replacement only if adjustment does not resolve the issue.

AVAILABLE DMC REFERENCES: {{.DMCList}}

Structure the answer as:

CALIBRATION/ADJUSTMENT PROCEDURE
DMC Reference: [exact DMC]

SYMPTOM ANALYSIS:
- Observed reading, expected reading, root cause

ADJUSTMENT PROCEDURE (EXACT STEPS FROM MANUAL):
1. [access step]
   1.1. [locate the adjustment]
   1.2. [adjust]

SUPPORT EQUIPMENT:
- Tool name, Identification No., Quantity

IF ADJUSTMENT DOES NOT RESOLVE:
[component troubleshooting]

SENIOR TECHNICIAN NOTE:
[common causes of this drift]
{{.Footer}}`)),

	QueryProcedure: template.Must(template.New("procedure").Parse(`You are a senior AW139 maintenance technician with more than 25 years on type.
Be precise and cite exact manual references.

Requirements:
1. Cite the exact DMC code from the documentation, e.g. 39-A-24-32-00-00A-320A-A.
2. Quote the numbered steps exactly. Do not paraphrase.
3. Include every sub-step (1.1, 1.2 and so on) as written.
4. Reference figure and table numbers.

AVAILABLE DMC REFERENCES: {{.DMCList}}

Structure the answer as:

=== PROCEDURE: [title from manual] ===
DMC Reference: [exact DMC]

PREREQUISITES:
- Required conditions and access panels

SUPPORT EQUIPMENT (Table 3):
- Tool name, Identification No., Quantity

PROCEDURE (EXACT STEPS FROM MANUAL):
1. [step]
   1.1. [sub-step]

REQUIREMENTS AFTER JOB COMPLETION:
[close-up steps]

FIGURE REFERENCES:
- Figure 1: [title] (Sheet X of Y)

SENIOR TECHNICIAN NOTE:
[common pitfalls]
{{.Footer}}`)),

	QueryElectrical: template.Must(template.New("electrical").Parse(`You are a senior AW139 electrical specialist with more than 25 years on type.
Be precise and cite exact manual references.

Requirements:
1. Cite the exact DMC code from the documentation.
2. Quote the exact test procedures.
3. Name components (A76, T1, CB numbers) and panel locations.

AVAILABLE DMC REFERENCES: {{.DMCList}}

Structure the answer as:

=== ELECTRICAL DIAGNOSTIC: [system] ===
DMC Reference: [exact DMC]

1. SYSTEM LOGIC & CONDITION ANALYSIS
2. TROUBLESHOOTING PROCEDURE (EXACT STEPS)
3. AWP REFERENCE & CONTINUITY TEST
   - AWP Reference: [exact AWP DMC]
   - Test: Pin [X] to Pin [Y], expected [value]
4. PARTS & SPECIFICATIONS
5. SENIOR TECHNICIAN INSIGHT
{{.Footer}}`)),

	QueryGeneral: template.Must(template.New("general").Parse(`You are a senior AW139 maintenance technician with more than 25 years on type.
Be precise and cite exact manual references.

Requirements:
1. Cite the exact DMC code from the documentation.
2. Include part numbers from the IPD.
3. Reference figure and table numbers.

AVAILABLE DMC REFERENCES: {{.DMCList}}

Structure the answer as:

=== [topic] ===
DMC Reference: [exact DMC]

1. PROCEDURE/INSPECTION STEPS
2. REQUIRED TOOLS & EQUIPMENT (from Table 3)
3. APPLICABLE PART NUMBERS (from IPD)
4. TECHNICAL SPECIFICATIONS

SENIOR TECHNICIAN INSIGHT:
[tips for this task]
{{.Footer}}`)),
}

var userPrompt = template.Must(template.New("user").Parse(`Technical Documentation Context (with DMC codes):
{{range $i, $d := .Documents}}{{if $i}}

{{end}}=== DOCUMENT{{if $d.DMC}}: {{$d.DMC}}{{end}} ===
{{$d.Text}}{{end}}

AVAILABLE DMC REFERENCES FOR THIS QUERY: {{.DMCList}}

Maintenance Query: {{.Query}}

Cite at least one of the DMC codes above and quote the procedure steps exactly.`))

type promptDocument struct {
	DMC  string
	Text string
}

type promptData struct {
	Query     string
	DMCList   string
	Footer    string
	Documents []promptDocument
}

// BuildAnswerPrompt renders the system and user prompts for query over
// docs. At most contextDocs documents are used, each truncated to
// contextChars characters.
func BuildAnswerPrompt(query string, docs []Document, contextDocs, contextChars int) (system, user string, err error) {
	data := promptData{Query: query, Footer: promptFooter}
	var codes []string
	for _, d := range docs[:min(len(docs), contextDocs)] {
		code := dmcFromPath(d.DocPath)
		if code != "" {
			codes = append(codes, code)
		}
		data.Documents = append(data.Documents, promptDocument{DMC: code, Text: truncateRunes(d.Text, contextChars)})
	}
	data.DMCList = "No specific DMC identified"
	if len(codes) > 0 {
		data.DMCList = strings.Join(codes, ", ")
	}

	var sys, usr bytes.Buffer
	if err := systemPrompts[ClassifyQuery(query)].Execute(&sys, data); err != nil {
		return "", "", err
	}
	if err := userPrompt.Execute(&usr, data); err != nil {
		return "", "", err
	}
	return sys.String(), usr.String(), nil
}

// truncateRunes cuts s to at most n runes without splitting a multi-byte
// sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

var fullDMCPattern = regexp.MustCompile(`(?i)\d{2}-[A-Z]-\d{2}-\d{2}-\d{2}-\d{2}[A-Z]-\d{3}[A-Z]?-[A-Z]`)

// dmcFromPath returns the data module code in a document path, or the
// cleaned file name when it looks like one.
func dmcFromPath(docPath string) string {
	id := strings.TrimSuffix(evidence.DocumentIdentifier(docPath), ".txt")
	if m := fullDMCPattern.FindString(id); m != "" {
		return strings.ToUpper(m)
	}
	if len(id) > 10 && strings.Contains(id, "-") {
		return id
	}
	return ""
}
