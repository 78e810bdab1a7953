package testutils

import (
	"fmt"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

// GeneratorQuery is a fault report on the electrical power system.
const GeneratorQuery = "Generator fails to come online"

// SampleDiagnosis is a structured fault isolation answer with DMC and
// wiring references, numbered steps, a part number and weighted causes.
const SampleDiagnosis = `FAULT ISOLATION PROCEDURE
DMC Reference: 39-A-24-31-00-00A-520A-A

FAULT MESSAGE ANALYSIS:
The LH generator control relay contact is worn because arcing erodes the contact surface,
so the generator fails to come online. The generator is connected to the main bus through
the electrical circuit of the GCU. See wiring diagram AWDP-24 for connector J1 pin 5.

TROUBLESHOOTING PROCEDURE:
1. Open circuit breaker panel and check relay K12 P/N 3G2430V00131
2. Measure coil resistance 5 ohm at connector J1 pin 5
3. Torque terminals to 12 Nm and confirm output 28 V

LIKELY CAUSES:
- Generator control relay contact wear (60%)
- GCU internal fault (25%)

CAUTION: Disconnect external power before opening the panel.`

// SampleAnswer is a retrieval answer in the shape the generator returns.
const SampleAnswer = "The generator control relay connects the LH generator to the main bus. " +
	"Check the relay contacts. Refer to 39-A-24-31-00-00A for the fault isolation procedure."

// SampleDocuments returns n ATA 24 documents, the first of which is a
// wiring diagram when wiring is true.
func SampleDocuments(n int, wiring bool) []domain.RetrievedDocument {
	docs := make([]domain.RetrievedDocument, n)
	for i := range docs {
		path := fmt.Sprintf("data/DMC-39-A-24-31-%02d-00A-520A-A.xml", i)
		docs[i] = domain.RetrievedDocument{
			DocPath:         path,
			Content:         "Generator control unit description. The GCU closes the line contactor.",
			SimilarityScore: 0.9 - float64(i)*0.05,
			ATAIdentifier:   fmt.Sprintf("39-A-24-31-%02d-00A-520A-A", i),
		}
	}
	if wiring && n > 0 {
		docs[0].Content = "AWDP wiring diagram for the generator control relay K12, connector J1."
	}
	return docs
}

// SampleRetrieval returns a retrieval result over SampleDocuments.
func SampleRetrieval(query string, n int, wiring bool) domain.RetrievalResult {
	docs := SampleDocuments(n, wiring)
	res := domain.RetrievalResult{
		Query:     query,
		Answer:    SampleAnswer,
		Documents: docs,
	}
	for _, d := range docs {
		res.References = append(res.References, "ATA "+d.ATAIdentifier+": "+d.DocPath)
	}
	if len(docs) > 0 {
		res.ATA = docs[0].ATAIdentifier
	}
	return res
}

// SampleRequest returns a normalized fault isolation request on ATA 24.
func SampleRequest() domain.DiagnosisRequest {
	return domain.DiagnosisRequest{
		Query:                 GeneratorQuery,
		ATACode:               "24",
		TaskType:              string(domain.TaskFaultIsolation),
		AircraftConfiguration: "LN",
		ConfigurationName:     "Long Nose",
	}.Normalized()
}
