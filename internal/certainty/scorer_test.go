package certainty

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

const (
	generatorQuery = "Generator fails to come online"

	generatorDiagnosis = "The LH generator control relay contact is worn because arcing erodes the contact " +
		"surface, so the generator fails to come online. The generator is connected to the main bus " +
		"through the electrical circuit of the GCU. Refer to 39-A-24-31-00-00A and AWDP-24. Torque " +
		"terminals to 12 Nm, confirm 30 psi cooling air, output 28 V, case temperature below 85 C and " +
		"coil resistance 5 ohm."

	generatorDiagnosisNoAWDP = "The LH generator control relay contact is worn because arcing erodes the contact " +
		"surface, so the generator fails to come online. The generator is connected to the main bus " +
		"through the electrical circuit of the GCU. Refer to 39-A-24-31-00-00A. Torque " +
		"terminals to 12 Nm, confirm 30 psi cooling air, output 28 V, case temperature below 85 C and " +
		"coil resistance 5 ohm."
)

// chapterDocs returns n documents from ATA chapter 24, the first high of
// which are highly relevant.
func chapterDocs(n, high int) []domain.RetrievedDocument {
	docs := make([]domain.RetrievedDocument, n)
	for i := range docs {
		sim := 0.5
		if i < high {
			sim = 0.9
		}
		docs[i] = domain.RetrievedDocument{
			DocPath:         fmt.Sprintf("data/DMC-39-A-24-31-%02d-00A-520A-A.xml", i),
			Content:         "Generator control unit description",
			SimilarityScore: sim,
		}
	}
	return docs
}

func TestScore_EmptyInputFloors(t *testing.T) {
	res := Default().Score(Input{Query: "test"})

	assert.Equal(t, domain.MinCertaintyScore, res.Score)
	assert.Equal(t, domain.StatusRequireExpert, res.Status)
	assert.Equal(t, 0, res.Breakdown.Coverage.Score)
	assert.Equal(t, []string{"CRITICAL: No documents found in RAG"}, res.Breakdown.Coverage.Details)
	assert.Equal(t, 0, res.Breakdown.Evidence.Count)
	assert.Equal(t, 0, res.Breakdown.SystemAnalysis.Score)
	assert.Empty(t, res.CapsApplied)
	assert.False(t, res.CanExceed95)
}

func TestScore_FullySupportedDiagnosisIsSafe(t *testing.T) {
	res := Default().Score(Input{
		Documents: chapterDocs(10, 3),
		Diagnosis: generatorDiagnosis,
		Query:     generatorQuery,
		Filter:    domain.ParseManualFilter("ATA 24"),
		TaskType:  domain.TaskFaultIsolation,
		HasAWDP:   true,
	})

	assert.True(t, res.CanExceed95, "gate failures: %v", res.GateFailures)
	assert.Empty(t, res.GateFailures)
	assert.Empty(t, res.CapsApplied)
	assert.GreaterOrEqual(t, res.Score, 95)
	assert.Equal(t, domain.StatusSafeToProceed, res.Status)

	b := res.Breakdown
	assert.Equal(t, 100, b.Coverage.Score)
	assert.Equal(t, 100, b.SystemAnalysis.Score)
	assert.Equal(t, 100, b.Evidence.Score)
	assert.GreaterOrEqual(t, b.Evidence.Count, 10)
	assert.Equal(t, 100, b.QueryAlignment.Score)
	assert.Equal(t, 100, b.DiagramAnalysis.Score)
	assert.Equal(t, []string{"Electrical Power System"}, res.InferredSubsystems)
	assert.Contains(t, res.EvidenceFound, "dmc_code")
	assert.Contains(t, res.EvidenceFound, "awdp_ref")
}

func TestScore_FaultWithoutAWDPCapsAt85(t *testing.T) {
	res := Default().Score(Input{
		Documents: chapterDocs(10, 3),
		Diagnosis: generatorDiagnosisNoAWDP,
		Query:     generatorQuery,
		Filter:    domain.ParseManualFilter("ATA 24"),
		TaskType:  domain.TaskFaultIsolation,
	})

	assert.InDelta(t, 88.0, res.RawScore, 1e-9)
	assert.Equal(t, 85, res.Score)
	assert.Equal(t, []string{"CAP 85%: Fault isolation without AWDP/wiring analysis"}, res.CapsApplied)
	assert.Equal(t, domain.StatusRequireExpert, res.Status)
	assert.Contains(t, res.GateFailures, "NoAWDP")
}

func TestScore_MissingSteeringAnalysis(t *testing.T) {
	res := Default().Score(Input{
		Documents: chapterDocs(10, 3),
		Diagnosis: generatorDiagnosis,
		Query:     "Aircraft does not turn while taxiing",
		Filter:    domain.ParseManualFilter("ATA 24"),
		TaskType:  domain.TaskFaultIsolation,
		HasAWDP:   true,
	})

	assert.LessOrEqual(t, res.Breakdown.QueryAlignment.Score, 25)
	assert.Contains(t, res.MissingSubsystems, "Nose Wheel Steering System")
	assert.LessOrEqual(t, res.Score, 75)
	assert.False(t, res.CanExceed95)

	var capped bool
	for _, c := range res.CapsApplied {
		if strings.HasPrefix(c, "CAP 75%") && strings.Contains(c, "Steering") {
			capped = true
		}
	}
	assert.True(t, capped, "caps applied: %v", res.CapsApplied)
}

func TestScore_GateBlocksAt94(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate.MinEvidenceCount = 50
	s, err := NewScorer(cfg)
	require.NoError(t, err)

	res := s.Score(Input{
		Documents: chapterDocs(10, 3),
		Diagnosis: generatorDiagnosis,
		Query:     generatorQuery,
		Filter:    domain.ParseManualFilter("ATA 24"),
		TaskType:  domain.TaskFaultIsolation,
		HasAWDP:   true,
	})

	assert.Equal(t, 94, res.Score)
	assert.False(t, res.CanExceed95)
	require.Len(t, res.GateFailures, 1)
	assert.True(t, strings.HasPrefix(res.GateFailures[0], "Evidence "), res.GateFailures[0])
	assert.Equal(t, []string{"CAP 94%: Does not meet ALL strict criteria for SAFE_TO_PROCEED"}, res.CapsApplied)
	assert.Equal(t, domain.StatusRequireExpert, res.Status)
}

func TestScore_UnknownTaskTypeIsFaultIsolation(t *testing.T) {
	in := Input{
		Documents: chapterDocs(10, 3),
		Diagnosis: generatorDiagnosisNoAWDP,
		Query:     generatorQuery,
		Filter:    domain.ParseManualFilter("ATA 24"),
		TaskType:  "not_a_task",
	}
	s := Default()
	unknown := s.Score(in)

	in.TaskType = domain.TaskFaultIsolation
	fault := s.Score(in)

	assert.Empty(t, cmp.Diff(fault, unknown))
}

func TestScore_Idempotent(t *testing.T) {
	s := Default()
	in := Input{
		Documents: chapterDocs(6, 2),
		Diagnosis: generatorDiagnosis,
		Query:     generatorQuery,
		Filter:    domain.ParseManualFilter("PT6C_67CD"),
		TaskType:  domain.TaskRemoveProcedure,
	}
	first := s.Score(in)
	second := s.Score(in)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestScore_ConcurrentUse(t *testing.T) {
	s := Default()
	in := Input{
		Documents: chapterDocs(10, 3),
		Diagnosis: generatorDiagnosis,
		Query:     generatorQuery,
		Filter:    domain.ParseManualFilter("ATA 24"),
		HasAWDP:   true,
	}
	want := s.Score(in)

	var wg sync.WaitGroup
	results := make([]domain.CertaintyResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Score(in)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Empty(t, cmp.Diff(want, got))
	}
}

func TestCoverage(t *testing.T) {
	s := Default()
	ata24 := domain.ParseManualFilter("ATA 24")

	mixed := func(match, total int) []domain.RetrievedDocument {
		docs := make([]domain.RetrievedDocument, total)
		for i := range docs {
			path := "DMC-39-A-32-11-00-00A.xml"
			if i < match {
				path = "DMC-39-A-24-31-00-00A.xml"
			}
			docs[i] = domain.RetrievedDocument{DocPath: path, SimilarityScore: 0.9}
		}
		return docs
	}

	tests := []struct {
		name   string
		docs   []domain.RetrievedDocument
		filter domain.ManualFilter
		score  int
		detail string
	}{
		{"excellent", chapterDocs(5, 3), ata24, 100, "Excellent: 5/5 docs, 3 high-relevance"},
		{"few high relevance", chapterDocs(5, 2), ata24, 85, "Good match ratio but few high-relevance: 5/5"},
		{"moderate", mixed(2, 4), ata24, 65, "Moderate: 2/4 docs from selected manual"},
		{"weak", mixed(1, 5), ata24, 40, "Weak: 1/5 docs from selected manual"},
		{"poor", mixed(0, 5), ata24, 15, "Poor: Only 0/5 docs from selected manual"},
		{"no filter matches everything", mixed(0, 3), domain.ManualFilter{}, 100, "Excellent: 3/3 docs, 3 high-relevance"},
		{
			"unknown filter applies no narrowing",
			mixed(0, 3),
			domain.ParseManualFilter("HYDRAULICS"),
			100,
			"Excellent: 3/3 docs, 3 high-relevance",
		},
		{
			"training material keywords",
			[]domain.RetrievedDocument{
				{DocPath: "a.pdf", Content: "Primus Epic MFD layout", SimilarityScore: 0.9},
				{DocPath: "b.pdf", Content: "Tail rotor gearbox", SimilarityScore: 0.9},
			},
			domain.ParseManualFilter("PRIMUS_EPIC"),
			65,
			"Moderate: 1/2 docs from selected manual",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := s.coverage(tt.docs, tt.filter)
			assert.Equal(t, tt.score, c.Score)
			assert.Equal(t, []string{tt.detail}, c.Details)
			assert.Equal(t, 0.25, c.Weight)
		})
	}
}

func TestCoverage_InvalidSimilarityIsNotHighRelevance(t *testing.T) {
	docs := chapterDocs(3, 3)
	docs[0].SimilarityScore = -1
	c := Default().coverage(docs, domain.ManualFilter{})
	assert.Equal(t, 85, c.Score)
}
