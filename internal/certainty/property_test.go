package certainty

import (
	"math"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

var diagnosisFragments = []string{
	"The LH generator relay is worn",
	"because the contact surface erodes",
	"check continuity of the harness",
	"refer to 39-A-24-31-00-00A",
	"see AWDP-24 sheet 3",
	"AMP-32-00 applies",
	"torque to 12 Nm",
	"pressure reads 3000 psi",
	"voltage is 28 V",
	"pin 4 of connector J2",
	"P/N 3G2450V00131",
	"the actuator linkage is seized",
	"steering angle sensor failed",
	"hydraulic pump output is low",
	"",
}

var queryFragments = []string{
	"Generator fails to come online",
	"Aircraft does not turn while taxiing",
	"Landing gear will not retract",
	"Engine oil pressure fluctuates",
	"Display goes blank",
	"test",
	"",
}

var docPaths = []string{
	"DMC-39-A-24-31-00-00A-520A-A.xml",
	"DMC-39-A-32-11-00-00A-720A-A.xml",
	"training/primus_epic/fms.pdf",
	"awdp/24-00.pdf",
	"",
}

var taskTypes = []domain.TaskType{
	domain.TaskFaultIsolation,
	domain.TaskRemoveProcedure,
	domain.TaskSystemDescription,
	domain.TaskAssembly,
	"unknown",
	"",
}

var filters = []string{"ATA 24", "32", "PRIMUS_EPIC", "PT6C_67CD", "", "garbage"}

// randomInput generates arbitrary scorer inputs for testing/quick.
type randomInput struct{ Input }

func (randomInput) Generate(r *rand.Rand, _ int) reflect.Value {
	var parts []string
	for range r.Intn(8) {
		parts = append(parts, diagnosisFragments[r.Intn(len(diagnosisFragments))])
	}

	docs := make([]domain.RetrievedDocument, r.Intn(13))
	for i := range docs {
		sim := r.Float64()*1.4 - 0.2
		if r.Intn(10) == 0 {
			sim = math.NaN()
		}
		docs[i] = domain.RetrievedDocument{
			DocPath:         docPaths[r.Intn(len(docPaths))],
			Content:         diagnosisFragments[r.Intn(len(diagnosisFragments))],
			SimilarityScore: sim,
		}
	}

	return reflect.ValueOf(randomInput{Input{
		Documents: docs,
		Diagnosis: strings.Join(parts, ". "),
		Query:     queryFragments[r.Intn(len(queryFragments))],
		Filter:    domain.ParseManualFilter(filters[r.Intn(len(filters))]),
		TaskType:  taskTypes[r.Intn(len(taskTypes))],
		HasAWDP:   r.Intn(2) == 0,
	}})
}

func TestScore_Properties(t *testing.T) {
	s := Default()
	threshold := s.Threshold()

	bounded := func(in randomInput) bool {
		res := s.Score(in.Input)
		return res.Score >= domain.MinCertaintyScore && res.Score <= domain.MaxCertaintyScore
	}
	gated := func(in randomInput) bool {
		res := s.Score(in.Input)
		return res.CanExceed95 || res.Score < threshold
	}
	statusFollowsScore := func(in randomInput) bool {
		res := s.Score(in.Input)
		return res.Status == domain.StatusFor(res.Score, threshold)
	}
	capsOnlyLower := func(in randomInput) bool {
		res := s.Score(in.Input)
		return res.Score <= clampScore(res.RawScore)
	}
	factorsBounded := func(in randomInput) bool {
		b := s.Score(in.Input).Breakdown
		for _, c := range []domain.ComponentScore{b.Coverage, b.SystemAnalysis, b.Evidence, b.QueryAlignment, b.DiagramAnalysis} {
			if c.Score < 0 || c.Score > 100 {
				return false
			}
		}
		return true
	}
	deterministic := func(in randomInput) bool {
		return cmp.Diff(s.Score(in.Input), s.Score(in.Input)) == ""
	}

	cfg := &quick.Config{MaxCount: 500}
	for name, prop := range map[string]any{
		"bounded":              bounded,
		"gated":                gated,
		"status follows score": statusFollowsScore,
		"caps only lower":      capsOnlyLower,
		"factors bounded":      factorsBounded,
		"deterministic":        deterministic,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, quick.Check(prop, cfg))
		})
	}
}

func TestEvidenceScore_Monotonic(t *testing.T) {
	f := func(n uint8) bool {
		c := int(n)
		return evidenceScore(c) <= evidenceScore(c+1)
	}
	require.NoError(t, quick.Check(f, nil))

	tests := []struct {
		count int
		want  int
	}{
		{0, 0}, {1, 20}, {2, 20}, {3, 40}, {4, 40}, {5, 60}, {6, 60}, {7, 80}, {9, 80}, {10, 100}, {40, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evidenceScore(tt.count), "count %d", tt.count)
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"below floor", 12.4, 40},
		{"half rounds to even down", 84.5, 84},
		{"half rounds to even up", 85.5, 86},
		{"above ceiling", 140, 100},
		{"nan", math.NaN(), 40},
		{"negative infinity", math.Inf(-1), 40},
		{"positive infinity", math.Inf(1), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampScore(tt.in))
		})
	}
}

func TestScore_ConcurrentUseRandomInputs(t *testing.T) {
	s := Default()
	r := rand.New(rand.NewSource(7))

	inputs := make([]Input, 64)
	want := make([]domain.CertaintyResult, len(inputs))
	for i := range inputs {
		inputs[i] = randomInput{}.Generate(r, 0).Interface().(randomInput).Input
		want[i] = s.Score(inputs[i])
	}

	got := make([]domain.CertaintyResult, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = s.Score(inputs[i])
		}()
	}
	wg.Wait()

	for i := range inputs {
		assert.Empty(t, cmp.Diff(want[i], got[i]), "input %d", i)
	}
}
