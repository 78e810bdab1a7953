package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
)

func TestExtractATAChapter(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Refer to ATA 24-30 for the generator", "ATA 24-30"},
		{"ATA Chapter 32 landing gear", "ATA 32"},
		{"ata: 29 hydraulic", "ATA 29"},
		{"no chapter here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractATAChapter(tt.text))
		})
	}
}

func TestExtractReferences(t *testing.T) {
	text := "See amm 32 51 00 and AMP-24-30-00, AMM-32-51-00 again, IPD 3G3250"
	assert.Equal(t, []string{"AMM-32-51-00", "AMP-24-30-00", "IPD-3G3250"}, ExtractReferences(text))
	assert.Empty(t, ExtractReferences("nothing to see"))
}

func TestProcedureStructure(t *testing.T) {
	body := "Intro\n1. Open the panel\n  2. Disconnect plug\n3.\n"

	assert.True(t, HasProcedureSteps(body))
	assert.False(t, HasProcedureSteps("Step one then step two"))
	assert.Equal(t, []string{"Open the panel", "Disconnect plug"}, ExtractProcedureSteps(body))

	assert.True(t, HasDMCReference("39-A-24-31"))
	assert.False(t, HasDMCReference("no code"))

	assert.True(t, HasSafetyNote("CAUTION: hot surface"))
	assert.False(t, HasSafetyNote("Open the panel"))
}

func TestExtractDMCCodes(t *testing.T) {
	got := ExtractDMCCodes("39-a-32-51-00-00a and 39-A-32-51-00-00A, then 39-A-24-31-00-00A")
	assert.Equal(t, []string{"39-A-32-51-00-00A", "39-A-24-31-00-00A"}, got)
	assert.Nil(t, ExtractDMCCodes("none"))
}

func TestDocumentIdentifier(t *testing.T) {
	assert.Equal(t, "39-A-24-31-00-00A-520A-A", DocumentIdentifier("data/DMC-39-A-24-31-00-00A-520A-A.xml"))
	assert.Equal(t, "39-A", DocumentIdentifier(`C:\docs\dmc-39-A.pdf`))
	assert.Equal(t, "manual", DocumentIdentifier("manual"))
	assert.Equal(t, "", DocumentIdentifier(""))
}

func TestNearestReference(t *testing.T) {
	candidates := []string{"39-A-24-31-00-00A-520A-A", "39-A-32-11-00-00A-520A-A"}

	best, dist := NearestReference("39-A-24-31-00-00A", candidates)
	assert.Equal(t, candidates[0], best)
	assert.Equal(t, 0, dist)

	best, dist = NearestReference("39-a-24-31-00-01A", candidates)
	assert.Equal(t, candidates[0], best)
	assert.Equal(t, 1, dist)

	best, dist = NearestReference("39-A-24-31-00-00A", nil)
	assert.Equal(t, "", best)
	assert.Equal(t, -1, dist)
}

func TestDetectAWDP(t *testing.T) {
	tests := []struct {
		name      string
		docs      []domain.RetrievedDocument
		body      string
		wantFound bool
		wantRef   string
		wantRefs  int
	}{
		{
			name:    "nothing",
			wantRef: AWDPNotAvailable,
		},
		{
			name: "document reference",
			docs: []domain.RetrievedDocument{
				{DocPath: "DMC-39-A-AWDP-24-XX.xml", Content: "Generator wiring diagram"},
			},
			wantFound: true,
			wantRef:   "39-A-AWDP-24-XX",
			wantRefs:  1,
		},
		{
			name:      "document indicator without reference",
			docs:      []domain.RetrievedDocument{{DocPath: "x.pdf", Content: "See schematic"}},
			wantFound: true,
			wantRef:   AWDPReferencedInProc,
			wantRefs:  1,
		},
		{
			name:      "body indicator",
			body:      "Refer to the wiring diagram",
			wantFound: true,
			wantRef:   AWDPReferencedInProc,
			wantRefs:  1,
		},
		{
			name: "body references capped at three",
			body: "24-A-31-00-00-00A-520A-A, 24-A-32-00-00-00A-520A-A, " +
				"24-A-33-00-00-00A-520A-A, 24-A-34-00-00-00A-520A-A",
			wantFound: true,
			wantRef:   "24-A-31-00-00-00A-520A-A, 24-A-32-00-00-00A-520A-A, 24-A-33-00-00-00A-520A-A",
			wantRefs:  3,
		},
		{
			name:    "unrelated documents",
			docs:    []domain.RetrievedDocument{{DocPath: "a.xml", Content: "Remove the access panel"}},
			body:    "Remove the access panel",
			wantRef: AWDPNotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAWDP(tt.docs, tt.body)
			assert.Equal(t, tt.wantFound, got.Found)
			assert.Equal(t, tt.wantRef, got.Reference)
			assert.Len(t, got.References, tt.wantRefs)
			assert.False(t, got.Secondary)
		})
	}
}

func TestSecondaryAWDP(t *testing.T) {
	docs := []domain.RetrievedDocument{
		{DocPath: "a.xml", Content: "Engine start"},
		{DocPath: "b.xml", Content: "Connector P12 pinout"},
	}
	info, ok := SecondaryAWDP(docs)
	assert.True(t, ok)
	assert.True(t, info.Found)
	assert.True(t, info.Secondary)
	assert.Equal(t, AWDPSeeReferencedDocs, info.Reference)

	info, ok = SecondaryAWDP([]domain.RetrievedDocument{
		{DocPath: "DMC-30-A-24-31-00-00A-520A-A.xml", Content: "Wiring of the starter"},
	})
	assert.True(t, ok)
	assert.Equal(t, "30-A-24-31-00-00A-520A-A", info.Reference)

	info, ok = SecondaryAWDP(nil)
	assert.False(t, ok)
	assert.Equal(t, AWDPNotAvailable, info.Reference)
}

func TestSecondaryAWDPQuery(t *testing.T) {
	assert.Equal(t, "wiring diagram schematic circuit ATA 24 AWDP", SecondaryAWDPQuery("ATA 24", "", ""))
	assert.Equal(t, "wiring diagram schematic circuit ATA 24 AWDP LN Long Nose",
		SecondaryAWDPQuery("ATA 24", "LN", "Long Nose"))
}
