package domain

import "math"

// RetrievedDocument is a manual excerpt returned by the retrieval backend.
// It is created by the retriever and consumed read-only by every stage
// after it.
type RetrievedDocument struct {
	// DocPath is the source path of the excerpt, usually a DMC file name.
	DocPath string `json:"doc_path"`

	// Content is the excerpt text.
	Content string `json:"content"`

	// SimilarityScore is the reranked cosine similarity to the query.
	SimilarityScore float64 `json:"similarity_score"`

	// ATAIdentifier is the cleaned document identifier derived from DocPath.
	ATAIdentifier string `json:"ata_identifier,omitempty"`
}

// Similarity returns the similarity score with NaN, infinities and
// negative values mapped to 0.
func (d RetrievedDocument) Similarity() float64 {
	s := d.SimilarityScore
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return 0
	}
	return s
}

// RetrievalResult is the response of a retrieval call.
type RetrievalResult struct {
	// Query is the query text as it was embedded.
	Query string `json:"query"`

	// Answer is the generated answer, empty when generation was skipped.
	Answer string `json:"answer"`

	// ATA is the identifier of the first ranked document.
	ATA string `json:"ata"`

	// References lists "ATA <id>: <path>" entries in rank order.
	References []string `json:"references"`

	// Documents holds the ranked excerpts.
	Documents []RetrievedDocument `json:"documents"`

	// ProcessingTimeMs is the wall time spent in retrieval and generation.
	ProcessingTimeMs float64 `json:"processing_time_ms"`

	// Model names the model used for generation, if any.
	Model string `json:"model_used,omitempty"`
}

// AWDPInfo describes wiring diagram (AWDP) evidence found for a request.
type AWDPInfo struct {
	// Found reports whether any wiring diagram evidence exists.
	Found bool `json:"found"`

	// Reference is the display value for the report header. It is
	// "Not Available" when nothing was found.
	Reference string `json:"reference"`

	// References holds up to three unique references in discovery order.
	References []string `json:"references,omitempty"`

	// Secondary reports whether the evidence came from the secondary
	// wiring diagram search.
	Secondary bool `json:"secondary,omitempty"`
}
