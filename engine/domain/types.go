// Package domain defines core domain types, constants, and validation for the
// patent translation pipeline. It acts as the validation gate at pipeline entry points.
package domain

import (
	"fmt"
	"strings"
)

// SectionKind identifies the part of a patent document a section came from.
type SectionKind string

const (
	SectionTitle       SectionKind = "title"
	SectionAbstract    SectionKind = "abstract"
	SectionClaims      SectionKind = "claims"
	SectionDescription SectionKind = "description"
)

// ValidSectionKinds is the set of recognised section kinds.
var ValidSectionKinds = map[SectionKind]bool{
	SectionTitle: true, SectionAbstract: true,
	SectionClaims: true, SectionDescription: true,
}

// Domain is a coarse subject classification used to scope terminology and
// retrieval relevance.
type Domain string

const (
	DomainSemiconductor Domain = "semiconductor"
	DomainMechanical    Domain = "mechanical"
	DomainGeneral       Domain = "general"
	DomainUnknown       Domain = "unknown"
)

// ParseDomain maps a free-form tag to a Domain. Anything unrecognised is DomainUnknown.
func ParseDomain(s string) Domain {
	switch Domain(strings.ToLower(strings.TrimSpace(s))) {
	case DomainSemiconductor:
		return DomainSemiconductor
	case DomainMechanical:
		return DomainMechanical
	case DomainGeneral:
		return DomainGeneral
	default:
		return DomainUnknown
	}
}

// Specific reports whether d names a concrete subject area (not general or unknown).
func (d Domain) Specific() bool {
	return d == DomainSemiconductor || d == DomainMechanical
}

// Section is one structured part of a source document. Immutable once extracted.
type Section struct {
	Kind    SectionKind `json:"kind"`
	Text    string      `json:"text"`
	Domain  Domain      `json:"domain"`
	Ordinal int         `json:"ordinal"`
}

// TerminologyEntry is a read-only source→target term pair from the terminology store.
type TerminologyEntry struct {
	Source   string  `json:"source_term"`
	Target   string  `json:"target_term"`
	Domain   Domain  `json:"domain"`
	Verified bool    `json:"verified"`
	Weight   float64 `json:"usage_weight"`
	Notes    string  `json:"notes,omitempty"`
}

// TranslationExample is a historical translation retrieved from the vector index.
// Similarity is computed per query and never stored.
type TranslationExample struct {
	ID         string    `json:"id"`
	Source     string    `json:"source_text"`
	Target     string    `json:"target_text"`
	Embedding  []float32 `json:"-"`
	Domain     Domain    `json:"domain"`
	Seq        int64     `json:"seq"` // corpus insertion order; higher is more recent
	Similarity float32   `json:"similarity"`
}

// TranslationResult is the outcome of a successfully translated section.
type TranslationResult struct {
	Kind         SectionKind `json:"section"`
	Ordinal      int         `json:"ordinal"`
	Text         string      `json:"translation"`
	Confidence   float64     `json:"confidence"`
	ExampleCount int         `json:"examples_used"`
	TermCount    int         `json:"terms_matched"`
	Degraded     []string    `json:"degraded,omitempty"`
}

// MetadataLine renders the per-section metadata summary attached to output documents.
func (r TranslationResult) MetadataLine(band string) string {
	return fmt.Sprintf("confidence: %.2f (%s) | examples: %d | terms: %d",
		r.Confidence, band, r.ExampleCount, r.TermCount)
}

// Degradation reasons attached to results produced with reduced context.
const (
	DegradedIndexUnavailable = "index_unavailable"
	DegradedEmbedFailed      = "embedding_failed"
	DegradedCrossDomain      = "cross_domain_examples"
	DegradedNoTerminology    = "no_terminology"
)
