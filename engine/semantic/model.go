// Package semantic holds the vector indexes that serve historical
// translation examples: a Qdrant-backed VectorStore for production and a
// versioned in-memory MemoryIndex for tests and small corpora.
package semantic

import (
	"context"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// Payload keys stored alongside each point.
const (
	KeySource      = "source_text"
	KeyTarget      = "target_text"
	KeyDomain      = "domain"
	KeySeq         = "seq"
	KeyPairID      = "pair_id"
	KeyPatentID    = "patent_id"
	KeySectionType = "section_type"
)

// Index answers nearest-neighbour queries. Returned examples carry their
// per-query Similarity and are ordered by it, highest first.
type Index interface {
	Query(ctx context.Context, embedding []float32, k int) ([]domain.TranslationExample, error)
}

// VectorRecord is a translation example ready to be written to an index.
// ID must be a UUID string.
type VectorRecord struct {
	Example domain.TranslationExample
	PairID  string
	Meta    map[string]string // patent_id, section_type
}
