package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/WessleyAI/patentrag/engine/domain"
)

type memSnapshot struct {
	version uint64
	dims    int
	items   []domain.TranslationExample
	norms   []float64
}

// MemoryIndex is an exact cosine-similarity index held in memory.
//
// Queries read an immutable snapshot; Replace and Upsert build a new one and
// swap it in atomically, so a background reindex never changes the neighbour
// set of a query already in flight.
type MemoryIndex struct {
	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[memSnapshot]
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex returns an index over examples, which must carry embeddings.
func NewMemoryIndex(examples ...domain.TranslationExample) (*MemoryIndex, error) {
	m := &MemoryIndex{}
	if err := m.Replace(examples); err != nil {
		return nil, err
	}
	return m, nil
}

func buildSnapshot(version uint64, examples []domain.TranslationExample) (*memSnapshot, error) {
	s := &memSnapshot{
		version: version,
		items:   make([]domain.TranslationExample, len(examples)),
		norms:   make([]float64, len(examples)),
	}
	for i, e := range examples {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("semantic: example %q has no embedding", e.ID)
		}
		if s.dims == 0 {
			s.dims = len(e.Embedding)
		} else if len(e.Embedding) != s.dims {
			return nil, fmt.Errorf("semantic: example %q has %d dims, want %d", e.ID, len(e.Embedding), s.dims)
		}
		e.Similarity = 0
		s.items[i] = e
		s.norms[i] = norm(e.Embedding)
	}
	return s, nil
}

// Replace swaps in a new example set.
func (m *MemoryIndex) Replace(examples []domain.TranslationExample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := buildSnapshot(m.Version()+1, examples)
	if err != nil {
		return err
	}
	m.snap.Store(s)
	return nil
}

// Upsert merges records by ID into a new snapshot.
func (m *MemoryIndex) Upsert(_ context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	var merged []domain.TranslationExample
	pos := make(map[string]int)
	if cur != nil {
		merged = append(merged, cur.items...)
		for i, e := range merged {
			pos[e.ID] = i
		}
	}
	for _, r := range records {
		if i, ok := pos[r.Example.ID]; ok {
			merged[i] = r.Example
			continue
		}
		pos[r.Example.ID] = len(merged)
		merged = append(merged, r.Example)
	}
	s, err := buildSnapshot(m.Version()+1, merged)
	if err != nil {
		return err
	}
	m.snap.Store(s)
	return nil
}

// Version increases with every successful write.
func (m *MemoryIndex) Version() uint64 {
	if s := m.snap.Load(); s != nil {
		return s.version
	}
	return 0
}

// Len returns the number of indexed examples.
func (m *MemoryIndex) Len() int {
	if s := m.snap.Load(); s != nil {
		return len(s.items)
	}
	return 0
}

// Query returns the k most similar examples, ties broken by recency (Seq)
// and then ID.
func (m *MemoryIndex) Query(ctx context.Context, embedding []float32, k int) ([]domain.TranslationExample, error) {
	s := m.snap.Load()
	if s == nil || len(s.items) == 0 || k <= 0 {
		return nil, nil
	}
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("semantic: query has %d dims, index has %d", len(embedding), s.dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qn := norm(embedding)
	out := make([]domain.TranslationExample, len(s.items))
	for i, e := range s.items {
		e.Similarity = cosine(embedding, e.Embedding, qn, s.norms[i])
		e.Embedding = nil
		out[i] = e
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID < b.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float32 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (na * nb))
}
