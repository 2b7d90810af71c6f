// Package terminology matches domain terminology against section text.
//
// Entries are loaded from a Store into an immutable, versioned Snapshot that
// is shared read-only by all concurrent section workers. The Matcher scans
// text against a snapshot with a longest-match-first policy and ranks the
// results by domain, verification, and usage weight.
package terminology

import (
	"context"
	"sort"
	"sync"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// Store is the read-only terminology lookup used by the pipeline.
type Store interface {
	Lookup(ctx context.Context, d domain.Domain) ([]domain.TerminologyEntry, error)
}

// Writer persists terminology entries. Used by import tooling only.
type Writer interface {
	Upsert(ctx context.Context, e domain.TerminologyEntry) error
}

// MemoryStore is an in-process Store, keyed by (domain, source term).
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.Domain]map[string]domain.TerminologyEntry
}

// NewMemoryStore returns a MemoryStore seeded with entries.
func NewMemoryStore(entries ...domain.TerminologyEntry) *MemoryStore {
	m := &MemoryStore{entries: make(map[domain.Domain]map[string]domain.TerminologyEntry)}
	for _, e := range entries {
		m.put(e)
	}
	return m
}

func (m *MemoryStore) put(e domain.TerminologyEntry) {
	byTerm, ok := m.entries[e.Domain]
	if !ok {
		byTerm = make(map[string]domain.TerminologyEntry)
		m.entries[e.Domain] = byTerm
	}
	byTerm[e.Source] = e
}

// Lookup returns the entries tagged with d, ordered by source term.
func (m *MemoryStore) Lookup(_ context.Context, d domain.Domain) ([]domain.TerminologyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TerminologyEntry, 0, len(m.entries[d]))
	for _, e := range m.entries[d] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// Upsert inserts or replaces the entry for (domain, source).
func (m *MemoryStore) Upsert(_ context.Context, e domain.TerminologyEntry) error {
	if err := domain.ValidateEntry(e); err != nil {
		return err
	}
	m.mu.Lock()
	m.put(e)
	m.mu.Unlock()
	return nil
}
