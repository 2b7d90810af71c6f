package terminology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// indexed pairs an entry with its normalized match key.
type indexed struct {
	entry domain.TerminologyEntry
	key   string
}

// Snapshot is an immutable view of the terminology store. It is safe for
// concurrent use; a reload produces a new Snapshot rather than mutating one.
type Snapshot struct {
	version  string
	byDomain map[domain.Domain][]indexed
}

// NewSnapshot builds a snapshot from entries. Invalid entries are skipped.
func NewSnapshot(entries []domain.TerminologyEntry) *Snapshot {
	s := &Snapshot{byDomain: make(map[domain.Domain][]indexed)}
	sorted := make([]domain.TerminologyEntry, 0, len(entries))
	for _, e := range entries {
		if domain.ValidateEntry(e) == nil {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Domain != sorted[j].Domain {
			return sorted[i].Domain < sorted[j].Domain
		}
		return sorted[i].Source < sorted[j].Source
	})

	h := sha256.New()
	for _, e := range sorted {
		s.byDomain[e.Domain] = append(s.byDomain[e.Domain], indexed{entry: e, key: normalize(e.Source)})
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%t\x00%s\n",
			e.Domain, e.Source, e.Target, e.Verified, strconv.FormatFloat(e.Weight, 'g', -1, 64))
	}
	s.version = hex.EncodeToString(h.Sum(nil))[:16]
	return s
}

// LoadSnapshot reads the general domain plus each listed domain from store.
func LoadSnapshot(ctx context.Context, store Store, domains ...domain.Domain) (*Snapshot, error) {
	want := []domain.Domain{domain.DomainGeneral}
	for _, d := range domains {
		if d.Specific() {
			want = append(want, d)
		}
	}
	seen := make(map[domain.Domain]bool, len(want))
	var all []domain.TerminologyEntry
	for _, d := range want {
		if seen[d] {
			continue
		}
		seen[d] = true
		entries, err := store.Lookup(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("terminology: lookup %s: %w", d, err)
		}
		all = append(all, entries...)
	}
	return NewSnapshot(all), nil
}

// Version identifies the snapshot contents; equal contents give equal versions.
func (s *Snapshot) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// Len returns the number of entries across all domains.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, es := range s.byDomain {
		n += len(es)
	}
	return n
}

func (s *Snapshot) domain(d domain.Domain) []indexed {
	if s == nil {
		return nil
	}
	return s.byDomain[d]
}

// normalize folds width and compatibility variants (full-width Latin,
// half-width katakana) so that text and terms compare equal.
func normalize(s string) string {
	return norm.NFKC.String(s)
}
