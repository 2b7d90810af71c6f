package terminology

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// DefaultMaxTerms caps the number of matched entries returned per section.
const DefaultMaxTerms = 20

// Matcher finds terminology entries whose source term occurs in a text.
type Matcher struct {
	MaxTerms int
}

// NewMatcher returns a Matcher capped at maxTerms (DefaultMaxTerms if <= 0).
func NewMatcher(maxTerms int) *Matcher {
	if maxTerms <= 0 {
		maxTerms = DefaultMaxTerms
	}
	return &Matcher{MaxTerms: maxTerms}
}

type tier int

const (
	tierExact tier = iota
	tierGeneral
	tierCross
)

func tierOf(e domain.TerminologyEntry, d domain.Domain) tier {
	switch {
	case d.Specific() && e.Domain == d:
		return tierExact
	case e.Domain == domain.DomainGeneral:
		return tierGeneral
	default:
		return tierCross
	}
}

type span struct {
	start, end int
	runes      int
	key        string
}

// Match returns the entries of snap whose source term occurs in text,
// deduplicated by source term and ranked by domain tier, verification,
// usage weight, and term length. Entries tagged with another specific domain
// are never considered; general entries serve as fallback.
func (m *Matcher) Match(snap *Snapshot, text string, d domain.Domain) []domain.TerminologyEntry {
	limit := m.MaxTerms
	if limit <= 0 {
		limit = DefaultMaxTerms
	}

	candidates := make(map[string][]domain.TerminologyEntry)
	add := func(es []indexed) {
		for _, ix := range es {
			if ix.key != "" {
				candidates[ix.key] = append(candidates[ix.key], ix.entry)
			}
		}
	}
	if d.Specific() {
		add(snap.domain(d))
	}
	add(snap.domain(domain.DomainGeneral))
	if len(candidates) == 0 {
		return nil
	}

	found := longestMatches(normalize(text), candidates)

	out := make([]domain.TerminologyEntry, 0, len(found))
	for _, key := range found {
		out = append(out, pick(candidates[key], d))
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j], d) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// longestMatches returns the keys that own at least one occurrence in text
// after suppressing every occurrence overlapped by a longer one.
func longestMatches(text string, candidates map[string][]domain.TerminologyEntry) []string {
	var spans []span
	for key := range candidates {
		n := utf8.RuneCountInString(key)
		for off := 0; off < len(text); {
			i := strings.Index(text[off:], key)
			if i < 0 {
				break
			}
			start := off + i
			spans = append(spans, span{start: start, end: start + len(key), runes: n, key: key})
			_, size := utf8.DecodeRuneInString(text[start:])
			off = start + size
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.runes != b.runes {
			return a.runes > b.runes
		}
		if a.start != b.start {
			return a.start < b.start
		}
		return a.key < b.key
	})

	covered := make([]bool, len(text))
	owned := make(map[string]bool)
	var keys []string
outer:
	for _, s := range spans {
		for i := s.start; i < s.end; i++ {
			if covered[i] {
				continue outer
			}
		}
		for i := s.start; i < s.end; i++ {
			covered[i] = true
		}
		if !owned[s.key] {
			owned[s.key] = true
			keys = append(keys, s.key)
		}
	}
	return keys
}

// pick chooses one entry for a source term. Unverified entries are only
// eligible when no verified alternative exists.
func pick(es []domain.TerminologyEntry, d domain.Domain) domain.TerminologyEntry {
	eligible := es
	if verified := filterVerified(es); len(verified) > 0 {
		eligible = verified
	}
	best := eligible[0]
	for _, e := range eligible[1:] {
		if less(e, best, d) {
			best = e
		}
	}
	return best
}

func filterVerified(es []domain.TerminologyEntry) []domain.TerminologyEntry {
	var out []domain.TerminologyEntry
	for _, e := range es {
		if e.Verified {
			out = append(out, e)
		}
	}
	return out
}

func less(a, b domain.TerminologyEntry, d domain.Domain) bool {
	if ta, tb := tierOf(a, d), tierOf(b, d); ta != tb {
		return ta < tb
	}
	if a.Verified != b.Verified {
		return a.Verified
	}
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if la, lb := utf8.RuneCountInString(a.Source), utf8.RuneCountInString(b.Source); la != lb {
		return la > lb
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Target < b.Target
}
