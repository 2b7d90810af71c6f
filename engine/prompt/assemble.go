package prompt

import (
	"fmt"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// DefaultMaxExampleChars bounds each example side, in runes.
const DefaultMaxExampleChars = 200

// Assembler fits terms and examples into a prompt budget.
type Assembler struct {
	MaxExampleChars int
}

// NewAssembler returns an Assembler; maxExampleChars <= 0 uses the default.
func NewAssembler(maxExampleChars int) *Assembler {
	if maxExampleChars <= 0 {
		maxExampleChars = DefaultMaxExampleChars
	}
	return &Assembler{MaxExampleChars: maxExampleChars}
}

// Assemble builds a Bundle whose rendered size never exceeds budget.
//
// The section text is reserved first and is never truncated: if it does not
// fit on its own, ErrSectionTooLarge is returned. Terms are then added in the
// given (ranked) order, then examples in the given (similarity) order; each
// list stops at the first item that would overflow the budget, so what is
// kept is always a prefix of what was offered. Examples are only considered
// once every term fits.
func (a *Assembler) Assemble(in Input, examples []domain.TranslationExample, terms []domain.TerminologyEntry, budget int) (Bundle, error) {
	b := Bundle{Input: in}
	size := Size(b.Render())
	if size > budget {
		return Bundle{}, fmt.Errorf("prompt: %w: base prompt is %d runes, budget %d", domain.ErrSectionTooLarge, size, budget)
	}

	for _, t := range terms {
		next := b
		next.Terms = append(append([]domain.TerminologyEntry(nil), b.Terms...), t)
		n := Size(next.Render())
		if n > budget {
			break
		}
		b, size = next, n
	}

	if len(b.Terms) < len(terms) {
		b.Size = size
		return b, nil
	}

	limit := a.MaxExampleChars
	if limit <= 0 {
		limit = DefaultMaxExampleChars
	}
	for _, e := range examples {
		e.Source = clip(e.Source, limit)
		e.Target = clip(e.Target, limit)
		e.Embedding = nil
		next := b
		next.Examples = append(append([]domain.TranslationExample(nil), b.Examples...), e)
		n := Size(next.Render())
		if n > budget {
			break
		}
		b, size = next, n
	}

	b.Size = size
	return b, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
