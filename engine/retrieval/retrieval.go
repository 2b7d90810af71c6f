// Package retrieval selects historical translation examples for a section.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/semantic"
	"github.com/WessleyAI/patentrag/pkg/fn"
	"github.com/WessleyAI/patentrag/pkg/resilience"
)

// DefaultCandidateFactor is how many candidates are fetched per requested
// example, so the domain preference has room to act.
const DefaultCandidateFactor = 4

// Result is the outcome of a retrieval. Examples are ordered by similarity,
// highest first.
type Result struct {
	Examples []domain.TranslationExample
	// Degraded is set when the index could not be queried. Cause then wraps
	// domain.ErrIndexUnavailable.
	Degraded bool
	Cause    error
	// CrossDomain is set when no same-domain example passed the floor and
	// examples from other domains were used instead.
	CrossDomain bool
}

// Retriever queries a vector index through a circuit breaker.
type Retriever struct {
	index   semantic.Index
	breaker *resilience.Breaker
	factor  int
	logger  *slog.Logger
}

// New creates a Retriever. breaker may be nil; factor <= 0 uses DefaultCandidateFactor.
func New(index semantic.Index, breaker *resilience.Breaker, factor int, logger *slog.Logger) *Retriever {
	if factor <= 0 {
		factor = DefaultCandidateFactor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, breaker: breaker, factor: factor, logger: logger}
}

// Retrieve returns at most k examples with similarity >= minSim. It never pads
// with examples below the floor. An unreachable index yields an empty,
// degraded result rather than an error; only context errors are returned.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, d domain.Domain, k int, minSim float32) (Result, error) {
	if k <= 0 {
		return Result{}, nil
	}

	var candidates []domain.TranslationExample
	query := func(ctx context.Context) error {
		var err error
		candidates, err = r.index.Query(ctx, embedding, k*r.factor)
		return err
	}
	var err error
	if r.breaker != nil {
		err = r.breaker.Call(ctx, query)
	} else {
		err = query(ctx)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		cause := fmt.Errorf("retrieval: %w: %w", domain.ErrIndexUnavailable, err)
		r.logger.Warn("retrieval degraded", "err", cause)
		return Result{Degraded: true, Cause: cause}, nil
	}

	ranked := Rank(candidates, minSim)

	res := Result{Examples: ranked}
	if d.Specific() && len(ranked) > 0 {
		same := fn.Filter(ranked, func(e domain.TranslationExample) bool { return e.Domain == d })
		if len(same) > 0 {
			res.Examples = same
		} else {
			res.CrossDomain = true
		}
	}
	if len(res.Examples) > k {
		res.Examples = res.Examples[:k]
	}
	return res, nil
}

// Rank drops candidates below minSim (and NaN scores), removes duplicate
// IDs, and orders the rest by similarity, then recency, then ID.
func Rank(candidates []domain.TranslationExample, minSim float32) []domain.TranslationExample {
	out := make([]domain.TranslationExample, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, e := range candidates {
		if math.IsNaN(float64(e.Similarity)) || e.Similarity < minSim {
			continue
		}
		if e.ID != "" {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID < b.ID
	})
	return out
}
