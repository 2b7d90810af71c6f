// Package translate sends assembled prompts to the language model and turns
// replies into target text under a bounded retry policy.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/pkg/fn"
	"github.com/WessleyAI/patentrag/pkg/metrics"
	"github.com/WessleyAI/patentrag/pkg/resilience"
)

// Temperature is the sampling temperature for every call. Zero makes a frozen
// model reproducible for a given prompt.
const Temperature = 0.0

// Completer is the language model contract.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Policy bounds how the invoker calls the model.
type Policy struct {
	Retry fn.RetryOpts
	// RatePerSecond paces calls across all sections. Zero or less is unlimited.
	RatePerSecond float64
	Burst         int
	// StabilityRuns is how many extra completions are sampled to measure
	// agreement. Zero skips sampling.
	StabilityRuns int
}

// DefaultPolicy retries up to three times without jitter so that attempts
// against a deterministic model stay comparable.
var DefaultPolicy = Policy{
	Retry: fn.RetryOpts{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
	},
	RatePerSecond: 2,
	Burst:         1,
}

// Output is a parsed completion.
type Output struct {
	Text     string
	Attempts int
	// Samples holds the parsed text of stability runs that succeeded.
	Samples []string
}

// Invoker calls a Completer with the policy applied.
type Invoker struct {
	llm     Completer
	policy  Policy
	limiter *rate.Limiter
	breaker *resilience.Breaker
	metrics *metrics.Registry
	logger  *slog.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithBreaker routes every call through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(i *Invoker) { i.breaker = b }
}

// WithMetrics records attempt outcomes in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(i *Invoker) { i.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) { i.logger = l }
}

// New creates an Invoker.
func New(llm Completer, policy Policy, opts ...Option) *Invoker {
	if policy.Retry.MaxAttempts <= 0 {
		policy.Retry.MaxAttempts = DefaultPolicy.Retry.MaxAttempts
	}
	policy.Retry.RetryIf = Retryable

	limit := rate.Inf
	if policy.RatePerSecond > 0 {
		limit = rate.Limit(policy.RatePerSecond)
	}
	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}

	inv := &Invoker{
		llm:     llm,
		policy:  policy,
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Invoke completes prompt, retrying malformed replies and transient failures
// with the same prompt. When the budget is spent the error wraps
// ErrRetriesExhausted together with the last failure.
func (i *Invoker) Invoke(ctx context.Context, prompt string) (Output, error) {
	attempts := 0
	res := fn.Retry(ctx, i.policy.Retry, func(ctx context.Context) fn.Result[string] {
		attempts++
		text, err := i.once(ctx, prompt)
		switch {
		case err == nil:
			i.metrics.LLMAttempt("ok")
		case Retryable(err) && attempts < i.policy.Retry.MaxAttempts:
			i.metrics.LLMAttempt("retry")
			i.logger.Warn("completion attempt failed", "attempt", attempts, "err", err)
		default:
			i.metrics.LLMAttempt("fail")
		}
		return fn.FromPair(text, err)
	})

	text, err := res.Unwrap()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{Attempts: attempts}, ctxErr
		}
		if Retryable(err) {
			return Output{Attempts: attempts}, fmt.Errorf("translate: %w after %d attempts: %w", domain.ErrRetriesExhausted, attempts, err)
		}
		return Output{Attempts: attempts}, fmt.Errorf("translate: %w", err)
	}

	out := Output{Text: text, Attempts: attempts}
	for n := 0; n < i.policy.StabilityRuns; n++ {
		sample, err := i.once(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			i.logger.Debug("stability sample failed", "run", n+1, "err", err)
			continue
		}
		out.Samples = append(out.Samples, sample)
	}
	return out, nil
}

func (i *Invoker) once(ctx context.Context, prompt string) (string, error) {
	if err := i.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewFatalError(fmt.Errorf("rate limit: %w", err))
	}

	var raw string
	call := func(ctx context.Context) error {
		var err error
		raw, err = i.llm.Complete(ctx, prompt, Temperature)
		return err
	}
	var err error
	if i.breaker != nil {
		err = i.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return ParseResponse(raw)
}
