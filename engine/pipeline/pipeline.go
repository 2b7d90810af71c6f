// Package pipeline drives document sections through retrieval, prompt
// assembly, translation and scoring, and aggregates the outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/patentrag/engine/confidence"
	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/prompt"
	"github.com/WessleyAI/patentrag/engine/retrieval"
	"github.com/WessleyAI/patentrag/engine/terminology"
	"github.com/WessleyAI/patentrag/engine/translate"
	"github.com/WessleyAI/patentrag/pkg/fn"
	"github.com/WessleyAI/patentrag/pkg/metrics"
)

// Embedder turns section text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever selects examples for a query vector.
type Retriever interface {
	Retrieve(ctx context.Context, embedding []float32, d domain.Domain, k int, minSim float32) (retrieval.Result, error)
}

// Invoker completes an assembled prompt.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (translate.Output, error)
}

// Pinger is a service checked before any section work starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes a run.
type Options struct {
	K             int
	MinSimilarity float32
	Budget        int
	Workers       int
	Weights       confidence.Weights
}

// DefaultOptions mirrors the configuration defaults.
var DefaultOptions = Options{
	K:             3,
	MinSimilarity: 0.7,
	Budget:        12000,
	Workers:       4,
	Weights:       confidence.DefaultWeights,
}

// Deps are the collaborators of an Orchestrator. Embedder, Retriever,
// Matcher, Assembler and Invoker are required.
type Deps struct {
	Embedder  Embedder
	Retriever Retriever
	Matcher   *terminology.Matcher
	Assembler *prompt.Assembler
	Invoker   Invoker
	// Preflight services must answer before a document is started.
	Preflight map[string]Pinger
	Events    EventSink
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Orchestrator runs documents through the section state machine.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Matcher == nil {
		deps.Matcher = terminology.NewMatcher(0)
	}
	if deps.Assembler == nil {
		deps.Assembler = prompt.NewAssembler(0)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions.Workers
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultOptions.Budget
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// Preflight pings every preflight service. A failure is ErrServiceUnavailable.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	for name, p := range o.deps.Preflight {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("pipeline: %s: %w: %w", name, domain.ErrServiceUnavailable, err)
		}
	}
	return nil
}

// TranslateDocument translates sections against the terminology snapshot.
// Unreachable services are reported before any section starts. Otherwise
// every section reaches SCORED or FAILED and the document is returned in
// ordinal order. If ctx is cancelled, sections not yet started fail with the
// context error, finished sections are kept, and ctx.Err() is returned
// alongside the partial document.
func (o *Orchestrator) TranslateDocument(ctx context.Context, snap *terminology.Snapshot, sections []domain.Section) (*DocumentResult, error) {
	if err := o.Preflight(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	o.deps.Logger.Info("document start", "run", runID, "sections", len(sections),
		"terms_version", snap.Version(), "workers", o.opts.Workers)

	outcomes := fn.ParMap(sections, o.opts.Workers, func(s domain.Section) Outcome {
		oc := o.Section(ctx, snap, s)
		o.emit(ctx, runID, oc)
		return oc
	})

	doc := newDocumentResult(runID, snap.Version(), outcomes)
	doc.Duration = time.Since(start)
	o.deps.Logger.Info("document done", "run", runID, "scored", doc.Stats.Scored,
		"failed", doc.Stats.Failed, "duration", doc.Duration)
	return doc, ctx.Err()
}

// Section runs a single section to a terminal state.
func (o *Orchestrator) Section(ctx context.Context, snap *terminology.Snapshot, s domain.Section) Outcome {
	ctx, span := otel.Tracer("engine/pipeline").Start(ctx, "section", trace.WithAttributes(
		attribute.String("section.kind", string(s.Kind)),
		attribute.Int("section.ordinal", s.Ordinal),
		attribute.String("section.domain", string(s.Domain)),
	))
	defer span.End()

	start := time.Now()
	oc := Outcome{Section: s}

	w, err := o.stages(snap)(ctx, s).Unwrap()
	oc.Duration = time.Since(start)
	if err != nil {
		oc.State, oc.Err = StateFailed, err
		oc.Reason = failureReason(err)
		span.SetAttributes(attribute.String("section.state", string(StateFailed)), attribute.String("section.reason", oc.Reason))
		span.SetStatus(codes.Error, err.Error())
		o.deps.Metrics.Section(string(StateFailed))
		o.deps.Logger.Warn("section failed", "section", s.Kind, "ordinal", s.Ordinal, "err", err)
		return oc
	}

	br := confidence.Explain(o.opts.Weights, confidence.Signals{
		Examples:  w.bundle.Examples,
		Terms:     w.bundle.Terms,
		Output:    w.out.Text,
		Stability: confidence.Agreement(w.out.Text, w.out.Samples),
		Degraded:  w.reducedContext(),
	})
	oc.State = StateScored
	oc.Breakdown = &br
	oc.Result = &domain.TranslationResult{
		Kind:         s.Kind,
		Ordinal:      s.Ordinal,
		Text:         w.out.Text,
		Confidence:   br.Score,
		ExampleCount: len(w.bundle.Examples),
		TermCount:    len(w.bundle.Terms),
		Degraded:     w.degraded,
	}
	span.SetAttributes(attribute.String("section.state", string(StateScored)), attribute.Float64("section.confidence", br.Score))
	o.deps.Metrics.Section(string(StateScored))
	o.deps.Metrics.Confidence(br.Score)
	o.deps.Logger.Info("section scored", "section", s.Kind, "ordinal", s.Ordinal,
		"confidence", br.Score, "examples", oc.Result.ExampleCount, "terms", oc.Result.TermCount,
		"attempts", w.out.Attempts, "degraded", w.degraded)
	return oc
}

func (o *Orchestrator) emit(ctx context.Context, runID string, oc Outcome) {
	if o.deps.Events == nil {
		return
	}
	// Terminal events are still delivered after cancellation.
	if err := o.deps.Events.Publish(context.WithoutCancel(ctx), eventFor(runID, oc)); err != nil {
		o.deps.Logger.Warn("publish section event", "section", oc.Section.Kind, "ordinal", oc.Section.Ordinal, "err", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, domain.ErrSectionTooLarge):
		return "section_too_large"
	case errors.Is(err, domain.ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, domain.ErrEmptySection), errors.Is(err, domain.ErrInvalidSection):
		return "invalid_section"
	default:
		return "translation_failed"
	}
}
