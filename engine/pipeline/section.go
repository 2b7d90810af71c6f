package pipeline

import (
	"context"
	"time"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/prompt"
	"github.com/WessleyAI/patentrag/engine/retrieval"
	"github.com/WessleyAI/patentrag/engine/terminology"
	"github.com/WessleyAI/patentrag/engine/translate"
	"github.com/WessleyAI/patentrag/pkg/fn"
)

// work carries one section through the stages.
type work struct {
	section  domain.Section
	terms    []domain.TerminologyEntry
	examples []domain.TranslationExample
	degraded []string
	bundle   prompt.Bundle
	out      translate.Output
}

func (w *work) flag(reason string) {
	w.degraded = append(w.degraded, reason)
}

// reducedContext reports whether retrieval context was lost to a failing
// service. Cross-domain examples and missing terminology are flagged but
// already reflected in the sub-scores.
func (w work) reducedContext() bool {
	for _, d := range w.degraded {
		if d == domain.DegradedIndexUnavailable || d == domain.DegradedEmbedFailed {
			return true
		}
	}
	return false
}

func (o *Orchestrator) stages(snap *terminology.Snapshot) fn.Stage[domain.Section, work] {
	return fn.Then(
		fn.Then(
			fn.TracedStage[domain.Section, work]("section.retrieve", o.retrieveStage(snap)),
			fn.TracedStage[work, work]("section.assemble", o.assembleStage),
		),
		fn.TracedStage[work, work]("section.translate", o.translateStage),
	)
}

func fail(s domain.Section, state State, err error) fn.Result[work] {
	return fn.Err[work](&domain.SectionError{Kind: s.Kind, Ordinal: s.Ordinal, State: string(state), Err: err})
}

// retrieveStage matches terminology while embedding and querying the index.
func (o *Orchestrator) retrieveStage(snap *terminology.Snapshot) fn.Stage[domain.Section, work] {
	return func(ctx context.Context, s domain.Section) fn.Result[work] {
		if err := ctx.Err(); err != nil {
			return fail(s, StatePending, err)
		}
		if err := domain.ValidateSection(s); err != nil {
			return fail(s, StatePending, err)
		}
		defer o.deps.Metrics.StageSince(string(StateRetrieving), time.Now())

		terms := make(chan []domain.TerminologyEntry, 1)
		go func() {
			terms <- o.deps.Matcher.Match(snap, s.Text, s.Domain)
		}()

		w := work{section: s}
		emb, err := o.deps.Embedder.Embed(ctx, s.Text)
		switch {
		case ctx.Err() != nil:
			<-terms
			return fail(s, StateRetrieving, ctx.Err())
		case err != nil:
			o.deps.Logger.Warn("embed failed, translating without examples", "section", s.Kind, "ordinal", s.Ordinal, "err", err)
			w.flag(domain.DegradedEmbedFailed)
		default:
			res, err := o.deps.Retriever.Retrieve(ctx, emb, s.Domain, o.opts.K, o.opts.MinSimilarity)
			if err != nil {
				<-terms
				return fail(s, StateRetrieving, err)
			}
			w.examples = res.Examples
			if res.Degraded {
				o.deps.Logger.Warn("index unavailable, translating without examples", "section", s.Kind, "ordinal", s.Ordinal, "err", res.Cause)
				w.flag(domain.DegradedIndexUnavailable)
			}
			if res.CrossDomain && len(res.Examples) > 0 {
				w.flag(domain.DegradedCrossDomain)
			}
		}

		w.terms = <-terms
		if len(w.terms) == 0 {
			w.flag(domain.DegradedNoTerminology)
		}
		for _, d := range w.degraded {
			o.deps.Metrics.Degraded(d)
		}
		return fn.Ok(w)
	}
}

func (o *Orchestrator) assembleStage(ctx context.Context, w work) fn.Result[work] {
	if err := ctx.Err(); err != nil {
		return fail(w.section, StateAssembling, err)
	}
	defer o.deps.Metrics.StageSince(string(StateAssembling), time.Now())

	in := prompt.Input{Text: w.section.Text, Kind: w.section.Kind, Domain: w.section.Domain}
	b, err := o.deps.Assembler.Assemble(in, w.examples, w.terms, o.opts.Budget)
	if err != nil {
		return fail(w.section, StateAssembling, err)
	}
	w.bundle = b
	return fn.Ok(w)
}

func (o *Orchestrator) translateStage(ctx context.Context, w work) fn.Result[work] {
	if err := ctx.Err(); err != nil {
		return fail(w.section, StateTranslating, err)
	}
	defer o.deps.Metrics.StageSince(string(StateTranslating), time.Now())

	out, err := o.deps.Invoker.Invoke(ctx, w.bundle.Render())
	if err != nil {
		return fail(w.section, StateTranslating, err)
	}
	w.out = out
	return fn.Ok(w)
}

// Ensure the retrieval package's concrete type satisfies Retriever.
var _ Retriever = (*retrieval.Retriever)(nil)
