package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/retrieval"
	"github.com/WessleyAI/patentrag/engine/semantic"
	"github.com/WessleyAI/patentrag/engine/terminology"
	"github.com/WessleyAI/patentrag/engine/translate"
	"github.com/WessleyAI/patentrag/pkg/fn"
)

// --- fakes ---

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }

// echoLLM answers with a JSON translation unless the prompt contains a
// poisoned marker, in which case it returns an empty reply.
type echoLLM struct {
	mu     sync.Mutex
	reply  string
	poison string
	calls  int
}

func (e *echoLLM) Complete(_ context.Context, prompt string, _ float64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.poison != "" && strings.Contains(prompt, e.poison) {
		return "", nil
	}
	return `{"translation": "` + e.reply + `"}`, nil
}

type blockingInvoker struct {
	marker  string
	started chan struct{}
}

func (b *blockingInvoker) Invoke(ctx context.Context, prompt string) (translate.Output, error) {
	if strings.Contains(prompt, b.marker) {
		close(b.started)
		<-ctx.Done()
		return translate.Output{}, ctx.Err()
	}
	return translate.Output{Text: "譯文", Attempts: 1}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type downIndex struct{}

func (downIndex) Query(context.Context, []float32, int) ([]domain.TranslationExample, error) {
	return nil, errors.New("connection refused")
}

type recordingSink struct {
	mu     sync.Mutex
	events []SectionEvent
}

func (r *recordingSink) Publish(_ context.Context, ev SectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// --- fixtures ---

var query = []float32{1, 0, 0}

// vecAt returns a unit vector whose cosine with query is sim.
func vecAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func corpus(t *testing.T) *semantic.MemoryIndex {
	t.Helper()
	idx, err := semantic.NewMemoryIndex(
		domain.TranslationExample{ID: "p1", Source: "半導体装置の製造方法であって", Target: "一種半導體裝置之製造方法", Embedding: vecAt(0.92), Domain: domain.DomainSemiconductor, Seq: 1},
		domain.TranslationExample{ID: "p2", Source: "基板を処理する", Target: "處理基板", Embedding: vecAt(0.88), Domain: domain.DomainSemiconductor, Seq: 2},
		domain.TranslationExample{ID: "p3", Source: "前記装置は", Target: "前述裝置係", Embedding: vecAt(0.81), Domain: domain.DomainSemiconductor, Seq: 3},
		domain.TranslationExample{ID: "p4", Source: "無関係", Target: "無關", Embedding: vecAt(0.2), Domain: domain.DomainSemiconductor, Seq: 4},
	)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func snapshot() *terminology.Snapshot {
	sc := domain.DomainSemiconductor
	return terminology.NewSnapshot([]domain.TerminologyEntry{
		{Source: "半導体", Target: "半導體", Domain: sc, Verified: true, Weight: 10},
		{Source: "装置", Target: "裝置", Domain: sc, Verified: true, Weight: 8},
		{Source: "の", Target: "之", Domain: domain.DomainGeneral, Verified: true, Weight: 1},
		{Source: "製造", Target: "製造", Domain: sc, Verified: true, Weight: 5},
		{Source: "方法", Target: "方法", Domain: domain.DomainGeneral, Verified: true, Weight: 5},
	})
}

var fastPolicy = translate.Policy{Retry: fn.RetryOpts{MaxAttempts: 3}}

func newOrchestrator(t *testing.T, llm translate.Completer, mutate func(*Deps, *Options)) *Orchestrator {
	t.Helper()
	deps := Deps{
		Embedder:  fixedEmbedder{vec: query},
		Retriever: retrieval.New(corpus(t), nil, 0, nil),
		Invoker:   translate.New(llm, fastPolicy),
	}
	opts := DefaultOptions
	if mutate != nil {
		mutate(&deps, &opts)
	}
	return New(deps, opts)
}

func section(kind domain.SectionKind, ordinal int, text string) domain.Section {
	return domain.Section{Kind: kind, Text: text, Domain: domain.DomainSemiconductor, Ordinal: ordinal}
}

// --- tests ---

func TestTranslateDocumentEndToEnd(t *testing.T) {
	llm := &echoLLM{reply: "半導體裝置之製造方法"}
	o := newOrchestrator(t, llm, nil)

	doc, err := o.TranslateDocument(context.Background(), snapshot(),
		[]domain.Section{section(domain.SectionTitle, 0, "半導体装置の製造方法")})
	if err != nil {
		t.Fatal(err)
	}
	oc := doc.Outcomes[0]
	if oc.State != StateScored || oc.Result == nil {
		t.Fatalf("expected SCORED, got %s (%v)", oc.State, oc.Err)
	}
	if oc.Result.ExampleCount != 3 || oc.Result.TermCount != 5 {
		t.Fatalf("expected 3 examples and 5 terms, got %d and %d", oc.Result.ExampleCount, oc.Result.TermCount)
	}
	if c := oc.Result.Confidence; c < 0.7 || c >= 0.9 {
		t.Fatalf("expected Good band confidence, got %v", c)
	}
	if oc.Band() != "Good" {
		t.Fatalf("expected Good, got %s", oc.Band())
	}
	if !strings.Contains(oc.Metadata(), "examples: 3 | terms: 5") {
		t.Fatalf("unexpected metadata line %q", oc.Metadata())
	}
	if len(oc.Result.Degraded) != 0 {
		t.Fatalf("unexpected degradation %v", oc.Result.Degraded)
	}
	if doc.TermsVersion == "" || doc.RunID == "" {
		t.Fatal("document should carry run id and terms version")
	}
}

func TestTranslateDocumentPartialFailure(t *testing.T) {
	llm := &echoLLM{reply: "譯文", poison: "第三段落"}
	sink := &recordingSink{}
	o := newOrchestrator(t, llm, func(d *Deps, _ *Options) { d.Events = sink })

	sections := []domain.Section{
		section(domain.SectionTitle, 1, "半導体装置"),
		section(domain.SectionAbstract, 2, "製造方法の概要"),
		section(domain.SectionClaims, 3, "第三段落の請求項"),
		section(domain.SectionDescription, 4, "詳細な説明"),
	}
	doc, err := o.TranslateDocument(context.Background(), snapshot(), sections)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Stats.Total != 4 || doc.Stats.Scored != 3 || doc.Stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", doc.Stats)
	}
	for i, oc := range doc.Outcomes {
		if oc.Section.Ordinal != i+1 {
			t.Fatalf("outcomes out of order: %d at %d", oc.Section.Ordinal, i)
		}
	}
	failed := doc.Outcomes[2]
	if failed.State != StateFailed || failed.Result != nil {
		t.Fatalf("section 3 should fail with a null translation, got %+v", failed)
	}
	if !errors.Is(failed.Err, domain.ErrRetriesExhausted) || failed.Reason != "retries_exhausted" {
		t.Fatalf("unexpected failure %v (%s)", failed.Err, failed.Reason)
	}
	var se *domain.SectionError
	if !errors.As(failed.Err, &se) || se.State != string(StateTranslating) {
		t.Fatalf("expected failure in TRANSLATING, got %v", failed.Err)
	}
	if failed.Metadata() != "failed: retries_exhausted" {
		t.Fatalf("unexpected metadata %q", failed.Metadata())
	}
	if len(sink.events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(sink.events))
	}
}

func TestTranslateDocumentPreflight(t *testing.T) {
	llm := &echoLLM{reply: "x"}
	o := newOrchestrator(t, llm, func(d *Deps, _ *Options) {
		d.Preflight = map[string]Pinger{"llm": pinger{err: errors.New("connection refused")}}
	})
	doc, err := o.TranslateDocument(context.Background(), snapshot(), []domain.Section{section(domain.SectionTitle, 0, "基板")})
	if !errors.Is(err, domain.ErrServiceUnavailable) || doc != nil {
		t.Fatalf("expected ErrServiceUnavailable before any work, got %v", err)
	}
	if llm.calls != 0 {
		t.Fatal("no section work should start")
	}
}

func TestTranslateDocumentCancellation(t *testing.T) {
	inv := &blockingInvoker{marker: "止まる", started: make(chan struct{})}
	o := newOrchestrator(t, nil, func(d *Deps, o *Options) {
		d.Invoker = inv
		o.Workers = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-inv.started:
			cancel()
		case <-time.After(5 * time.Second):
			cancel()
		}
	}()

	sections := []domain.Section{
		section(domain.SectionTitle, 1, "半導体装置"),
		section(domain.SectionAbstract, 2, "ここで止まる"),
		section(domain.SectionClaims, 3, "請求項"),
		section(domain.SectionDescription, 4, "説明"),
	}
	doc, err := o.TranslateDocument(ctx, snapshot(), sections)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if doc.Outcomes[0].State != StateScored {
		t.Fatal("already finished section must be preserved")
	}
	for _, oc := range doc.Outcomes[1:] {
		if oc.State != StateFailed || oc.Reason != "cancelled" {
			t.Fatalf("section %d: expected cancelled failure, got %s %s", oc.Section.Ordinal, oc.State, oc.Reason)
		}
	}
}

func TestSectionDegradedIndex(t *testing.T) {
	llm := &echoLLM{reply: "半導體裝置之製造方法"}
	healthy := newOrchestrator(t, llm, nil)
	degraded := newOrchestrator(t, llm, func(d *Deps, _ *Options) {
		d.Retriever = retrieval.New(downIndex{}, nil, 0, nil)
	})

	s := section(domain.SectionTitle, 0, "半導体装置の製造方法")
	good := healthy.Section(context.Background(), snapshot(), s)
	bad := degraded.Section(context.Background(), snapshot(), s)
	if bad.State != StateScored {
		t.Fatalf("index outage must not fail the section: %v", bad.Err)
	}
	if bad.Result.ExampleCount != 0 || !contains(bad.Result.Degraded, domain.DegradedIndexUnavailable) {
		t.Fatalf("expected flagged zero-example result, got %+v", bad.Result)
	}
	if bad.Result.Confidence >= good.Result.Confidence {
		t.Fatalf("degraded %v should score below healthy %v", bad.Result.Confidence, good.Result.Confidence)
	}
}

func TestSectionEmbedFailure(t *testing.T) {
	o := newOrchestrator(t, &echoLLM{reply: "x"}, func(d *Deps, _ *Options) {
		d.Embedder = fixedEmbedder{err: errors.New("embed down")}
	})
	oc := o.Section(context.Background(), snapshot(), section(domain.SectionTitle, 0, "基板"))
	if oc.State != StateScored || !contains(oc.Result.Degraded, domain.DegradedEmbedFailed) {
		t.Fatalf("expected degraded scored section, got %s %+v", oc.State, oc.Result)
	}
}

func TestSectionNoTerminology(t *testing.T) {
	o := newOrchestrator(t, &echoLLM{reply: "x"}, nil)
	oc := o.Section(context.Background(), terminology.NewSnapshot(nil), section(domain.SectionTitle, 0, "半導体装置"))
	if oc.State != StateScored || !contains(oc.Result.Degraded, domain.DegradedNoTerminology) {
		t.Fatalf("expected no_terminology flag, got %+v", oc.Result)
	}
}

func TestTranslateDocumentNilSnapshot(t *testing.T) {
	o := newOrchestrator(t, &echoLLM{reply: "x"}, nil)
	doc, err := o.TranslateDocument(context.Background(), nil, []domain.Section{section(domain.SectionTitle, 0, "半導体装置")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TermsVersion != "" || doc.Stats.Scored != 1 {
		t.Fatalf("expected one scored section without terminology, got %+v", doc.Stats)
	}
	if !contains(doc.Outcomes[0].Result.Degraded, domain.DegradedNoTerminology) {
		t.Fatalf("expected no_terminology flag, got %+v", doc.Outcomes[0].Result)
	}
}

func TestSectionTooLarge(t *testing.T) {
	o := newOrchestrator(t, &echoLLM{reply: "x"}, func(_ *Deps, opts *Options) { opts.Budget = 100 })
	oc := o.Section(context.Background(), snapshot(), section(domain.SectionDescription, 0, strings.Repeat("基板", 200)))
	if oc.State != StateFailed || oc.Reason != "section_too_large" {
		t.Fatalf("expected section_too_large, got %s %s", oc.State, oc.Reason)
	}
	var se *domain.SectionError
	if !errors.As(oc.Err, &se) || se.State != string(StateAssembling) {
		t.Fatalf("expected failure in ASSEMBLING, got %v", oc.Err)
	}
}

func TestSectionInvalid(t *testing.T) {
	o := newOrchestrator(t, &echoLLM{reply: "x"}, nil)
	oc := o.Section(context.Background(), snapshot(), domain.Section{Kind: "background", Text: "x"})
	if oc.State != StateFailed || oc.Reason != "invalid_section" {
		t.Fatalf("expected invalid_section, got %s %s", oc.State, oc.Reason)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StatePending, StateRetrieving, StateAssembling, StateTranslating} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if !StateScored.Terminal() || !StateFailed.Terminal() {
		t.Fatal("SCORED and FAILED are terminal")
	}
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
