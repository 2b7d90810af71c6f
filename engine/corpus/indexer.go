package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/patentrag/engine/semantic"
	"github.com/WessleyAI/patentrag/pkg/fn"
	"github.com/WessleyAI/patentrag/pkg/metrics"
)

// DefaultBatchSize is how many pairs are embedded and written per batch.
const DefaultBatchSize = 32

// BatchEmbedder embeds several texts in one call, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Writer stores vector records. Re-writing an ID overwrites it.
type Writer interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Stats summarises an indexing run.
type Stats struct {
	Indexed int
	Failed  int
	Batches int
}

// batch is the unit flowing through the indexing stages.
type batch struct {
	pairs    []Pair
	firstSeq int64
	vectors  [][]float32
}

// Indexer embeds pairs and writes them to a Writer.
type Indexer struct {
	BatchSize int
	Retry     fn.RetryOpts
	Metrics   *metrics.Registry
	embedder  BatchEmbedder
	writer    Writer
	logger    *slog.Logger
}

// NewIndexer creates an Indexer that retries each stage with fn.DefaultRetry.
func NewIndexer(e BatchEmbedder, w Writer, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{BatchSize: DefaultBatchSize, Retry: fn.DefaultRetry, embedder: e, writer: w, logger: logger}
}

// embedStage embeds the source text of every pair in the batch.
func (ix *Indexer) embedStage(ctx context.Context, b batch) fn.Result[batch] {
	texts := make([]string, len(b.pairs))
	for i, p := range b.pairs {
		texts[i] = p.Source
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fn.Err[batch](fmt.Errorf("corpus: embed: %w", err))
	}
	if len(vecs) != len(b.pairs) {
		return fn.Errf[batch]("corpus: embed: got %d vectors for %d texts", len(vecs), len(b.pairs))
	}
	b.vectors = vecs
	return fn.Ok(b)
}

// storeStage writes the embedded batch and returns how many records it wrote.
func (ix *Indexer) storeStage(ctx context.Context, b batch) fn.Result[int] {
	records := make([]semantic.VectorRecord, len(b.pairs))
	for i, p := range b.pairs {
		ex := p.Example(b.firstSeq + int64(i))
		ex.Embedding = b.vectors[i]
		meta := map[string]string{}
		if p.PatentID != "" {
			meta[semantic.KeyPatentID] = p.PatentID
		}
		if p.SectionType != "" {
			meta[semantic.KeySectionType] = p.SectionType
		}
		records[i] = semantic.VectorRecord{Example: ex, PairID: p.ID, Meta: meta}
	}
	if err := ix.writer.Upsert(ctx, records); err != nil {
		return fn.Err[int](fmt.Errorf("corpus: store: %w", err))
	}
	return fn.Ok(len(records))
}

func (ix *Indexer) pipeline() fn.Stage[batch, int] {
	return fn.Then(
		fn.TracedStage[batch, batch]("corpus.embed", fn.RetryStage[batch, batch](ix.Retry, ix.embedStage)),
		fn.TracedStage[batch, int]("corpus.store", fn.RetryStage[batch, int](ix.Retry, ix.storeStage)),
	)
}

// Run indexes pairs in order. The pair at position i gets sequence number
// firstSeq+i, so later lines rank as more recent. A failing batch is logged
// and counted; only cancellation stops the run early.
func (ix *Indexer) Run(ctx context.Context, pairs []Pair, firstSeq int64) (Stats, error) {
	size := ix.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	run := ix.pipeline()

	var stats Stats
	for i, chunk := range fn.Chunk(pairs, size) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		start := time.Now()
		b := batch{pairs: chunk, firstSeq: firstSeq + int64(i*size)}
		n, err := run(ctx, b).Unwrap()
		stats.Batches++
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed += len(chunk)
			ix.logger.Error("index batch failed", "batch", i, "pairs", len(chunk), "err", err)
			continue
		}
		stats.Indexed += n
		ix.Metrics.Indexed(n)
		ix.logger.Info("index batch stored", "batch", i, "pairs", n, "duration", time.Since(start))
	}
	return stats, nil
}
