package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/WessleyAI/patentrag/pkg/fn"
)

// EmbedClient produces embeddings through Ollama's HTTP API.
type EmbedClient struct {
	base
	// Concurrency bounds parallel requests in EmbedBatch. Zero means one at a time.
	Concurrency int
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string, timeout time.Duration) *EmbedClient {
	return &EmbedClient{base: newBase(baseURL, model, timeout)}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var result embedResp
	if err := c.post(ctx, "/api/embeddings", embedReq{Model: c.model, Prompt: text}, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding")
	}
	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

type indexedText struct {
	i    int
	text string
}

// EmbedBatch embeds texts with at most Concurrency requests in flight. The
// vectors keep the order of texts; any failure fails the batch and reports
// the lowest failing position.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	workers := c.Concurrency
	if workers <= 0 {
		workers = 1
	}
	items := make([]indexedText, len(texts))
	for i, t := range texts {
		items[i] = indexedText{i: i, text: t}
	}
	embed := fn.Stage[indexedText, []float32](func(ctx context.Context, it indexedText) fn.Result[[]float32] {
		if err := ctx.Err(); err != nil {
			return fn.Err[[]float32](err)
		}
		v, err := c.Embed(ctx, it.text)
		if err != nil {
			return fn.Err[[]float32](fmt.Errorf("embed batch [%d]: %w", it.i, err))
		}
		return fn.Ok(v)
	})
	return fn.BatchStage(workers, embed)(ctx, items).Unwrap()
}
