package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"legalrag/internal/model"
)

const (
	defaultEmbedConcurrency = 4
	embedBatchSize          = 16
)

// EmbeddingModel maps text to fixed-length vectors.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Embedder struct {
	model       EmbeddingModel
	concurrency int
	batchSize   int
}

func NewEmbedder(m EmbeddingModel, concurrency int) *Embedder {
	if concurrency <= 0 {
		concurrency = defaultEmbedConcurrency
	}
	return &Embedder{model: m, concurrency: concurrency, batchSize: embedBatchSize}
}

// EmbedChunks returns copies of chunks with Embedding set, in input order. The input
// slice is not modified. Chunks are sent in batches; the first failed batch cancels the
// remaining calls.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error) {
	out := make([]model.Chunk, len(chunks))
	copy(out, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(out); start += e.batchSize {
		batch := out[start:min(start+e.batchSize, len(out))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vecs, err := e.model.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", batch[0].ChunkID, batch[len(batch)-1].ChunkID, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", batch[0].ChunkID, batch[len(batch)-1].ChunkID, len(vecs))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.model.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return vec, nil
}
