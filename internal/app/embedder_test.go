package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/model"
)

// wordEmbedder returns one 0.1 component per word of the input.
type wordEmbedder struct {
	fail string
}

func (w wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if w.fail != "" && text == w.fail {
		return nil, errors.New("model unavailable")
	}
	n := len(strings.Fields(text))
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec, nil
}

func (w wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := w.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// batchRecorder counts batch calls and rejects single-text calls.
type batchRecorder struct {
	mu    sync.Mutex
	sizes []int
}

func (b *batchRecorder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("unexpected single embed")
}

func (b *batchRecorder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.sizes = append(b.sizes, len(texts))
	b.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func TestEmbedChunksAddsEmbeddingPerChunk(t *testing.T) {
	e := NewEmbedder(wordEmbedder{}, 2)
	in := []model.Chunk{
		{ChunkID: 0, Text: "hello world"},
		{ChunkID: 1, Text: "this is a test"},
	}

	out, err := e.EmbedChunks(context.Background(), in)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0.1, 0.1}, out[0].Embedding)
	assert.Equal(t, []float32{0.1, 0.1, 0.1, 0.1}, out[1].Embedding)
	assert.Equal(t, "this is a test", out[1].Text)
	assert.Nil(t, in[0].Embedding)
}

func TestEmbedChunksFailsOnAnyError(t *testing.T) {
	e := NewEmbedder(wordEmbedder{fail: "bad chunk"}, 0)

	_, err := e.EmbedChunks(context.Background(), []model.Chunk{
		{ChunkID: 0, Text: "good chunk"},
		{ChunkID: 1, Text: "bad chunk"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed chunks 0-1")
}

func TestEmbedChunksSendsBatches(t *testing.T) {
	rec := &batchRecorder{}
	e := NewEmbedder(rec, 3)
	in := make([]model.Chunk, embedBatchSize*2+1)
	for i := range in {
		in[i] = model.Chunk{ChunkID: i, Text: strings.Repeat("x", i+1)}
	}

	out, err := e.EmbedChunks(context.Background(), in)

	require.NoError(t, err)
	assert.ElementsMatch(t, []int{embedBatchSize, embedBatchSize, 1}, rec.sizes)
	for i, c := range out {
		assert.Equal(t, []float32{float32(i + 1)}, c.Embedding, "chunk %d", i)
	}
}

func TestEmbedText(t *testing.T) {
	vec, err := NewEmbedder(wordEmbedder{}, 1).EmbedText(context.Background(), "one two three")

	require.NoError(t, err)
	assert.Len(t, vec, 3)
}
