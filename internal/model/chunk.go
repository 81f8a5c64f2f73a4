package model

import "legalrag/internal/pkg/pii"

// Chunk is a bounded span of sanitized page text. The chunker creates it, the embedder
// fills Embedding, and the vector store reads it without mutating it.
type Chunk struct {
	ChunkID       int         `json:"chunk_id"`
	Text          string      `json:"text"`
	Tokens        int         `json:"tokens"`
	Page          int         `json:"page"`
	PositionLabel string      `json:"position_label"`
	Method        string      `json:"chunk_method,omitempty"`
	Embedding     []float32   `json:"embedding,omitempty"`
	MaskMap       pii.MaskMap `json:"mask_map,omitempty"`
}
