// Package vectorstore stores chunk embeddings in Qdrant and searches them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"legalrag/internal/model"
	"legalrag/internal/platform/qdrant"
)

// queryLimit is the number of nearest chunks retrieved per question.
const queryLimit = 5

const (
	PayloadText          = "text"
	PayloadChunkID       = "chunk_id"
	PayloadTokenCount    = "token_count"
	PayloadPage          = "page"
	PayloadPositionLabel = "position_label"
	PayloadChunkMethod   = "chunk_method"
	PayloadSessionID     = "session_id"
)

// PointStore is the subset of the Qdrant client the gateway needs.
type PointStore interface {
	CreateCollection(ctx context.Context, size int, distance string) error
	DeleteCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []qdrant.Point) error
	Search(ctx context.Context, vector []float32, limit int, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error)
}

type Gateway struct {
	store     PointStore
	vectorDim int
	newID     func() string
}

func NewGateway(store PointStore, vectorDim int) *Gateway {
	return &Gateway{
		store:     store,
		vectorDim: vectorDim,
		newID:     func() string { return uuid.NewString() },
	}
}

// Upload writes one point per chunk under a fresh random id. Chunks are read, never
// modified. Every chunk must carry an embedding of the collection's width.
func (g *Gateway) Upload(ctx context.Context, sessionID string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]qdrant.Point, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d has no embedding", c.ChunkID)
		}
		if g.vectorDim > 0 && len(c.Embedding) != g.vectorDim {
			return fmt.Errorf("chunk %d embedding width %d, collection expects %d", c.ChunkID, len(c.Embedding), g.vectorDim)
		}
		payload := map[string]any{
			PayloadText:          c.Text,
			PayloadChunkID:       c.ChunkID,
			PayloadTokenCount:    c.Tokens,
			PayloadPage:          c.Page,
			PayloadPositionLabel: c.PositionLabel,
			PayloadChunkMethod:   c.Method,
		}
		if sessionID != "" {
			payload[PayloadSessionID] = sessionID
		}
		points = append(points, qdrant.Point{
			ID:      g.newID(),
			Vector:  c.Embedding,
			Payload: payload,
		})
	}
	if err := g.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Query searches with the embedding as given and returns the store's hits unmodified.
func (g *Gateway) Query(ctx context.Context, embedding []float32, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error) {
	hits, err := g.store.Search(ctx, embedding, queryLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// SessionFilter scopes a query to the chunks uploaded by one session.
func SessionFilter(sessionID string) *qdrant.Filter {
	if sessionID == "" {
		return nil
	}
	return qdrant.MatchKeyword(PayloadSessionID, sessionID)
}

// ResetCollection drops the collection, if present, and recreates it empty with cosine
// distance.
func (g *Gateway) ResetCollection(ctx context.Context) error {
	if err := g.store.DeleteCollection(ctx); err != nil && !qdrant.IsNotFound(err) {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := g.store.CreateCollection(ctx, g.vectorDim, qdrant.DistanceCosine); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// PayloadString reads a string payload field from a hit.
func PayloadString(p qdrant.ScoredPoint, key string) string {
	s, _ := p.Payload[key].(string)
	return s
}

// PayloadInt reads a numeric payload field from a hit. JSON numbers decode as float64.
func PayloadInt(p qdrant.ScoredPoint, key string) int {
	switch v := p.Payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
