package vectorstore

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/model"
	"legalrag/internal/platform/qdrant"
)

type fakeStore struct {
	upserted    [][]qdrant.Point
	searchVec   []float32
	searchLimit int
	searchFilt  *qdrant.Filter
	hits        []qdrant.ScoredPoint
	err         error
	deleteErr   error
	calls       []string
	createdSize int
	createdDist string
}

func (f *fakeStore) CreateCollection(_ context.Context, size int, distance string) error {
	f.calls = append(f.calls, "create")
	f.createdSize, f.createdDist = size, distance
	return f.err
}

func (f *fakeStore) DeleteCollection(context.Context) error {
	f.calls = append(f.calls, "delete")
	return f.deleteErr
}

func (f *fakeStore) Upsert(_ context.Context, points []qdrant.Point) error {
	f.upserted = append(f.upserted, points)
	return f.err
}

func (f *fakeStore) Search(_ context.Context, vector []float32, limit int, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error) {
	f.searchVec, f.searchLimit, f.searchFilt = vector, limit, filter
	return f.hits, f.err
}

func TestUploadBuildsPayloadPerChunk(t *testing.T) {
	store := &fakeStore{}
	g := NewGateway(store, 2)

	chunks := []model.Chunk{
		{ChunkID: 1, Text: "test", Tokens: 1, Page: 1, PositionLabel: "P1", Method: "Semantic", Embedding: []float32{0.1, 0.2}},
		{ChunkID: 2, Text: "more", Tokens: 1, Page: 2, PositionLabel: "P2", Method: "Semantic", Embedding: []float32{0.3, 0.4}},
	}
	require.NoError(t, g.Upload(context.Background(), "s-1", chunks))

	require.Len(t, store.upserted, 1)
	points := store.upserted[0]
	require.Len(t, points, 2)
	assert.Equal(t, "test", points[0].Payload[PayloadText])
	assert.Equal(t, 1, points[0].Payload[PayloadChunkID])
	assert.Equal(t, 1, points[0].Payload[PayloadTokenCount])
	assert.Equal(t, 1, points[0].Payload[PayloadPage])
	assert.Equal(t, "P1", points[0].Payload[PayloadPositionLabel])
	assert.Equal(t, "Semantic", points[0].Payload[PayloadChunkMethod])
	assert.Equal(t, "s-1", points[0].Payload[PayloadSessionID])
	assert.Equal(t, []float32{0.1, 0.2}, points[0].Vector)
	assert.NotEqual(t, points[0].ID, points[1].ID)
	assert.Len(t, points[0].ID, 36)
}

func TestUploadRejectsMissingOrMisfitEmbeddings(t *testing.T) {
	store := &fakeStore{}
	g := NewGateway(store, 3)

	err := g.Upload(context.Background(), "", []model.Chunk{{ChunkID: 0, Text: "x"}})
	assert.Error(t, err)

	err = g.Upload(context.Background(), "", []model.Chunk{{ChunkID: 0, Text: "x", Embedding: []float32{1}}})
	assert.Error(t, err)
	assert.Empty(t, store.upserted)
}

func TestUploadEmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, NewGateway(store, 2).Upload(context.Background(), "s", nil))
	assert.Empty(t, store.upserted)
}

func TestQueryUsesExactVectorAndFixedLimit(t *testing.T) {
	hits := []qdrant.ScoredPoint{
		{ID: []byte(`"a"`), Score: 0.9, Payload: map[string]any{"text": "x"}},
		{ID: []byte(`"b"`), Score: 0.4},
	}
	store := &fakeStore{hits: hits}
	g := NewGateway(store, 2)

	got, err := g.Query(context.Background(), []float32{0.5, 0.5}, nil)

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, store.searchVec)
	assert.Equal(t, 5, store.searchLimit)
	assert.Nil(t, store.searchFilt)
	assert.Equal(t, hits, got)
}

func TestQueryPassesSessionFilter(t *testing.T) {
	store := &fakeStore{}
	g := NewGateway(store, 2)

	_, err := g.Query(context.Background(), []float32{1, 0}, SessionFilter("s-9"))

	require.NoError(t, err)
	require.NotNil(t, store.searchFilt)
	assert.Equal(t, PayloadSessionID, store.searchFilt.Must[0].Key)
	assert.Equal(t, "s-9", store.searchFilt.Must[0].Match.Value)
	assert.Nil(t, SessionFilter(""))
}

func TestQueryWrapsStoreError(t *testing.T) {
	cause := &qdrant.OperationError{Code: qdrant.OperationErrorTimeout, Operation: "search"}
	g := NewGateway(&fakeStore{err: cause}, 2)

	_, err := g.Query(context.Background(), []float32{1, 0}, nil)

	var opError *qdrant.OperationError
	require.ErrorAs(t, err, &opError)
	assert.True(t, opError.Retryable())
}

func TestResetCollectionDeletesThenCreates(t *testing.T) {
	store := &fakeStore{deleteErr: &qdrant.OperationError{Code: qdrant.OperationErrorQueryFailed, StatusCode: http.StatusNotFound}}
	g := NewGateway(store, 384)

	require.NoError(t, g.ResetCollection(context.Background()))

	assert.Equal(t, []string{"delete", "create"}, store.calls)
	assert.Equal(t, 384, store.createdSize)
	assert.Equal(t, qdrant.DistanceCosine, store.createdDist)
}

func TestResetCollectionFailsOnDeleteError(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("boom")}

	err := NewGateway(store, 384).ResetCollection(context.Background())

	assert.Error(t, err)
	assert.Equal(t, []string{"delete"}, store.calls)
}

func TestPayloadAccessors(t *testing.T) {
	p := qdrant.ScoredPoint{Payload: map[string]any{"text": "t", "page": float64(3)}}
	assert.Equal(t, "t", PayloadString(p, PayloadText))
	assert.Equal(t, 3, PayloadInt(p, PayloadPage))
	assert.Equal(t, 0, PayloadInt(p, PayloadChunkID))
}
