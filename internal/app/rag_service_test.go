package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/model"
	"legalrag/internal/pkg/chunker"
	"legalrag/internal/pkg/pdfextract"
	"legalrag/internal/pkg/pii"
	"legalrag/internal/platform/qdrant"
)

type mapStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	inUpdate bool
}

func newMapStore() *mapStore {
	return &mapStore{sessions: map[string][]byte{}}
}

func (m *mapStore) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = raw
	return nil
}

func (m *mapStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *mapStore) Update(_ context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.load(id)
	if err != nil || s == nil {
		return nil, err
	}
	m.inUpdate = true
	err = fn(s)
	m.inUpdate = false
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = raw
	return s, nil
}

func (m *mapStore) load(id string) (*model.Session, error) {
	raw, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// lockWatchDetector counts Detect calls made while the store is inside Update.
type lockWatchDetector struct {
	inner    pii.Detector
	store    *mapStore
	inUpdate int
}

func (d *lockWatchDetector) Detect(text string) []pii.Finding {
	if d.store.inUpdate {
		d.inUpdate++
	}
	return d.inner.Detect(text)
}

type fakeGateway struct {
	uploaded  []model.Chunk
	sessionID string
	queried   []float32
	filter    *qdrant.Filter
	hits      []qdrant.ScoredPoint
	uploadErr error
	queryErr  error
}

func (f *fakeGateway) Upload(_ context.Context, sessionID string, chunks []model.Chunk) error {
	f.sessionID, f.uploaded = sessionID, chunks
	return f.uploadErr
}

func (f *fakeGateway) Query(_ context.Context, embedding []float32, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error) {
	f.queried, f.filter = embedding, filter
	return f.hits, f.queryErr
}

type fakePublisher struct {
	msgs []model.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeDocuments struct {
	docs []*model.Document
	err  error
}

func (f *fakeDocuments) Create(_ context.Context, doc *model.Document) error {
	f.docs = append(f.docs, doc)
	return f.err
}

type serviceFixture struct {
	svc       *RAGService
	store     *mapStore
	gateway   *fakeGateway
	completer *fakeCompleter
	published *fakePublisher
	documents *fakeDocuments
	detector  *lockWatchDetector
}

func newFixture(t *testing.T, mode string, pages []model.PageText) *serviceFixture {
	t.Helper()
	det, err := pii.NewRegexDetector()
	require.NoError(t, err)
	ch, err := chunker.New(20, chunker.UnitWords, "Sentence")
	require.NoError(t, err)

	f := &serviceFixture{
		store:     newMapStore(),
		gateway:   &fakeGateway{},
		completer: &fakeCompleter{out: "Answer: ok"},
		published: &fakePublisher{},
		documents: &fakeDocuments{},
	}
	f.detector = &lockWatchDetector{inner: det, store: f.store}
	f.svc = NewRAGService(RAGDeps{
		Sessions: f.store,
		Extract: func(data []byte) ([]model.PageText, error) {
			if string(data) == "broken" {
				return nil, fmt.Errorf("%w: bad xref", pdfextract.ErrMalformedPDF)
			}
			return pages, nil
		},
		Detector:    f.detector,
		Chunker:     ch,
		Embedder:    NewEmbedder(wordEmbedder{}, 2),
		Gateway:     f.gateway,
		Generator:   NewAnswerGenerator(f.completer, 512, 0.7),
		ChatMode:    mode,
		Documents:   f.documents,
		Transcripts: f.published,
	})
	return f
}

func TestUploadSanitizesChunksAndStoresDocument(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, []model.PageText{
		{Page: 1, Text: "Tenant: John Doe signs here. Email john@doe.com for notices."},
		{Page: 2, Text: "Rent is due monthly."},
	})
	session, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	res, err := f.svc.Upload(context.Background(), UploadInput{SessionID: session.ID, FileName: "lease.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "Tenant: [PERSON_1] signs here. Email [EMAIL_ADDRESS_1] for notices.", res.Chunks[0])
	assert.Equal(t, "Rent is due monthly.", res.Chunks[1])

	require.Len(t, f.gateway.uploaded, 2)
	assert.Equal(t, session.ID, f.gateway.sessionID)
	assert.NotEmpty(t, f.gateway.uploaded[0].Embedding)
	assert.Equal(t, "John Doe", f.gateway.uploaded[0].MaskMap["PERSON_1"])
	assert.Equal(t, 2, f.gateway.uploaded[1].Page)

	stored, err := f.store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PDF)
	assert.Equal(t, "lease.pdf", stored.PDF.FileName)
	assert.Equal(t, 2, stored.PDF.ChunkCount)
	assert.NotContains(t, stored.PDF.Pages[0].Text, "John Doe")
	assert.Equal(t, "John Doe", stored.Redaction.Masks["PERSON_1"])

	require.Len(t, f.documents.docs, 1)
	assert.Equal(t, 2, f.documents.docs[0].PageCount)
}

func TestUploadScopesMaskMapToChunk(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, []model.PageText{{Page: 1, Text: "Tenant: John Doe signs the lease agreement today " +
		"in the presence of the landlord and witnesses. Notices go to jane@roe.net by certified mail " +
		"from the landlord to every tenant of the building."}})
	session, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), UploadInput{SessionID: session.ID, Data: []byte("%PDF")})
	require.NoError(t, err)

	require.Len(t, f.gateway.uploaded, 2)
	assert.Equal(t, pii.MaskMap{"PERSON_1": "John Doe"}, f.gateway.uploaded[0].MaskMap)
	assert.Equal(t, pii.MaskMap{"EMAIL_ADDRESS_1": "jane@roe.net"}, f.gateway.uploaded[1].MaskMap)
}

func TestDetectionRunsOutsideSessionUpdate(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, []model.PageText{{Page: 1, Text: "Tenant: John Doe pays rent."}})
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.Upload(ctx, UploadInput{SessionID: session.ID, Data: []byte("%PDF")})
	require.NoError(t, err)
	_, err = f.svc.Chat(ctx, ChatInput{SessionID: session.ID, Message: "When does John Doe pay?"})
	require.NoError(t, err)

	assert.Zero(t, f.detector.inUpdate)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, []model.PageText{{Page: 1, Text: "  "}})
	session, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.svc.Upload(ctx, UploadInput{SessionID: "", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Upload(ctx, UploadInput{SessionID: "missing", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.Upload(ctx, UploadInput{SessionID: session.ID, Data: []byte("x")})
	assert.ErrorIs(t, err, ErrNoText)

	_, err = f.svc.Upload(ctx, UploadInput{SessionID: session.ID, Data: []byte("broken")})
	assert.ErrorIs(t, err, pdfextract.ErrMalformedPDF)
	assert.False(t, IsRetryable(err))
	assert.True(t, IsClientError(err))
}

func TestUploadStoreFailureIsStageError(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, []model.PageText{{Page: 1, Text: "Some text."}})
	f.gateway.uploadErr = &qdrant.OperationError{Code: qdrant.OperationErrorTransportFailed}
	session, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), UploadInput{SessionID: session.ID, Data: []byte("%PDF")})

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageStore, se.Stage)
	assert.True(t, se.Retryable)
}

func TestChatAnswersWithRestoredPlaceholders(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, []model.PageText{
		{Page: 1, Text: "Tenant: John Doe pays rent monthly."},
	})
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, UploadInput{SessionID: session.ID, Data: []byte("%PDF")})
	require.NoError(t, err)

	f.gateway.hits = []qdrant.ScoredPoint{
		{ID: json.RawMessage(`"p1"`), Score: 0.8, Payload: map[string]any{
			"text": "Tenant: [PERSON_1] pays rent monthly.", "page": float64(1),
		}},
	}
	f.completer.out = "Answer: [PERSON_1] pays monthly."

	res, err := f.svc.Chat(ctx, ChatInput{SessionID: session.ID, Message: "How often does John Doe pay?"})
	require.NoError(t, err)

	assert.Equal(t, "John Doe pays monthly.", res.Reply)
	assert.Equal(t, []int{1}, res.Pages)
	assert.Empty(t, res.Notice)

	prompt := f.completer.messages[0].Content
	assert.Contains(t, prompt, "Question: How often does [PERSON_1] pay?")
	assert.NotContains(t, prompt, "John Doe")
	assert.Len(t, f.gateway.queried, len(strings.Fields("How often does [PERSON_1] pay?")))
	require.NotNil(t, f.gateway.filter)
	assert.Equal(t, session.ID, f.gateway.filter.Must[0].Match.Value)

	history, err := f.svc.History(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ChatRecord{
		{Role: model.RoleUser, Content: "How often does John Doe pay?"},
		{Role: model.RoleAssistant, Content: "John Doe pays monthly."},
	}, history)

	require.Len(t, f.published.msgs, 2)
	for _, m := range f.published.msgs {
		assert.NotContains(t, m.Content, "John Doe")
		assert.Equal(t, session.ID, m.SessionID)
	}
}

func TestChatEchoMode(t *testing.T) {
	f := newFixture(t, ChatModeEcho, []model.PageText{{Page: 1, Text: "A."}, {Page: 2, Text: "B."}})
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	res, err := f.svc.Chat(ctx, ChatInput{SessionID: session.ID, Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Bot: You said 'hello'", res.Reply)

	_, err = f.svc.Upload(ctx, UploadInput{SessionID: session.ID, Data: []byte("%PDF")})
	require.NoError(t, err)

	res, err = f.svc.Chat(ctx, ChatInput{SessionID: session.ID, Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Bot: You said 'hello' (PDF loaded with 2 pages)", res.Reply)
	assert.Nil(t, f.completer.messages)
	assert.Nil(t, f.gateway.queried)
}

func TestChatErrors(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, nil)
	ctx := context.Background()

	_, err := f.svc.Chat(ctx, ChatInput{SessionID: "s", Message: "  "})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = f.svc.Chat(ctx, ChatInput{SessionID: "missing", Message: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)
	f.completer.err = errors.New("model down")

	_, err = f.svc.Chat(ctx, ChatInput{SessionID: session.ID, Message: "hi"})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageGenerate, se.Stage)
	assert.False(t, se.Retryable)
}

func TestHistoryOfNewSessionIsEmpty(t *testing.T) {
	f := newFixture(t, ChatModeAnswer, nil)
	session, err := f.svc.CreateSession(context.Background())
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), session.ID)

	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)
}
