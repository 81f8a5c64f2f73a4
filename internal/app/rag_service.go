package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"legalrag/internal/model"
	"legalrag/internal/pkg/pdfextract"
	"legalrag/internal/pkg/pii"
	"legalrag/internal/platform/logger"
	"legalrag/internal/platform/qdrant"
	"legalrag/internal/vectorstore"
)

// Chat modes. ChatModeAnswer embeds the sanitized message, retrieves the session's
// chunks and generates an answer. ChatModeEcho only returns the templated
// "Bot: You said ..." reply; it makes no embedding, search or generation call.
const (
	ChatModeAnswer = "answer"
	ChatModeEcho   = "echo"
)

// SessionStore holds sessions by id. Get and Update return a nil session and a nil
// error when the id is unknown. Update applies fn atomically with respect to other
// updates of the same session and returns the stored result.
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Update(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
}

type ExtractFunc func(data []byte) ([]model.PageText, error)

type Chunker interface {
	Chunk(pages []model.PageText) []model.Chunk
}

type VectorGateway interface {
	Upload(ctx context.Context, sessionID string, chunks []model.Chunk) error
	Query(ctx context.Context, embedding []float32, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error)
}

type DocumentRecorder interface {
	Create(ctx context.Context, doc *model.Document) error
}

// TranscriptPublisher receives sanitized chat messages for asynchronous persistence.
type TranscriptPublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type RAGDeps struct {
	Log       *logger.Logger
	Sessions  SessionStore
	Extract   ExtractFunc
	Detector  pii.Detector
	Chunker   Chunker
	Embedder  *Embedder
	Gateway   VectorGateway
	Generator *AnswerGenerator
	ChatMode  string
	// Documents and Transcripts are optional.
	Documents   DocumentRecorder
	Transcripts TranscriptPublisher
}

type RAGService struct {
	log         *logger.Logger
	sessions    SessionStore
	extract     ExtractFunc
	detector    pii.Detector
	chunker     Chunker
	embedder    *Embedder
	gateway     VectorGateway
	generator   *AnswerGenerator
	chatMode    string
	documents   DocumentRecorder
	transcripts TranscriptPublisher
}

func NewRAGService(deps RAGDeps) *RAGService {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	mode := strings.ToLower(strings.TrimSpace(deps.ChatMode))
	if mode == "" {
		mode = ChatModeAnswer
	}
	return &RAGService{
		log:         log.With("service", "RAGService"),
		sessions:    deps.Sessions,
		extract:     deps.Extract,
		detector:    deps.Detector,
		chunker:     deps.Chunker,
		embedder:    deps.Embedder,
		gateway:     deps.Gateway,
		generator:   deps.Generator,
		chatMode:    mode,
		documents:   deps.Documents,
		transcripts: deps.Transcripts,
	}
}

func (s *RAGService) CreateSession(ctx context.Context) (*model.Session, error) {
	session := model.NewSession(uuid.NewString())
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Debug("session created", "session_id", session.ID)
	return session, nil
}

type UploadInput struct {
	SessionID string
	FileName  string
	Data      []byte
}

type UploadResult struct {
	Pages  int      `json:"pages"`
	Chunks []string `json:"chunks"`
}

// Upload runs extract, sanitize, chunk, embed and store for one PDF and records it as
// the session's current document.
func (s *RAGService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if strings.TrimSpace(input.SessionID) == "" || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	pages, err := s.extract(input.Data)
	if err != nil {
		return nil, stageErr(StageExtract, err)
	}
	if !pdfextract.HasText(pages) {
		return nil, ErrNoText
	}

	// Detection runs outside the session update; only key allocation needs the lock.
	findings := make([][]pii.Finding, len(pages))
	for i, p := range pages {
		findings[i] = s.detector.Detect(p.Text)
	}

	sanitized := make([]model.PageText, len(pages))
	masks := make(map[int]pii.MaskMap, len(pages))
	if _, err := s.updateSession(ctx, input.SessionID, func(sess *model.Session) error {
		sanitizer := pii.New(s.detector, sess.Redaction)
		for i, p := range pages {
			text, mapping := sanitizer.Apply(p.Text, findings[i])
			sanitized[i] = model.PageText{Page: p.Page, Text: text}
			masks[p.Page] = mapping
		}
		sess.Redaction = sanitizer.State()
		return nil
	}); err != nil {
		return nil, err
	}

	chunks := s.chunker.Chunk(sanitized)
	if len(chunks) == 0 {
		return nil, ErrNoText
	}
	for i := range chunks {
		chunks[i].MaskMap = chunkMasks(chunks[i].Text, masks[chunks[i].Page])
	}

	embedded, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, stageErr(StageEmbed, err)
	}
	if err := s.gateway.Upload(ctx, input.SessionID, embedded); err != nil {
		return nil, stageErr(StageStore, err)
	}

	if _, err := s.updateSession(ctx, input.SessionID, func(sess *model.Session) error {
		sess.PDF = &model.UploadedDocument{
			FileName:   input.FileName,
			Pages:      sanitized,
			ChunkCount: len(chunks),
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.recordDocument(ctx, input, len(pages), len(chunks))
	s.log.Info("document uploaded",
		"session_id", input.SessionID,
		"pages", len(pages),
		"chunks", len(chunks),
	)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return &UploadResult{Pages: len(pages), Chunks: texts}, nil
}

type ChatInput struct {
	SessionID string
	Message   string
}

type ChatResult struct {
	Reply  string `json:"reply"`
	Pages  []int  `json:"pages,omitempty"`
	Notice string `json:"notice,omitempty"`
}

// Chat answers one user message. Only the sanitized message reaches the embedding and
// generation models; placeholders in the answer are restored before it is returned.
func (s *RAGService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, ErrInvalidInput
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrMessageEmpty
	}

	findings := s.detector.Detect(message)
	var sanitizedMessage string
	session, err := s.updateSession(ctx, input.SessionID, func(sess *model.Session) error {
		sanitizer := pii.New(s.detector, sess.Redaction)
		sanitizedMessage, _ = sanitizer.Apply(message, findings)
		sess.Redaction = sanitizer.State()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		result        ChatResult
		sanitizedText string
	)
	switch s.chatMode {
	case ChatModeEcho:
		result.Reply = echoReply(message, session.PDF)
		sanitizedText = echoReply(sanitizedMessage, session.PDF)
	default:
		answer, err := s.answer(ctx, input.SessionID, sanitizedMessage)
		if err != nil {
			return nil, err
		}
		sanitizedText = answer.Text
		result.Reply = pii.New(s.detector, session.Redaction).Restore(answer.Text)
		result.Pages = answer.Pages
		result.Notice = answer.PagesNotice
	}

	if _, err := s.updateSession(ctx, input.SessionID, func(sess *model.Session) error {
		sess.Chat = append(sess.Chat,
			model.ChatRecord{Role: model.RoleUser, Content: message},
			model.ChatRecord{Role: model.RoleAssistant, Content: result.Reply},
		)
		return nil
	}); err != nil {
		return nil, err
	}

	s.publishTranscript(ctx, input.SessionID, model.RoleUser, sanitizedMessage)
	s.publishTranscript(ctx, input.SessionID, model.RoleAssistant, sanitizedText)
	return &result, nil
}

func (s *RAGService) answer(ctx context.Context, sessionID, question string) (Answer, error) {
	vec, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		return Answer{}, stageErr(StageEmbed, err)
	}
	hits, err := s.gateway.Query(ctx, vec, vectorstore.SessionFilter(sessionID))
	if err != nil {
		return Answer{}, stageErr(StageStore, err)
	}

	texts := make([]string, 0, len(hits))
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		text := vectorstore.PayloadString(h, vectorstore.PayloadText)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		sources = append(sources, Source{Text: text, Page: vectorstore.PayloadInt(h, vectorstore.PayloadPage)})
	}

	answer, err := s.generator.Generate(ctx, question, strings.Join(texts, "\n\n"), sources)
	if err != nil {
		return Answer{}, stageErr(StageGenerate, err)
	}
	return answer, nil
}

func (s *RAGService) History(ctx context.Context, sessionID string) ([]model.ChatRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Chat == nil {
		return []model.ChatRecord{}, nil
	}
	return session.Chat, nil
}

func (s *RAGService) updateSession(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	session, err := s.sessions.Update(ctx, id, fn)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *RAGService) recordDocument(ctx context.Context, input UploadInput, pages, chunks int) {
	if s.documents == nil {
		return
	}
	doc := &model.Document{
		SessionID:  input.SessionID,
		FileName:   input.FileName,
		PageCount:  pages,
		ChunkCount: chunks,
		CreatedAt:  time.Now(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		s.log.Warn("record document failed", "session_id", input.SessionID, "error", err)
	}
}

func (s *RAGService) publishTranscript(ctx context.Context, sessionID, role, content string) {
	if s.transcripts == nil {
		return
	}
	msg := model.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.transcripts.Publish(ctx, msg); err != nil {
		s.log.Warn("publish transcript failed", "session_id", sessionID, "role", role, "error", err)
	}
}

// chunkMasks keeps the entries of pageMasks whose placeholder occurs in text.
func chunkMasks(text string, pageMasks pii.MaskMap) pii.MaskMap {
	var out pii.MaskMap
	for key, original := range pageMasks {
		if !strings.Contains(text, "["+key+"]") {
			continue
		}
		if out == nil {
			out = pii.MaskMap{}
		}
		out[key] = original
	}
	return out
}

func echoReply(message string, pdf *model.UploadedDocument) string {
	contextInfo := ""
	if pdf != nil {
		contextInfo = fmt.Sprintf(" (PDF loaded with %d pages)", len(pdf.Pages))
	}
	return fmt.Sprintf("Bot: You said '%s'%s", message, contextInfo)
}

// IsClientError reports errors caused by the request rather than the service.
func IsClientError(err error) bool {
	if errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrNoText) ||
		errors.Is(err, ErrMessageEmpty) {
		return true
	}
	var se *StageError
	return errors.As(err, &se) && se.Stage == StageExtract
}
