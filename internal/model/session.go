package model

import (
	"time"

	"legalrag/internal/pkg/pii"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type UploadedDocument struct {
	FileName   string     `json:"file_name"`
	Pages      []PageText `json:"pages"`
	ChunkCount int        `json:"chunk_count"`
}

// Session bundles the chat history, the last uploaded document and the redaction state
// of one browser session. Redaction keeps mask keys stable across uploads and messages.
type Session struct {
	ID        string            `json:"id"`
	Chat      []ChatRecord      `json:"chat"`
	PDF       *UploadedDocument `json:"pdf,omitempty"`
	Redaction pii.State         `json:"redaction"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		Chat:      []ChatRecord{},
		Redaction: pii.NewState(),
		CreatedAt: time.Now(),
	}
}
