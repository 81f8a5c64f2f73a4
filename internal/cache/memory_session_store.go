package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"legalrag/internal/model"
)

// MemorySessionStore keeps sessions in process memory. Sessions are stored as JSON so
// callers never share mutable state with the store.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// NewMemorySessionStore returns a store whose entries expire ttl after their last write.
// A non-positive ttl keeps entries forever.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, session *model.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.load(session.ID); ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return s.save(session)
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.load(id)
	if !ok {
		return nil, nil
	}
	return decodeSession(entry.raw)
}

func (s *MemorySessionStore) Update(_ context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.load(id)
	if !ok {
		return nil, nil
	}
	session, err := decodeSession(entry.raw)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Ping satisfies the health check contract shared with the Redis store.
func (s *MemorySessionStore) Ping(context.Context) error {
	return nil
}

// load must be called with mu held. Expired entries are dropped on access.
func (s *MemorySessionStore) load(id string) (memoryEntry, bool) {
	entry, ok := s.sessions[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.sessions, id)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemorySessionStore) save(session *model.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	entry := memoryEntry{raw: raw}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.sessions[session.ID] = entry
	return nil
}

func decodeSession(raw []byte) (*model.Session, error) {
	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &session, nil
}
