package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"legalrag/internal/model"
)

const maxUpdateRetries = 8

var ErrUpdateConflict = errors.New("session update conflict")

// RedisSessionStore keeps each session as one JSON value. Updates use WATCH/MULTI so a
// concurrent writer forces a retry instead of a lost update.
type RedisSessionStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

// NewRedisSessionStore returns a store whose keys expire ttl after their last write.
// A non-positive ttl keeps keys without expiry, matching MemorySessionStore.
func NewRedisSessionStore(client *redisv9.Client, ttl time.Duration) *RedisSessionStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Create(ctx context.Context, session *model.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.sessionKey(session.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis create session failed: %w", err)
	}
	if !created {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if err == redisv9.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session failed: %w", err)
	}
	return decodeSession([]byte(raw))
}

func (s *RedisSessionStore) Update(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	key := s.sessionKey(id)
	var result *model.Session

	txf := func(tx *redisv9.Tx) error {
		result = nil
		raw, err := tx.Get(ctx, key).Result()
		if err == redisv9.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis get session failed: %w", err)
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = session
		return nil
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redisv9.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrUpdateConflict
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return fmt.Sprintf("legalrag:session:%s", id)
}
