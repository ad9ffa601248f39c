package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/domain"
)

// GameStore is a Redis-aware implementation of app.GameStore.
// Notes:
//   - Sessions themselves stay in a local map: the state machine that
//     mutates them is in-process anyway.
//   - Redis marks session liveness, so operators (and sibling instances)
//     can see which games exist and their TTL keeps stale markers from
//     accumulating.
type GameStore struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]*domain.GameSession
}

func NewGameStore(client *redis.Client, ttl time.Duration) *GameStore {
	return &GameStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*domain.GameSession),
	}
}

func (s *GameStore) Save(session *domain.GameSession) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID), string(session.Phase), s.ttl).Err()
}

func (s *GameStore) Get(gameID string) (*domain.GameSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[gameID]
	return session, ok
}

func (s *GameStore) Delete(gameID string) {
	s.mu.Lock()
	delete(s.sessions, gameID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(gameID)).Err()
}

func (s *GameStore) key(gameID string) string {
	return "trivia:game:" + gameID
}
