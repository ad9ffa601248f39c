package memory

import (
	"sync"

	"trivia-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameStore.
type GameStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.GameSession
}

func NewGameStore() *GameStore {
	return &GameStore{
		sessions: make(map[string]*domain.GameSession),
	}
}

func (s *GameStore) Save(session *domain.GameSession) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
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
}
