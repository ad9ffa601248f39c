package game

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry is the process-wide table of running state machines, one per
// active game. Start and stop are idempotent at this level: a game that
// is unknown, already running, or not startable yields false rather than
// an error. There is no lock shared across machines, so one game's slow
// round never blocks another's.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*FSM
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		machines: make(map[string]*FSM),
		log:      log,
	}
}

// AddFSM registers a machine under its game id.
func (r *Registry) AddFSM(m *FSM) {
	r.mu.Lock()
	r.machines[m.ID()] = m
	r.mu.Unlock()
}

// RemoveFSM retires a machine, returning it (nil if absent).
func (r *Registry) RemoveFSM(gameID string) *FSM {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines[gameID]
	if !ok {
		return nil
	}
	delete(r.machines, gameID)
	return m
}

// Get looks up a machine by game id.
func (r *Registry) Get(gameID string) (*FSM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[gameID]
	return m, ok
}

// StartFSM launches the machine for a game. It reports false, with no
// side effect, when the game is unknown, already running, or not
// startable.
func (r *Registry) StartFSM(ctx context.Context, gameID string) bool {
	m, ok := r.Get(gameID)
	if !ok {
		r.log.Warn("cannot start: game not registered", zap.String("game", gameID))
		return false
	}
	if m.IsRunning() || !m.Startable() {
		r.log.Warn("cannot start: game running or not startable", zap.String("game", gameID))
		return false
	}
	if err := m.Start(ctx); err != nil {
		r.log.Warn("failed to start game", zap.String("game", gameID), zap.Error(err))
		return false
	}
	return true
}

// StopFSM forces a machine to its terminal state. False when the game is
// unknown or already finished.
func (r *Registry) StopFSM(gameID string) bool {
	m, ok := r.Get(gameID)
	if !ok {
		r.log.Warn("cannot stop: game not registered", zap.String("game", gameID))
		return false
	}
	return m.Stop() == nil
}

// Size reports the registry population, for diagnostics and tests.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}
