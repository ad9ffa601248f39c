package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trivia-service/internal/domain"
	"trivia-service/internal/fanout"
	"trivia-service/internal/game"
)

// GameStore abstracts how game sessions are stored (in-memory, Redis, etc).
type GameStore interface {
	Save(session *domain.GameSession)
	Get(gameID string) (*domain.GameSession, bool)
	Delete(gameID string)
}

// GameService contains the administrative use cases: create and join
// lobbies, start games, leave, disband, and submit answers. Each maps
// 1:1 onto a state machine or registry operation and returns sentinel
// errors for conflict/not-found outcomes.
type GameService struct {
	store    GameStore
	registry *game.Registry
	bank     game.Bank
	fanout   *fanout.Manager
	cfg      domain.GameConfig
	log      *zap.Logger
}

func NewGameService(store GameStore, registry *game.Registry, bank game.Bank, fm *fanout.Manager, cfg domain.GameConfig, log *zap.Logger) *GameService {
	return &GameService{
		store:    store,
		registry: registry,
		bank:     bank,
		fanout:   fm,
		cfg:      cfg,
		log:      log,
	}
}

// Fanout exposes the push-channel registry to the transport layer.
func (s *GameService) Fanout() *fanout.Manager { return s.fanout }

// CreateGame opens a new lobby with the creator as its first player.
func (s *GameService) CreateGame(_ context.Context, playerID, nickname string) (*domain.GameSession, error) {
	gameID := uuid.NewString()
	m := game.NewFSM(gameID, s.cfg, s.bank, s.fanout, s.log)
	if err := m.AddPlayer(playerID, nickname); err != nil {
		return nil, err
	}
	s.registry.AddFSM(m)

	session := m.Snapshot()
	s.store.Save(session)
	go s.retireWhenDone(m)

	s.log.Info("lobby created", zap.String("game", gameID), zap.String("host", playerID))
	return session, nil
}

// Join admits a player to an open lobby.
func (s *GameService) Join(_ context.Context, gameID, playerID, nickname string) (*domain.GameSession, error) {
	m, ok := s.registry.Get(gameID)
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	if err := m.AddPlayer(playerID, nickname); err != nil {
		return nil, err
	}
	session := m.Snapshot()
	s.store.Save(session)
	return session, nil
}

// Start launches the game's state machine. Precondition failures are
// surfaced to the initiator; the lobby is left untouched.
func (s *GameService) Start(ctx context.Context, gameID string) error {
	m, ok := s.registry.Get(gameID)
	if !ok {
		return domain.ErrGameNotFound
	}
	if err := m.Start(ctx); err != nil {
		return err
	}
	s.store.Save(m.Snapshot())
	return nil
}

// Leave marks the player abandoned (or removes them from the lobby),
// tears down their push channel, and deletes the session if nobody is
// left.
func (s *GameService) Leave(_ context.Context, gameID, playerID string) error {
	m, ok := s.registry.Get(gameID)
	if !ok {
		return domain.ErrGameNotFound
	}
	if err := m.RemovePlayer(playerID); err != nil {
		return err
	}
	s.fanout.Disconnect(playerID)
	s.store.Save(m.Snapshot())
	return nil
}

// SubmitAnswer records a player's answer for the current question.
func (s *GameService) SubmitAnswer(_ context.Context, gameID, playerID string, ans domain.Answer) error {
	m, ok := s.registry.Get(gameID)
	if !ok {
		return domain.ErrGameNotFound
	}
	return m.SubmitAnswer(playerID, ans)
}

// Disband forces a game to terminate, used for administrative teardown.
func (s *GameService) Disband(_ context.Context, gameID string) error {
	if _, ok := s.registry.Get(gameID); !ok {
		return domain.ErrGameNotFound
	}
	s.registry.StopFSM(gameID)
	return nil
}

// Leaderboard returns the current standings of a game.
func (s *GameService) Leaderboard(_ context.Context, gameID string) (domain.Leaderboard, error) {
	m, ok := s.registry.Get(gameID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrGameNotFound
	}
	return m.Leaderboard(), nil
}

// retireWhenDone archives the final session state and retires the
// machine once it reaches its terminal state.
func (s *GameService) retireWhenDone(m *game.FSM) {
	<-m.Done()
	session := m.Snapshot()
	if len(session.Players) == 0 || allAbandoned(session.Players) {
		// an emptied lobby leaves nothing worth archiving
		s.store.Delete(session.ID)
	} else {
		s.store.Save(session)
	}
	s.registry.RemoveFSM(session.ID)
	s.log.Info("game retired", zap.String("game", session.ID))
}

func allAbandoned(players []domain.Player) bool {
	for _, p := range players {
		if !p.Abandoned {
			return false
		}
	}
	return true
}
