package game

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"trivia-service/internal/domain"
)

// Bank supplies readily-scoreable questions, excluding activities that
// were already used. It fails when the pool cannot support n distinct
// questions.
type Bank interface {
	Provide(ctx context.Context, n int, excludeIDs []string) ([]domain.Question, error)
}

// Notifier is the slice of the fanout registry the machine pushes
// through. Sends are fire-and-forget: a failed delivery to one player
// never aborts a phase transition.
type Notifier interface {
	Send(playerID string, e domain.Event) bool
	SendMany(playerIDs []string, e domain.Event) bool
}

// FSM drives one game session through its lobby, timed question/reveal
// rounds, and terminal state. Phase timeouts are scheduled once per phase
// entry as deferred callbacks carrying the epoch (a monotonic transition
// counter); a callback whose epoch is stale is a no-op, which makes
// cancelled timers and races with Stop harmless.
type FSM struct {
	id       string
	cfg      domain.GameConfig
	bank     Bank
	notifier Notifier
	log      *zap.Logger

	mu        sync.Mutex
	phase     domain.Phase
	epoch     uint64
	running   bool
	players   map[string]*domain.Player
	order     []string
	scores    map[string]float64
	questions []domain.Question
	qIndex    int
	collector *Collector
	timer     *time.Timer
	createdAt time.Time
	done      chan struct{}
}

func NewFSM(id string, cfg domain.GameConfig, bank Bank, notifier Notifier, log *zap.Logger) *FSM {
	return &FSM{
		id:        id,
		cfg:       cfg,
		bank:      bank,
		notifier:  notifier,
		log:       log.With(zap.String("game", id)),
		phase:     domain.PhaseLobby,
		players:   make(map[string]*domain.Player),
		scores:    make(map[string]float64),
		qIndex:    -1,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the game identifier.
func (m *FSM) ID() string { return m.id }

// Done is closed when the session reaches its terminal state.
func (m *FSM) Done() <-chan struct{} { return m.done }

// Phase reports the current lifecycle stage.
func (m *FSM) Phase() domain.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// IsRunning reports whether phase advancement is in progress.
func (m *FSM) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Startable reports whether the lobby satisfies the start preconditions.
func (m *FSM) Startable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == domain.PhaseLobby && m.activeCountLocked() >= m.cfg.MinPlayers
}

// AddPlayer admits a player while the lobby is open, enforcing capacity.
// A rejoining player just refreshes their nickname.
func (m *FSM) AddPlayer(playerID, nickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != domain.PhaseLobby || m.running {
		return domain.ErrAlreadyRunning
	}
	if p, ok := m.players[playerID]; ok {
		p.Nickname = nickname
		return nil
	}
	if m.cfg.Capacity > 0 && m.activeCountLocked() >= m.cfg.Capacity {
		return domain.ErrGameFull
	}
	m.players[playerID] = &domain.Player{ID: playerID, Nickname: nickname}
	m.order = append(m.order, playerID)
	return nil
}

// Start validates the lobby, fetches the question set, and launches the
// round-advancement loop. It is non-blocking: the loop itself executes on
// timer callbacks. A re-invocation fails with ErrAlreadyRunning; unmet
// preconditions (including an exhausted activity pool) leave the session
// in the lobby and are surfaced to the initiator.
func (m *FSM) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if m.phase != domain.PhaseLobby {
		m.mu.Unlock()
		return domain.ErrNotStartable
	}
	if m.activeCountLocked() < m.cfg.MinPlayers {
		m.mu.Unlock()
		return domain.ErrNotStartable
	}
	used := m.usedActivityIDsLocked()
	m.mu.Unlock()

	// Question generation talks to the activity repository; keep it
	// outside the state lock.
	questions, err := m.bank.Provide(ctx, m.cfg.Questions, used)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return domain.ErrAlreadyRunning
	}
	if m.phase != domain.PhaseLobby {
		return domain.ErrNotStartable
	}
	m.questions = questions
	m.running = true
	m.epoch++
	epoch := m.epoch

	m.log.Info("game starting",
		zap.Int("players", m.activeCountLocked()),
		zap.Int("questions", len(questions)))

	go m.openQuestion(epoch)
	return nil
}

// openQuestion transitions into QUESTION_ACTIVE, or finalizes when the
// question count is exhausted. Timer-driven after the first invocation.
func (m *FSM) openQuestion(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.phase == domain.PhaseFinished {
		m.mu.Unlock()
		return
	}

	if m.qIndex+1 >= len(m.questions) {
		m.finishLocked()
		return
	}

	m.qIndex++
	m.collector = NewCollector()
	m.phase = domain.PhaseQuestionActive
	m.epoch++
	next := m.epoch

	index := m.qIndex
	q := m.questions[index]
	targets := m.activeIDsLocked()
	m.timer = time.AfterFunc(m.cfg.AnswerTime, func() { m.reveal(next) })

	m.log.Debug("question opened", zap.Int("index", index), zap.String("kind", string(q.Kind)))
	m.mu.Unlock()

	m.notifier.SendMany(targets, domain.Event{
		Type: domain.EventQuestionStart,
		Payload: domain.QuestionStartPayload{
			Question: q.Public(),
			Index:    index,
			Duration: m.cfg.AnswerTime,
		},
	})
}

// reveal closes the answer window, grades the round, merges the score
// delta, and broadcasts the correct answer with updated standings.
func (m *FSM) reveal(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.phase != domain.PhaseQuestionActive {
		m.mu.Unlock()
		return
	}

	m.collector.Close()
	answers := m.collector.Snapshot()
	q := m.questions[m.qIndex]

	delta, err := Score(q, answers)
	if err != nil {
		// A malformed round is contained: the round scores zero and the
		// session loop keeps going.
		m.log.Error("scoring failed", zap.Int("index", m.qIndex), zap.Error(err))
		delta = make(map[string]float64)
	}
	for playerID, credit := range delta {
		m.scores[playerID] += credit
	}

	m.phase = domain.PhaseReveal
	m.epoch++
	next := m.epoch

	targets := m.activeIDsLocked()
	leaderboard := m.leaderboardLocked()
	m.timer = time.AfterFunc(m.cfg.RevealTime, func() { m.openQuestion(next) })

	m.log.Debug("answers revealed", zap.Int("index", m.qIndex), zap.Int("answered", len(answers)))
	m.mu.Unlock()

	m.notifier.SendMany(targets, domain.Event{
		Type: domain.EventQuestionReveal,
		Payload: domain.QuestionRevealPayload{
			QuestionID: q.ID,
			Correct:    q.CorrectAnswer(),
			Scores:     delta,
		},
	})
	m.notifier.SendMany(targets, domain.Event{
		Type:    domain.EventLeaderboard,
		Payload: leaderboard,
	})
}

// SubmitAnswer records a player's answer for the current question. It is
// accepted only during QUESTION_ACTIVE; otherwise the caller gets
// ErrAnswerWindowClosed. Wrong submission arity is rejected with
// ErrAnswerLength before it ever reaches the collector.
func (m *FSM) SubmitAnswer(playerID string, ans domain.Answer) error {
	m.mu.Lock()
	if m.phase != domain.PhaseQuestionActive {
		m.mu.Unlock()
		return domain.ErrAnswerWindowClosed
	}
	p, ok := m.players[playerID]
	if !ok || p.Abandoned {
		m.mu.Unlock()
		return domain.ErrPlayerNotFound
	}
	q := m.questions[m.qIndex]
	if len(ans.Choice) != q.ChoiceSize() {
		m.mu.Unlock()
		return domain.ErrAnswerLength
	}
	if ans.QuestionID != "" && ans.QuestionID != q.ID {
		// submission for a previous round raced the transition
		m.mu.Unlock()
		return domain.ErrAnswerWindowClosed
	}
	collector := m.collector
	m.mu.Unlock()

	// The collector serializes concurrent submissions itself; a close
	// racing us is reported as a rejected late submission.
	return collector.Submit(playerID, ans)
}

// RemovePlayer marks a player abandoned and tells the remaining players.
// The player's historical score is retained. Removing the last active
// player forces the session to its terminal state exactly once.
func (m *FSM) RemovePlayer(playerID string) error {
	m.mu.Lock()
	p, ok := m.players[playerID]
	if !ok || p.Abandoned {
		m.mu.Unlock()
		return domain.ErrPlayerNotFound
	}
	p.Abandoned = true
	targets := m.activeIDsLocked()

	if len(targets) == 0 && m.phase != domain.PhaseFinished {
		m.log.Info("last player left, finishing game")
		m.finishLocked()
		return nil
	}
	m.mu.Unlock()

	m.notifier.SendMany(targets, domain.Event{
		Type:    domain.EventPlayerLeft,
		Payload: domain.PlayerLeftPayload{PlayerID: playerID},
	})
	return nil
}

// Stop forces immediate termination from any non-terminal state.
func (m *FSM) Stop() error {
	m.mu.Lock()
	if m.phase == domain.PhaseFinished {
		m.mu.Unlock()
		return domain.ErrGameFinished
	}
	m.log.Info("game stopped", zap.String("phase", string(m.phase)))
	m.finishLocked()
	return nil
}

// finishLocked performs the terminal transition. The epoch bump prevents
// any scheduled callback from mutating state afterwards. Callers hold
// m.mu; the lock is released here because the final broadcast happens
// outside it.
func (m *FSM) finishLocked() {
	if m.phase == domain.PhaseFinished {
		m.mu.Unlock()
		return
	}
	m.phase = domain.PhaseFinished
	m.running = false
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
	}
	targets := m.activeIDsLocked()
	standings := m.leaderboardLocked().Entries
	close(m.done)
	m.log.Info("game finished", zap.Int("rounds", m.qIndex+1))
	m.mu.Unlock()

	m.notifier.SendMany(targets, domain.Event{
		Type:    domain.EventGameEnd,
		Payload: domain.GameEndPayload{Standings: standings},
	})
}

// Snapshot returns the session aggregate for persistence.
func (m *FSM) Snapshot() *domain.GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	players := make([]domain.Player, 0, len(m.order))
	for _, playerID := range m.order {
		players = append(players, *m.players[playerID])
	}
	scores := make(map[string]float64, len(m.scores))
	for playerID, score := range m.scores {
		scores[playerID] = score
	}
	return &domain.GameSession{
		ID:              m.id,
		Players:         players,
		Config:          m.cfg,
		Phase:           m.phase,
		QuestionIndex:   m.qIndex,
		Scores:          scores,
		UsedActivityIDs: m.usedActivityIDsLocked(),
		CreatedAt:       m.createdAt,
	}
}

// Leaderboard returns the current standings of non-abandoned players.
func (m *FSM) Leaderboard() domain.Leaderboard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaderboardLocked()
}

func (m *FSM) leaderboardLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(m.order))
	for _, playerID := range m.order {
		p := m.players[playerID]
		if p.Abandoned {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Nickname: p.Nickname,
			Score:    m.scores[p.ID],
		})
	}
	domain.RankEntries(entries)
	return domain.Leaderboard{
		GameID:    m.id,
		Entries:   entries,
		UpdatedAt: time.Now(),
	}
}

func (m *FSM) activeCountLocked() int {
	count := 0
	for _, p := range m.players {
		if !p.Abandoned {
			count++
		}
	}
	return count
}

func (m *FSM) activeIDsLocked() []string {
	ids := make([]string, 0, len(m.order))
	for _, playerID := range m.order {
		if !m.players[playerID].Abandoned {
			ids = append(ids, playerID)
		}
	}
	return ids
}

func (m *FSM) usedActivityIDsLocked() []string {
	var ids []string
	for _, q := range m.questions {
		for _, a := range q.Activities {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
