package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"trivia-service/internal/domain"
	"trivia-service/internal/fanout"
	"trivia-service/internal/game"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/question"
)

func testActivities() []domain.Activity {
	var pool []domain.Activity
	for i := int64(1); i <= 9; i++ {
		pool = append(pool, domain.Activity{
			ID:          fmt.Sprintf("act-%d", i),
			Description: fmt.Sprintf("Using appliance number %d.", i),
			Cost:        i * 100,
		})
	}
	for i := int64(1); i <= 5; i++ {
		pool = append(pool, domain.Activity{
			ID:          fmt.Sprintf("big-%d", i),
			Description: fmt.Sprintf("Heating variant number %d.", i),
			Cost:        i * 1000,
		})
	}
	return pool
}

func newTestService(t *testing.T) (*GameService, *memory.GameStore) {
	t.Helper()
	log := zap.NewNop()
	store := memory.NewGameStore()
	loader := memory.NewStaticActivityLoader(testActivities())
	repo := memory.NewActivityRepository(loader, time.Minute)
	bank := question.NewBank(repo, log)
	cfg := domain.GameConfig{
		Questions:  2,
		AnswerTime: 40 * time.Millisecond,
		RevealTime: 20 * time.Millisecond,
		Capacity:   4,
		MinPlayers: 2,
	}
	return NewGameService(store, game.NewRegistry(log), bank, fanout.NewManager(log), cfg, log), store
}

func TestCreateJoinStartFlow(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateGame(ctx, "host", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Phase != domain.PhaseLobby {
		t.Fatalf("new lobby in phase %s", session.Phase)
	}
	if len(session.Players) != 1 || session.Players[0].ID != "host" {
		t.Fatalf("creator missing from session: %+v", session.Players)
	}
	if _, ok := store.Get(session.ID); !ok {
		t.Fatalf("lobby not persisted")
	}

	if _, err := svc.Join(ctx, session.ID, "guest", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Start(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Start(ctx, session.ID); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	saved, ok := store.Get(session.ID)
	if !ok {
		t.Fatalf("started session not persisted")
	}
	if saved.Phase == domain.PhaseLobby {
		t.Fatalf("persisted session still shows the lobby")
	}
}

func TestJoinEnforcesCapacity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateGame(ctx, "host", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Join(ctx, session.ID, fmt.Sprintf("p%d", i), "player"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if _, err := svc.Join(ctx, session.ID, "overflow", "late"); !errors.Is(err, domain.ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
}

func TestOperationsOnUnknownGame(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Join(ctx, "nope", "p1", "x"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("join: expected ErrGameNotFound, got %v", err)
	}
	if err := svc.Start(ctx, "nope"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("start: expected ErrGameNotFound, got %v", err)
	}
	if err := svc.Leave(ctx, "nope", "p1"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("leave: expected ErrGameNotFound, got %v", err)
	}
	if err := svc.SubmitAnswer(ctx, "nope", "p1", domain.Answer{}); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("submit: expected ErrGameNotFound, got %v", err)
	}
	if err := svc.Disband(ctx, "nope"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("disband: expected ErrGameNotFound, got %v", err)
	}
	if _, err := svc.Leaderboard(ctx, "nope"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("leaderboard: expected ErrGameNotFound, got %v", err)
	}
}

func TestLeaveEmptiesAndRetiresLobby(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateGame(ctx, "host", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Leave(ctx, session.ID, "host"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	// retirement runs asynchronously off the terminal transition
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, inStore := store.Get(session.ID)
		_, inRegistry := svc.registry.Get(session.ID)
		if !inStore && !inRegistry {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("emptied lobby was not retired (store=%v registry=%v)", inStore, inRegistry)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLeaveWrongGameKeepsPushChannel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, "host", "Alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := svc.CreateGame(ctx, "other", "Bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ch := fanout.NewChannel()
	svc.Fanout().Register("host", ch)

	// leaving a game the player is not in must not touch their channel
	if err := svc.Leave(ctx, other.ID, "host"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if !svc.Fanout().IsCurrent("host", ch) {
		t.Fatalf("push channel was torn down by a failed leave")
	}
	if !svc.Fanout().Send("host", domain.Event{Type: domain.EventLeaderboard}) {
		t.Fatalf("push channel no longer delivers")
	}
}

func TestDisbandRetiresRunningGame(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateGame(ctx, "host", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "guest", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Start(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Disband(ctx, session.ID); err != nil {
		t.Fatalf("disband: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := svc.registry.Get(session.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("disbanded game still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the finished session stays archived because players remain on record
	saved, ok := store.Get(session.ID)
	if !ok {
		t.Fatalf("disbanded session was not archived")
	}
	if saved.Phase != domain.PhaseFinished {
		t.Fatalf("archived session in phase %s", saved.Phase)
	}
}

func TestFullGamePersistsFinalState(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateGame(ctx, "host", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "guest", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.Start(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	m, ok := svc.registry.Get(session.ID)
	if !ok {
		t.Fatalf("running game missing from registry")
	}
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("game never finished")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		saved, ok := store.Get(session.ID)
		if ok && saved.Phase == domain.PhaseFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("final state never archived")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
