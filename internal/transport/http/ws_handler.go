package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/fanout"
)

// WSHandler upgrades HTTP requests to websockets and wires each
// connection into the game use cases. Inbound messages are dispatched
// through an explicit table built once at construction; there is no
// reflective handler discovery.
type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
	handlers map[string]inboundHandler
	log      *zap.Logger
}

// wsSession is the per-connection context passed to every inbound
// handler; it replaces any notion of a process-wide "current game/user".
type wsSession struct {
	gameID   string
	playerID string
}

type inboundHandler func(ctx context.Context, sess *wsSession, payload json.RawMessage) error

func NewWSHandler(service *app.GameService, log *zap.Logger) *WSHandler {
	h := &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
	h.handlers = map[string]inboundHandler{
		"start":   h.handleStart,
		"answer":  h.handleAnswer,
		"disband": h.handleDisband,
	}
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string            `json:"questionId"`
	Choice     []domain.Activity `json:"choice"`
}

// ServeWS upgrades the request, joins (or creates) the game, and binds
// the user's push channel to the connection. Re-connecting replaces the
// user's previous channel, so at most one is ever live per user.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	playerID := r.URL.Query().Get("userId")
	nickname := r.URL.Query().Get("name")
	if playerID == "" || nickname == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var session *domain.GameSession
	if gameID == "" {
		session, err = h.service.CreateGame(r.Context(), playerID, nickname)
	} else {
		session, err = h.service.Join(r.Context(), gameID, playerID, nickname)
	}
	if err != nil {
		_ = conn.WriteJSON(domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{Message: err.Error()}})
		return
	}
	sess := &wsSession{gameID: session.ID, playerID: playerID}

	ch := fanout.NewChannel()
	h.service.Fanout().Register(playerID, ch)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range ch.Events() {
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("ws write error", zap.String("player", playerID), zap.Error(err))
				ch.Complete()
				return
			}
		}
		// channel completed (replaced or disconnected): end the session
		_ = conn.Close()
	}()

	h.service.Fanout().Send(playerID, domain.Event{Type: domain.EventJoined, Payload: session})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		handler, ok := h.handlers[inbound.Type]
		if !ok {
			h.sendError(sess, "unsupported message type")
			continue
		}
		if err := handler(r.Context(), sess, inbound.Payload); err != nil {
			h.sendError(sess, err.Error())
		}
	}

	// Leaving on disconnect keeps mid-game quorum accounting honest; an
	// already-finished game just reports the player gone. A channel that
	// is no longer current was replaced by a reconnect, and tearing the
	// player down here would eject them from their own game.
	if h.service.Fanout().IsCurrent(playerID, ch) {
		if err := h.service.Leave(r.Context(), sess.gameID, sess.playerID); err != nil &&
			!errors.Is(err, domain.ErrGameNotFound) && !errors.Is(err, domain.ErrPlayerNotFound) {
			h.log.Debug("leave on disconnect", zap.String("player", playerID), zap.Error(err))
		}
	}
	ch.Complete()
	<-writerDone
}

func (h *WSHandler) handleStart(ctx context.Context, sess *wsSession, _ json.RawMessage) error {
	return h.service.Start(ctx, sess.gameID)
}

func (h *WSHandler) handleAnswer(ctx context.Context, sess *wsSession, payload json.RawMessage) error {
	var p answerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.New("invalid answer payload")
	}
	return h.service.SubmitAnswer(ctx, sess.gameID, sess.playerID, domain.Answer{
		QuestionID: p.QuestionID,
		Choice:     p.Choice,
	})
}

func (h *WSHandler) handleDisband(ctx context.Context, sess *wsSession, _ json.RawMessage) error {
	return h.service.Disband(ctx, sess.gameID)
}

func (h *WSHandler) sendError(sess *wsSession, msg string) {
	h.service.Fanout().Send(sess.playerID, domain.Event{
		Type:    domain.EventError,
		Payload: domain.ErrorPayload{Message: msg},
	})
}
