package domain

import "time"

// EventType names a push event fanned out to connected clients.
type EventType string

const (
	EventJoined         EventType = "joined"
	EventQuestionStart  EventType = "question_start"
	EventQuestionReveal EventType = "question_reveal"
	EventLeaderboard    EventType = "leaderboard"
	EventPlayerLeft     EventType = "player_left"
	EventGameEnd        EventType = "game_end"
	EventError          EventType = "error"
)

// Event is the envelope pushed over a player's channel.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// QuestionStartPayload carries the answerless question and its countdown.
type QuestionStartPayload struct {
	Question Question      `json:"question"`
	Index    int           `json:"index"`
	Duration time.Duration `json:"duration"`
}

// QuestionRevealPayload carries the correct answer and the fractional
// credit each player earned this round.
type QuestionRevealPayload struct {
	QuestionID string             `json:"questionId"`
	Correct    []Activity         `json:"correct"`
	Scores     map[string]float64 `json:"scores"`
}

// PlayerLeftPayload identifies the departed player.
type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

// GameEndPayload carries the final standings.
type GameEndPayload struct {
	Standings []LeaderboardEntry `json:"standings"`
}

// ErrorPayload carries a user-facing failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}
