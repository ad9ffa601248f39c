package domain

import (
	"sort"
	"time"
)

// Activity is a single reference action with a known energy cost.
// Activities are the raw material questions are generated from.
type Activity struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Cost        int64  `json:"cost"` // watt-hours
	IconID      string `json:"iconId,omitempty"`
}

// Answer is a player's submission for one question. Choice carries a
// single activity for multiple-choice and estimate questions, and a full
// arrangement for match and order questions.
type Answer struct {
	QuestionID string     `json:"questionId"`
	Choice     []Activity `json:"choice"`
}

// Player is a participant in a game session. Abandoned is set (never
// unset) when a player leaves mid-game; their historical score is kept.
type Player struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Abandoned bool   `json:"abandoned"`
}

// Phase is the lifecycle stage of a game session.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseQuestionActive Phase = "question_active"
	PhaseReveal         Phase = "reveal"
	PhaseFinished       Phase = "finished"
)

// GameConfig holds the per-game tunables.
type GameConfig struct {
	Questions  int           `json:"questions"`
	AnswerTime time.Duration `json:"answerTime"`
	RevealTime time.Duration `json:"revealTime"`
	Capacity   int           `json:"capacity"`
	MinPlayers int           `json:"minPlayers"`
}

// GameSession is the persistent aggregate of one game: identity,
// participants, configuration and cumulative state. It is mutated by the
// state machine only.
type GameSession struct {
	ID              string             `json:"id"`
	Players         []Player           `json:"players"`
	Config          GameConfig         `json:"config"`
	Phase           Phase              `json:"phase"`
	QuestionIndex   int                `json:"questionIndex"`
	Scores          map[string]float64 `json:"scores"`
	UsedActivityIDs []string           `json:"usedActivityIds,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// LeaderboardEntry is a ranked view of one player's cumulative score.
type LeaderboardEntry struct {
	PlayerID string  `json:"playerId"`
	Nickname string  `json:"nickname"`
	Score    float64 `json:"score"`
}

// Leaderboard captures the ordered standings of a game session.
type Leaderboard struct {
	GameID    string             `json:"gameId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// RankEntries sorts entries by score descending, breaking ties by nickname.
func RankEntries(entries []LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Nickname < entries[j].Nickname
	})
}
