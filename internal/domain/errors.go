package domain

import "errors"

var (
	// ErrGameNotFound is returned when no session exists for a game id.
	ErrGameNotFound = errors.New("game not found")
	// ErrPlayerNotFound is returned when a player is not (or no longer) in the game.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrAlreadyRunning is returned by Start on a running machine.
	ErrAlreadyRunning = errors.New("game already running")
	// ErrNotStartable is returned when the lobby preconditions are unmet.
	ErrNotStartable = errors.New("game is not startable")
	// ErrGameFull is returned when a join would exceed capacity.
	ErrGameFull = errors.New("game is at capacity")
	// ErrGameFinished is returned for operations on a terminal session.
	ErrGameFinished = errors.New("game already finished")
	// ErrAnswerWindowClosed rejects submissions outside the active question window.
	ErrAnswerWindowClosed = errors.New("answer window is closed")
	// ErrNoAnswers signals a nil answer set handed to the scoring engine.
	ErrNoAnswers = errors.New("no answers given")
	// ErrAnswerLength rejects submissions whose activity count does not
	// match what the question variant demands.
	ErrAnswerLength = errors.New("answer has wrong number of activities")
	// ErrNotEnoughActivities indicates the pool cannot support the
	// requested number of distinct questions.
	ErrNotEnoughActivities = errors.New("not enough activities to generate questions")
)
