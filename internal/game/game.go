// Package game runs the local mini-game sessions. Sessions hold only local
// state; a finished session reports its score once through its completion
// callback.
package game

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/ecoquest-ledger/internal/progress"
)

var (
	ErrUnknownItem       = errors.New("unknown item")
	ErrGameComplete      = errors.New("game is complete")
	ErrResolutionPending = errors.New("two cards are waiting to be resolved")
	ErrCardUnavailable   = errors.New("card is not face down")
	ErrInvalidAnswer     = errors.New("answer option out of range")
)

// Shuffler permutes n elements through swap, like rand.Shuffle
type Shuffler func(n int, swap func(i, j int))

// DefaultShuffler uses the global random source
func DefaultShuffler() Shuffler {
	return rand.Shuffle
}

// Result is the final state of a session
type Result struct {
	GameID   string
	Score    int
	Attempts int
	Accuracy int
}

// Claimer sends a finished session's score to the ledger
type Claimer interface {
	CompleteQuiz(ctx context.Context, quizID string, score int) progress.Outcome
}

// ClaimOnComplete returns a completion callback that claims the session's
// reward and hands the outcome to report.
func ClaimOnComplete(ctx context.Context, c Claimer, report func(Result, progress.Outcome)) func(Result) {
	return func(r Result) {
		outcome := c.CompleteQuiz(ctx, r.GameID, r.Score)
		if report != nil {
			report(r, outcome)
		}
	}
}
