package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ecoquest-ledger/internal/domain"
)

// Ledger is the set of reward calls the controller makes
type Ledger interface {
	CompleteVideo(ctx context.Context, session domain.Session, videoID string) (domain.LedgerResult, error)
	CompleteQuiz(ctx context.Context, session domain.Session, quizID string, score int) (domain.LedgerResult, error)
	UnlockGame(ctx context.Context, session domain.Session, gameID string, cost int64) (domain.LedgerResult, error)
}

// Controller sends reward actions to the ledger and applies successful
// answers to the store. At most one call per action key is outstanding.
type Controller struct {
	ledger  Ledger
	store   *Store
	session domain.Session
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
}

// NewController creates a controller for one session
func NewController(ledger Ledger, store *Store, session domain.Session, logger *slog.Logger) *Controller {
	return &Controller{
		ledger:   ledger,
		store:    store,
		session:  session,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// CompleteVideo claims the reward for a watched video
func (c *Controller) CompleteVideo(ctx context.Context, videoID string) Outcome {
	return c.run("complete_video:"+videoID, func() (domain.LedgerResult, error) {
		return c.ledger.CompleteVideo(ctx, c.session, videoID)
	})
}

// CompleteQuiz claims the reward for a finished quiz or game
func (c *Controller) CompleteQuiz(ctx context.Context, quizID string, score int) Outcome {
	return c.run("complete_quiz:"+quizID, func() (domain.LedgerResult, error) {
		return c.ledger.CompleteQuiz(ctx, c.session, quizID, score)
	})
}

// UnlockGame spends coins on a game
func (c *Controller) UnlockGame(ctx context.Context, gameID string, cost int64) Outcome {
	return c.run("unlock_game:"+gameID, func() (domain.LedgerResult, error) {
		return c.ledger.UnlockGame(ctx, c.session, gameID, cost)
	})
}

// InFlight reports whether a call for the action key is outstanding. Views
// use it to disable the triggering control.
func (c *Controller) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[key]
	return ok
}

// Close detaches the controller from the store. Calls still outstanding
// return their outcome but no longer apply it.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Controller) run(key string, call func() (domain.LedgerResult, error)) Outcome {
	c.mu.Lock()
	if _, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		return failure(domain.ErrActionInFlight)
	}
	c.inFlight[key] = struct{}{}
	c.mu.Unlock()

	outcome := classify(call())

	c.mu.Lock()
	delete(c.inFlight, key)
	closed := c.closed
	c.mu.Unlock()

	if outcome.Kind == Success && !closed {
		if err := c.store.Initialize(outcome.Totals); err != nil {
			outcome = failure(err)
		}
	}

	if outcome.Kind == Failure {
		c.logger.Warn("reward action failed", "user_id", c.session.UserID, "action", key, "error", outcome.Err)
	} else {
		c.logger.Debug("reward action answered", "user_id", c.session.UserID, "action", key, "outcome", outcome.Kind.String())
	}
	return outcome
}
