package progress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ecoquest-ledger/internal/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testLogger  = slog.New(slog.NewJSONHandler(io.Discard, nil))
	testSession = domain.Session{Token: "token", UserID: "user-1"}
)

// MockLedger is a mock implementation of Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CompleteVideo(ctx context.Context, session domain.Session, videoID string) (domain.LedgerResult, error) {
	args := m.Called(ctx, session, videoID)
	return args.Get(0).(domain.LedgerResult), args.Error(1)
}

func (m *MockLedger) CompleteQuiz(ctx context.Context, session domain.Session, quizID string, score int) (domain.LedgerResult, error) {
	args := m.Called(ctx, session, quizID, score)
	return args.Get(0).(domain.LedgerResult), args.Error(1)
}

func (m *MockLedger) UnlockGame(ctx context.Context, session domain.Session, gameID string, cost int64) (domain.LedgerResult, error) {
	args := m.Called(ctx, session, gameID, cost)
	return args.Get(0).(domain.LedgerResult), args.Error(1)
}

func newStore(t *testing.T, totals domain.Totals) *Store {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.Initialize(totals))
	return store
}

func TestStore_RejectsNegativeTotals(t *testing.T) {
	store := newStore(t, domain.Totals{Coins: 10})

	err := store.Initialize(domain.Totals{Coins: -1})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, domain.Totals{Coins: 10}, store.Read())
}

func TestStore_NotifiesWatchers(t *testing.T) {
	store := NewStore()
	assert.False(t, store.Loaded())

	var seen []domain.Totals
	store.Watch(func(t domain.Totals) { seen = append(seen, t) })

	require.NoError(t, store.Initialize(domain.Totals{Coins: 1}))
	_ = store.Initialize(domain.Totals{Coins: -5})

	assert.True(t, store.Loaded())
	assert.Equal(t, []domain.Totals{{Coins: 1}}, seen)
}

func TestController_SuccessReplacesSnapshot(t *testing.T) {
	ledger := new(MockLedger)
	store := newStore(t, domain.Totals{})
	ctrl := NewController(ledger, store, testSession, testLogger)

	ledger.On("CompleteVideo", mock.Anything, testSession, "video-1").Return(domain.LedgerResult{
		Status:  domain.StatusSuccess,
		Message: "You earned 100 coins!",
		Earned:  domain.Totals{Coins: 100, XP: 100, Badges: 1},
		Totals:  domain.Totals{Coins: 100, XP: 100, Badges: 1},
	}, nil).Once()

	outcome := ctrl.CompleteVideo(context.Background(), "video-1")
	assert.Equal(t, Success, outcome.Kind)
	assert.Equal(t, domain.Totals{Coins: 100, XP: 100, Badges: 1}, store.Read())
	ledger.AssertExpectations(t)
}

func TestController_NonSuccessLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name   string
		result domain.LedgerResult
		err    error
		want   OutcomeKind
	}{
		{"already completed", domain.LedgerResult{Status: domain.StatusAlreadyCompleted, Totals: domain.Totals{Coins: 999}}, nil, AlreadyDone},
		{"already unlocked", domain.LedgerResult{Status: domain.StatusAlreadyUnlocked}, nil, AlreadyDone},
		{"insufficient funds", domain.LedgerResult{Status: domain.StatusInsufficientFunds, Message: "Not enough coins! You need 500 coins."}, nil, InsufficientFunds},
		{"transport error", domain.LedgerResult{}, errors.New("connection refused"), Failure},
		{"unauthorized", domain.LedgerResult{}, domain.ErrUnauthorized, Failure},
		{"already completed error", domain.LedgerResult{}, domain.ErrAlreadyCompleted, AlreadyDone},
		{"negative totals", domain.LedgerResult{Status: domain.StatusSuccess, Totals: domain.Totals{Coins: -1}}, nil, Failure},
		{"unknown status", domain.LedgerResult{Status: "maybe"}, nil, Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := new(MockLedger)
			store := newStore(t, domain.Totals{Coins: 50, XP: 50, Badges: 1})
			ctrl := NewController(ledger, store, testSession, testLogger)

			ledger.On("UnlockGame", mock.Anything, testSession, "flag-quiz", int64(500)).Return(tt.result, tt.err)

			outcome := ctrl.UnlockGame(context.Background(), "flag-quiz", 500)
			assert.Equal(t, tt.want, outcome.Kind)
			assert.Equal(t, domain.Totals{Coins: 50, XP: 50, Badges: 1}, store.Read())
			if tt.want == Failure {
				assert.Error(t, outcome.Err)
			}
		})
	}
}

func TestController_RejectsDuplicateWhileInFlight(t *testing.T) {
	ledger := new(MockLedger)
	store := newStore(t, domain.Totals{})
	ctrl := NewController(ledger, store, testSession, testLogger)

	release := make(chan struct{})
	ledger.On("CompleteQuiz", mock.Anything, testSession, "intro-geography", 3).
		Run(func(mock.Arguments) { <-release }).
		Return(domain.LedgerResult{Status: domain.StatusSuccess, Totals: domain.Totals{Coins: 60, XP: 60, Badges: 1}}, nil).
		Once()

	done := make(chan Outcome)
	go func() { done <- ctrl.CompleteQuiz(context.Background(), "intro-geography", 3) }()

	require.Eventually(t, func() bool {
		return ctrl.InFlight("complete_quiz:intro-geography")
	}, time.Second, time.Millisecond)

	dup := ctrl.CompleteQuiz(context.Background(), "intro-geography", 3)
	assert.Equal(t, Failure, dup.Kind)
	assert.ErrorIs(t, dup.Err, domain.ErrActionInFlight)

	close(release)
	assert.Equal(t, Success, (<-done).Kind)
	assert.False(t, ctrl.InFlight("complete_quiz:intro-geography"))
	ledger.AssertNumberOfCalls(t, "CompleteQuiz", 1)
}

func TestController_ClosedDoesNotApply(t *testing.T) {
	ledger := new(MockLedger)
	store := newStore(t, domain.Totals{})
	ctrl := NewController(ledger, store, testSession, testLogger)

	ledger.On("CompleteVideo", mock.Anything, testSession, "video-1").Return(domain.LedgerResult{
		Status: domain.StatusSuccess,
		Totals: domain.Totals{Coins: 100, XP: 100, Badges: 1},
	}, nil)

	ctrl.Close()
	outcome := ctrl.CompleteVideo(context.Background(), "video-1")
	assert.Equal(t, Success, outcome.Kind)
	assert.Equal(t, domain.Totals{}, store.Read())
}

type fakeSubscription struct {
	calls int
}

func (s *fakeSubscription) Unsubscribe() error {
	s.calls++
	return nil
}

type fakeSubscriber struct {
	onChange func(domain.ProfileChange)
	sub      *fakeSubscription
	err      error
}

func (f *fakeSubscriber) SubscribeToProfileChanges(_ context.Context, _ domain.Session, onChange func(domain.ProfileChange)) (domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.onChange = onChange
	f.sub = &fakeSubscription{}
	return f.sub, nil
}

func int64p(v int64) *int64 { return &v }

func TestListener_OverlaysChangedFields(t *testing.T) {
	store := newStore(t, domain.Totals{Coins: 100, XP: 200, Badges: 3})
	subscriber := &fakeSubscriber{}
	listener := NewListener(subscriber, store, testSession, testLogger)
	require.NoError(t, listener.Start(context.Background()))

	subscriber.onChange(domain.ProfileChange{UserID: "user-1", Coins: int64p(40)})
	assert.Equal(t, domain.Totals{Coins: 40, XP: 200, Badges: 3}, store.Read())

	subscriber.onChange(domain.ProfileChange{UserID: "someone-else", Coins: int64p(1)})
	assert.Equal(t, int64(40), store.Read().Coins)

	subscriber.onChange(domain.ProfileChange{UserID: "user-1", XP: int64p(-5)})
	assert.Equal(t, int64(200), store.Read().XP)
}

func TestListener_StartAndClose(t *testing.T) {
	subscriber := &fakeSubscriber{}
	listener := NewListener(subscriber, NewStore(), testSession, testLogger)

	require.NoError(t, listener.Start(context.Background()))
	assert.Error(t, listener.Start(context.Background()))

	require.NoError(t, listener.Close())
	require.NoError(t, listener.Close())
	assert.Equal(t, 1, subscriber.sub.calls)

	failing := NewListener(&fakeSubscriber{err: domain.ErrUnauthorized}, NewStore(), testSession, testLogger)
	assert.ErrorIs(t, failing.Start(context.Background()), domain.ErrUnauthorized)
}

// ledgerDouble keeps server-side idempotence for one user
type ledgerDouble struct {
	mu        sync.Mutex
	totals    domain.Totals
	completed map[string]bool
	unlocked  map[string]bool
}

func newLedgerDouble(coins int64) *ledgerDouble {
	return &ledgerDouble{
		totals:    domain.Totals{Coins: coins},
		completed: make(map[string]bool),
		unlocked:  make(map[string]bool),
	}
}

func (d *ledgerDouble) CompleteVideo(_ context.Context, _ domain.Session, videoID string) (domain.LedgerResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completed[videoID] {
		return domain.LedgerResult{Status: domain.StatusAlreadyCompleted, Totals: d.totals}, nil
	}
	d.completed[videoID] = true
	d.totals = d.totals.Add(domain.Totals{Coins: 100, XP: 100, Badges: 1})
	return domain.LedgerResult{Status: domain.StatusSuccess, Totals: d.totals}, nil
}

func (d *ledgerDouble) CompleteQuiz(_ context.Context, _ domain.Session, quizID string, score int) (domain.LedgerResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completed[quizID] {
		return domain.LedgerResult{Status: domain.StatusAlreadyCompleted, Totals: d.totals}, nil
	}
	d.completed[quizID] = true
	d.totals = d.totals.Add(domain.Totals{Coins: int64(20 * score), XP: int64(20 * score), Badges: 1})
	return domain.LedgerResult{Status: domain.StatusSuccess, Totals: d.totals}, nil
}

func (d *ledgerDouble) UnlockGame(_ context.Context, _ domain.Session, gameID string, cost int64) (domain.LedgerResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.totals.Coins < cost {
		return domain.LedgerResult{Status: domain.StatusInsufficientFunds, Totals: d.totals}, nil
	}
	if d.unlocked[gameID] {
		return domain.LedgerResult{Status: domain.StatusAlreadyUnlocked, Totals: d.totals}, nil
	}
	d.unlocked[gameID] = true
	d.totals.Coins -= cost
	return domain.LedgerResult{Status: domain.StatusSuccess, Totals: d.totals, RemainingCoins: d.totals.Coins}, nil
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("A new user cannot unlock", func(t *testing.T) {
		store := newStore(t, domain.Totals{})
		ctrl := NewController(newLedgerDouble(0), store, testSession, testLogger)

		assert.Equal(t, InsufficientFunds, ctrl.UnlockGame(ctx, "flag-quiz", 500).Kind)
		assert.Equal(t, int64(0), store.Read().Coins)
	})

	t.Run("B exact balance then repeat", func(t *testing.T) {
		store := newStore(t, domain.Totals{Coins: 500})
		ctrl := NewController(newLedgerDouble(500), store, testSession, testLogger)

		assert.Equal(t, Success, ctrl.UnlockGame(ctx, "flag-quiz", 500).Kind)
		assert.Equal(t, int64(0), store.Read().Coins)
		assert.Equal(t, InsufficientFunds, ctrl.UnlockGame(ctx, "flag-quiz", 500).Kind)
	})

	t.Run("C quiz reward once", func(t *testing.T) {
		store := newStore(t, domain.Totals{})
		ctrl := NewController(newLedgerDouble(0), store, testSession, testLogger)

		outcome := ctrl.CompleteQuiz(ctx, "intro-geography", 3)
		assert.Equal(t, Success, outcome.Kind)
		assert.Equal(t, domain.Totals{Coins: 60, XP: 60, Badges: 1}, store.Read())

		assert.Equal(t, AlreadyDone, ctrl.CompleteQuiz(ctx, "intro-geography", 3).Kind)
		assert.Equal(t, domain.Totals{Coins: 60, XP: 60, Badges: 1}, store.Read())
	})
}

func TestControllerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("repeated video completions grant exactly one reward", prop.ForAll(
		func(n int) bool {
			store := NewStore()
			_ = store.Initialize(domain.Totals{})
			ctrl := NewController(newLedgerDouble(0), store, testSession, testLogger)

			successes := 0
			for i := 0; i < n; i++ {
				if ctrl.CompleteVideo(context.Background(), "video-1").Kind == Success {
					successes++
				}
			}
			return successes == 1 && store.Read() == domain.Totals{Coins: 100, XP: 100, Badges: 1}
		},
		gen.IntRange(1, 20),
	))

	properties.Property("unlock debits exactly once or not at all", prop.ForAll(
		func(coins, cost int64, repeats int) bool {
			store := NewStore()
			_ = store.Initialize(domain.Totals{Coins: coins})
			ctrl := NewController(newLedgerDouble(coins), store, testSession, testLogger)

			for i := 0; i < repeats; i++ {
				ctrl.UnlockGame(context.Background(), "flag-quiz", cost)
			}
			if coins < cost {
				return store.Read().Coins == coins
			}
			return store.Read().Coins == coins-cost
		},
		gen.Int64Range(0, 2000),
		gen.Int64Range(1, 1000),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
