package game

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ecoquest-ledger/internal/catalog"
	"github.com/ecoquest-ledger/internal/progress"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) Shuffler {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Shuffle
}

func noShuffle(int, func(i, j int)) {}

type manualScheduler struct {
	pending []func()
	delays  []time.Duration
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) {
	m.delays = append(m.delays, d)
	m.pending = append(m.pending, fn)
}

func (m *manualScheduler) fire() {
	fns := m.pending
	m.pending = nil
	for _, fn := range fns {
		fn()
	}
}

func TestMatchGame_AllCorrect(t *testing.T) {
	var results []Result
	g := NewMatchGame("continent-match", catalog.Continents, seeded(1), func(r Result) { results = append(results, r) })

	for _, item := range catalog.Continents {
		ok, err := g.Attempt(item.ID, item.Target)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.True(t, g.Complete())
	assert.Equal(t, 100, g.Accuracy())
	assert.Equal(t, 600, g.Points())
	require.Len(t, results, 1)
	assert.Equal(t, Result{GameID: "continent-match", Score: 6, Attempts: 6, Accuracy: 100}, results[0])

	_, err := g.Attempt("africa", "africa")
	assert.ErrorIs(t, err, ErrGameComplete)
	assert.Len(t, results, 1)
}

func TestMatchGame_NineAttempts(t *testing.T) {
	g := NewMatchGame("continent-match", catalog.Continents, noShuffle, nil)

	for i := 0; i < 3; i++ {
		ok, err := g.Attempt("africa", "asia")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.False(t, g.Matched("africa"))

	for _, item := range catalog.Continents {
		_, err := g.Attempt(item.ID, item.Target)
		require.NoError(t, err)
	}
	assert.Equal(t, 67, g.Accuracy())
}

func TestMatchGame_LettersUseTargets(t *testing.T) {
	g := NewMatchGame("letter-match", catalog.Letters, noShuffle, nil)

	ok, err := g.Attempt("a", "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Attempt("a", "A")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Attempt("a", "A")
	require.NoError(t, err)
	assert.False(t, ok, "an already matched item scores once")
	assert.Equal(t, 100, g.Points())
}

func TestMatchGame_UnknownItem(t *testing.T) {
	g := NewMatchGame("continent-match", catalog.Continents, noShuffle, nil)

	_, err := g.Attempt("antarctica", "antarctica")
	assert.ErrorIs(t, err, ErrUnknownItem)
	assert.Equal(t, 0, g.Result().Attempts)
	assert.Equal(t, 0, g.Accuracy())
}

func TestMatchGame_ResetShufflesAndClears(t *testing.T) {
	calls := 0
	shuffle := func(n int, swap func(i, j int)) {
		calls++
		swap(0, n-1)
	}
	g := NewMatchGame("continent-match", catalog.Continents, shuffle, nil)
	first := g.Items()[0].ID

	_, err := g.Attempt("asia", "asia")
	require.NoError(t, err)

	g.Reset()
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, first, g.Items()[0].ID)
	assert.False(t, g.Matched("asia"))
	assert.Equal(t, 0, g.Points())
	assert.Equal(t, 0, g.Result().Attempts)
}

func TestMemoryGame_MatchAndMismatch(t *testing.T) {
	sched := &manualScheduler{}
	var results []Result
	g := NewMemoryGame("memory-recap", catalog.MemoryPairs, noShuffle, sched.schedule, func(r Result) { results = append(results, r) })

	// Unshuffled: cards 2i and 2i+1 form pair i
	require.NoError(t, g.Flip(0))
	require.NoError(t, g.Flip(2))
	assert.ErrorIs(t, g.Flip(4), ErrResolutionPending)
	assert.Equal(t, []time.Duration{ResolveDelay}, sched.delays)

	sched.fire()
	cards := g.Cards()
	assert.Equal(t, FaceDown, cards[0].State)
	assert.Equal(t, FaceDown, cards[2].State)
	assert.Equal(t, FaceDown, cards[4].State)

	require.NoError(t, g.Flip(0))
	assert.ErrorIs(t, g.Flip(0), ErrCardUnavailable)
	require.NoError(t, g.Flip(1))
	sched.fire()
	assert.Equal(t, Matched, g.Cards()[0].State)
	assert.Equal(t, 1, g.PairsFound())
	assert.Equal(t, 2, g.Moves())

	for i := 1; i < len(catalog.MemoryPairs); i++ {
		require.NoError(t, g.Flip(2*i))
		require.NoError(t, g.Flip(2*i+1))
		sched.fire()
	}

	assert.True(t, g.Complete())
	require.Len(t, results, 1)
	assert.Equal(t, 6, results[0].Score)
	assert.Equal(t, 7, results[0].Attempts)
	assert.ErrorIs(t, g.Flip(0), ErrGameComplete)

	g.Resolve()
	assert.Len(t, results, 1)
}

func TestMemoryGame_ResetDropsScheduledResolution(t *testing.T) {
	sched := &manualScheduler{}
	g := NewMemoryGame("memory-recap", catalog.MemoryPairs, noShuffle, sched.schedule, nil)

	require.NoError(t, g.Flip(0))
	require.NoError(t, g.Flip(1))
	g.Reset()
	sched.fire()

	assert.Equal(t, 0, g.PairsFound())
	assert.Equal(t, 0, g.Moves())
	for _, c := range g.Cards() {
		assert.Equal(t, FaceDown, c.State)
	}
}

func TestMemoryGame_StaleTimerAfterManualResolve(t *testing.T) {
	sched := &manualScheduler{}
	g := NewMemoryGame("memory-recap", catalog.MemoryPairs, noShuffle, sched.schedule, nil)

	require.NoError(t, g.Flip(0))
	require.NoError(t, g.Flip(2))
	g.Resolve()

	require.NoError(t, g.Flip(0))
	require.NoError(t, g.Flip(1))
	require.Len(t, sched.pending, 2)

	// The first move's timer must not settle the second move
	sched.pending[0]()
	cards := g.Cards()
	assert.Equal(t, FaceUp, cards[0].State)
	assert.Equal(t, FaceUp, cards[1].State)
	assert.Equal(t, 0, g.PairsFound())
	assert.ErrorIs(t, g.Flip(4), ErrResolutionPending)

	sched.pending[1]()
	cards = g.Cards()
	assert.Equal(t, Matched, cards[0].State)
	assert.Equal(t, Matched, cards[1].State)
	assert.Equal(t, 1, g.PairsFound())
	assert.Equal(t, 2, g.Moves())
}

func TestMemoryGame_InvalidCard(t *testing.T) {
	g := NewMemoryGame("memory-recap", catalog.MemoryPairs, nil, (&manualScheduler{}).schedule, nil)
	assert.ErrorIs(t, g.Flip(-1), ErrUnknownItem)
	assert.ErrorIs(t, g.Flip(12), ErrUnknownItem)
	assert.Len(t, g.Cards(), 12)
}

func TestQuizSession(t *testing.T) {
	quiz, ok := catalog.FindQuiz("intro-geography")
	require.True(t, ok)

	var results []Result
	s := NewQuizSession(quiz.ID, quiz.Questions, func(r Result) { results = append(results, r) })

	for {
		q, ok := s.Current()
		if !ok {
			break
		}
		correct, err := s.Answer(q.Answer)
		require.NoError(t, err)
		assert.True(t, correct)
	}

	assert.True(t, s.Complete())
	require.Len(t, results, 1)
	assert.Equal(t, Result{GameID: "intro-geography", Score: 3, Attempts: 3, Accuracy: 100}, results[0])

	_, err := s.Answer(0)
	assert.ErrorIs(t, err, ErrGameComplete)
}

func TestQuizSession_InvalidOption(t *testing.T) {
	s := NewQuizSession("q", []catalog.Question{{Prompt: "?", Options: []string{"a", "b"}, Answer: 1}}, nil)

	_, err := s.Answer(5)
	assert.ErrorIs(t, err, ErrInvalidAnswer)
	answered, total := s.Progress()
	assert.Equal(t, 0, answered)
	assert.Equal(t, 1, total)
}

func TestNewFlagQuiz(t *testing.T) {
	s := NewFlagQuiz(seeded(7), nil)
	_, total := s.Progress()
	assert.Equal(t, catalog.FlagQuizLength, total)

	seen := make(map[string]bool)
	for {
		q, ok := s.Current()
		if !ok {
			break
		}
		assert.False(t, seen[q.Prompt])
		seen[q.Prompt] = true
		_, err := s.Answer(0)
		require.NoError(t, err)
	}
	assert.Len(t, seen, catalog.FlagQuizLength)
}

type recordingClaimer struct {
	calls []Result
}

func (c *recordingClaimer) CompleteQuiz(_ context.Context, quizID string, score int) progress.Outcome {
	c.calls = append(c.calls, Result{GameID: quizID, Score: score})
	return progress.Outcome{Kind: progress.Success}
}

func TestClaimOnComplete(t *testing.T) {
	claimer := &recordingClaimer{}
	var outcomes []progress.Outcome
	onComplete := ClaimOnComplete(context.Background(), claimer, func(_ Result, o progress.Outcome) {
		outcomes = append(outcomes, o)
	})

	g := NewMatchGame("continent-match", catalog.Continents, noShuffle, onComplete)
	for _, item := range catalog.Continents {
		_, err := g.Attempt(item.ID, item.Target)
		require.NoError(t, err)
	}

	require.Len(t, claimer.calls, 1)
	assert.Equal(t, Result{GameID: "continent-match", Score: 6}, claimer.calls[0])
	assert.Len(t, outcomes, 1)
}

func TestMatchGameProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("accuracy stays within 0 and 100 and is 100 only without misses", prop.ForAll(
		func(drops []int) bool {
			g := NewMatchGame("continent-match", catalog.Continents, noShuffle, nil)
			misses := 0
			for _, d := range drops {
				item := catalog.Continents[d%len(catalog.Continents)]
				target := catalog.Continents[(d/len(catalog.Continents))%len(catalog.Continents)].Target
				ok, err := g.Attempt(item.ID, target)
				if err != nil {
					break
				}
				if !ok {
					misses++
				}
			}
			acc := g.Accuracy()
			if acc < 0 || acc > 100 {
				return false
			}
			attempts := g.Result().Attempts
			return attempts == 0 || (acc == 100) == (misses == 0)
		},
		gen.SliceOf(gen.IntRange(0, 35)),
	))

	properties.Property("a wrong drop never changes the matched set", prop.ForAll(
		func(from, to int) bool {
			if from == to {
				return true
			}
			g := NewMatchGame("continent-match", catalog.Continents, noShuffle, nil)
			item := catalog.Continents[from]
			ok, _ := g.Attempt(item.ID, catalog.Continents[to].Target)
			return !ok && !g.Matched(item.ID) && g.Result().Score == 0
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
	))

	properties.Property("memory resolution depends only on the two cards", prop.ForAll(
		func(a, b int) bool {
			if a == b {
				return true
			}
			run := func() CardState {
				sched := &manualScheduler{}
				g := NewMemoryGame("memory-recap", catalog.MemoryPairs, noShuffle, sched.schedule, nil)
				_ = g.Flip(a)
				_ = g.Flip(b)
				sched.fire()
				return g.Cards()[a].State
			}
			first := run()
			want := FaceDown
			if a/2 == b/2 {
				want = Matched
			}
			return first == want && run() == first
		},
		gen.IntRange(0, 11),
		gen.IntRange(0, 11),
	))

	properties.TestingRun(t)
}
