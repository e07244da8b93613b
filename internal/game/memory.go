package game

import (
	"sync"
	"time"

	"github.com/ecoquest-ledger/internal/catalog"
)

// ResolveDelay is how long two flipped cards stay face up before resolution
const ResolveDelay = 800 * time.Millisecond

// CardState is the face of a memory card
type CardState int

const (
	FaceDown CardState = iota
	FaceUp
	Matched
)

// Card is one memory card. Cards with the same Pair belong together.
type Card struct {
	Face  string
	Pair  int
	State CardState
}

// Scheduler runs fn once after d
type Scheduler func(d time.Duration, fn func())

// AfterFunc schedules on a timer
func AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// MemoryGame is a memory-pair session
type MemoryGame struct {
	mu         sync.Mutex
	gameID     string
	pairs      []catalog.Pair
	cards      []Card
	pending    []int
	found      int
	moves      int
	seq        int // bumped per move and per deal; a stale timer carries an old value
	complete   bool
	shuffle    Shuffler
	schedule   Scheduler
	onComplete func(Result)
}

// NewMemoryGame deals a shuffled board of two cards per pair
func NewMemoryGame(gameID string, pairs []catalog.Pair, shuffle Shuffler, schedule Scheduler, onComplete func(Result)) *MemoryGame {
	if shuffle == nil {
		shuffle = DefaultShuffler()
	}
	if schedule == nil {
		schedule = AfterFunc
	}
	g := &MemoryGame{
		gameID:     gameID,
		pairs:      append([]catalog.Pair(nil), pairs...),
		shuffle:    shuffle,
		schedule:   schedule,
		onComplete: onComplete,
	}
	g.deal()
	return g
}

// Flip turns card i face up. The second flip of a move schedules resolution;
// a third flip before that is rejected.
func (g *MemoryGame) Flip(i int) error {
	g.mu.Lock()
	switch {
	case g.complete:
		g.mu.Unlock()
		return ErrGameComplete
	case len(g.pending) == 2:
		g.mu.Unlock()
		return ErrResolutionPending
	case i < 0 || i >= len(g.cards):
		g.mu.Unlock()
		return ErrUnknownItem
	case g.cards[i].State != FaceDown:
		g.mu.Unlock()
		return ErrCardUnavailable
	}

	g.cards[i].State = FaceUp
	g.pending = append(g.pending, i)
	second := len(g.pending) == 2
	if second {
		g.moves++
		g.seq++
	}
	seq := g.seq
	g.mu.Unlock()

	if second {
		g.schedule(ResolveDelay, func() { g.resolve(seq) })
	}
	return nil
}

// Resolve settles the two pending cards now. The timer scheduled for that
// move becomes a no-op.
func (g *MemoryGame) Resolve() {
	g.mu.Lock()
	seq := g.seq
	g.mu.Unlock()
	g.resolve(seq)
}

func (g *MemoryGame) resolve(seq int) {
	g.mu.Lock()
	if seq != g.seq || len(g.pending) != 2 {
		g.mu.Unlock()
		return
	}

	a, b := g.pending[0], g.pending[1]
	g.pending = g.pending[:0]
	if g.cards[a].Pair == g.cards[b].Pair {
		g.cards[a].State = Matched
		g.cards[b].State = Matched
		g.found++
	} else {
		g.cards[a].State = FaceDown
		g.cards[b].State = FaceDown
	}

	var result *Result
	if g.found == len(g.pairs) && !g.complete {
		g.complete = true
		r := g.result()
		result = &r
	}
	g.mu.Unlock()

	if result != nil && g.onComplete != nil {
		g.onComplete(*result)
	}
}

// Cards returns a copy of the board
func (g *MemoryGame) Cards() []Card {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Card(nil), g.cards...)
}

// Moves returns the number of two-card moves made
func (g *MemoryGame) Moves() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moves
}

// PairsFound returns the number of matched pairs
func (g *MemoryGame) PairsFound() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.found
}

// Complete reports whether every pair is matched
func (g *MemoryGame) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.complete
}

func (g *MemoryGame) result() Result {
	return Result{
		GameID:   g.gameID,
		Score:    g.found,
		Attempts: g.moves,
		Accuracy: accuracy(g.found, g.moves),
	}
}

// Reset deals a new board. A resolution scheduled before the reset is dropped.
func (g *MemoryGame) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deal()
}

func (g *MemoryGame) deal() {
	g.seq++
	g.cards = make([]Card, 0, 2*len(g.pairs))
	for i, p := range g.pairs {
		g.cards = append(g.cards, Card{Face: p.Text, Pair: i}, Card{Face: p.Emoji, Pair: i})
	}
	g.shuffle(len(g.cards), func(i, j int) {
		g.cards[i], g.cards[j] = g.cards[j], g.cards[i]
	})
	g.pending = nil
	g.found = 0
	g.moves = 0
	g.complete = false
}
