package game

import (
	"math"
	"sync"

	"github.com/ecoquest-ledger/internal/catalog"
)

// PointsPerMatch is the display score for each correct drop
const PointsPerMatch = 100

// MatchGame is a drag-match session
type MatchGame struct {
	mu         sync.Mutex
	gameID     string
	items      []catalog.Item
	matched    map[string]bool
	attempts   int
	points     int
	complete   bool
	shuffle    Shuffler
	onComplete func(Result)
}

// NewMatchGame starts a session over items in shuffled order
func NewMatchGame(gameID string, items []catalog.Item, shuffle Shuffler, onComplete func(Result)) *MatchGame {
	if shuffle == nil {
		shuffle = DefaultShuffler()
	}
	g := &MatchGame{
		gameID:     gameID,
		items:      append([]catalog.Item(nil), items...),
		shuffle:    shuffle,
		onComplete: onComplete,
	}
	g.reset()
	return g
}

// Attempt drops draggedID on targetID. It reports whether the drop matched.
func (g *MatchGame) Attempt(draggedID, targetID string) (bool, error) {
	g.mu.Lock()
	if g.complete {
		g.mu.Unlock()
		return false, ErrGameComplete
	}

	item, ok := g.find(draggedID)
	if !ok {
		g.mu.Unlock()
		return false, ErrUnknownItem
	}

	g.attempts++
	correct := item.Target == targetID && !g.matched[item.ID]
	if correct {
		g.matched[item.ID] = true
		g.points += PointsPerMatch
	}

	var result *Result
	if len(g.matched) == len(g.items) {
		g.complete = true
		r := g.result()
		result = &r
	}
	g.mu.Unlock()

	if result != nil && g.onComplete != nil {
		g.onComplete(*result)
	}
	return correct, nil
}

func (g *MatchGame) find(id string) (catalog.Item, bool) {
	for _, item := range g.items {
		if item.ID == id {
			return item, true
		}
	}
	return catalog.Item{}, false
}

// Items returns the items in presentation order
func (g *MatchGame) Items() []catalog.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]catalog.Item(nil), g.items...)
}

// Matched reports whether an item has been placed
func (g *MatchGame) Matched(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.matched[id]
}

// Points returns the display score
func (g *MatchGame) Points() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.points
}

// Complete reports whether every item is matched
func (g *MatchGame) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.complete
}

// Accuracy is matched/attempts as a rounded percentage, 0 before any attempt
func (g *MatchGame) Accuracy() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return accuracy(len(g.matched), g.attempts)
}

// Result returns the session's current result
func (g *MatchGame) Result() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result()
}

func (g *MatchGame) result() Result {
	return Result{
		GameID:   g.gameID,
		Score:    len(g.matched),
		Attempts: g.attempts,
		Accuracy: accuracy(len(g.matched), g.attempts),
	}
}

// Reset starts a fresh session with a new presentation order
func (g *MatchGame) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

func (g *MatchGame) reset() {
	g.matched = make(map[string]bool, len(g.items))
	g.attempts = 0
	g.points = 0
	g.complete = false
	g.shuffle(len(g.items), func(i, j int) {
		g.items[i], g.items[j] = g.items[j], g.items[i]
	})
}

func accuracy(correct, attempts int) int {
	if attempts == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(attempts) * 100))
}
