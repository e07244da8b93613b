// Package progress keeps the player's last authoritative totals and routes
// every reward action through the ledger before touching them.
package progress

import (
	"fmt"
	"sync"

	"github.com/ecoquest-ledger/internal/domain"
)

// Store holds the last authoritative totals of the session. It changes only
// through Initialize.
type Store struct {
	mu       sync.RWMutex
	totals   domain.Totals
	loaded   bool
	watchers []func(domain.Totals)
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Initialize replaces the whole snapshot. Totals with a negative field are
// rejected and the previous snapshot is kept.
func (s *Store) Initialize(totals domain.Totals) error {
	if !totals.Valid() {
		return fmt.Errorf("%w: %+v", domain.ErrInvariantViolation, totals)
	}

	s.mu.Lock()
	s.totals = totals
	s.loaded = true
	watchers := append([]func(domain.Totals){}, s.watchers...)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(totals)
	}
	return nil
}

// Read returns the current snapshot
func (s *Store) Read() domain.Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}

// Loaded reports whether a snapshot has been set
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Watch registers fn to run after every accepted snapshot
func (s *Store) Watch(fn func(domain.Totals)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}
