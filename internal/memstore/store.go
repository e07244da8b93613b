// Package memstore is an in-memory ledger repository for local runs and
// tests. It has the same semantics as the PostgreSQL repository.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ecoquest-ledger/internal/domain"
)

type completionKey struct {
	userID    string
	contentID string
}

type unlockKey struct {
	userID string
	gameID string
}

// Store is a mutex-guarded in-memory repository
type Store struct {
	mu          sync.Mutex
	accounts    map[string]domain.Account // by email
	profiles    map[string]domain.Profile // by user ID
	completions map[completionKey]domain.CompletionRecord
	unlocks     map[unlockKey]domain.UnlockRecord
}

// New creates an empty store
func New() *Store {
	return &Store{
		accounts:    make(map[string]domain.Account),
		profiles:    make(map[string]domain.Profile),
		completions: make(map[completionKey]domain.CompletionRecord),
		unlocks:     make(map[unlockKey]domain.UnlockRecord),
	}
}

// Ping always succeeds
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// CreateAccount stores an account and its profile
func (s *Store) CreateAccount(_ context.Context, account domain.Account, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.Email]; ok {
		return domain.ErrAccountExists
	}
	profile.Totals = domain.Totals{}
	s.accounts[account.Email] = account
	s.profiles[profile.ID] = profile
	return nil
}

// GetAccountByEmail looks up an account by email
func (s *Store) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[email]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &account, nil
}

// GetProfile returns a copy of a profile
func (s *Store) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &profile, nil
}

// DeleteProfile removes a profile, its account and its records
func (s *Store) DeleteProfile(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	delete(s.profiles, userID)
	delete(s.accounts, profile.Email)
	for k := range s.completions {
		if k.userID == userID {
			delete(s.completions, k)
		}
	}
	for k := range s.unlocks {
		if k.userID == userID {
			delete(s.unlocks, k)
		}
	}
	return nil
}

// ListProfiles returns profiles ordered by ID
func (s *Store) ListProfiles(_ context.Context, limit, offset int) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })

	if offset >= len(profiles) {
		return nil, nil
	}
	profiles = profiles[offset:]
	if limit > 0 && limit < len(profiles) {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

// ListCompletions returns a user's completions, oldest first
func (s *Store) ListCompletions(_ context.Context, userID string) ([]domain.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []domain.CompletionRecord
	for k, r := range s.completions {
		if k.userID == userID {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.Before(records[j].CompletedAt)
	})
	return records, nil
}

// ListUnlocks returns a user's unlocks, oldest first
func (s *Store) ListUnlocks(_ context.Context, userID string) ([]domain.UnlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []domain.UnlockRecord
	for k, r := range s.unlocks {
		if k.userID == userID {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UnlockedAt.Before(records[j].UnlockedAt)
	})
	return records, nil
}

// HasUnlock reports whether the user has unlocked a game
func (s *Store) HasUnlock(_ context.Context, userID, gameID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.unlocks[unlockKey{userID: userID, gameID: gameID}]
	return ok, nil
}

// CompleteContent records a completion and applies its reward
func (s *Store) CompleteContent(_ context.Context, record domain.CompletionRecord, reward domain.Totals) (domain.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[record.UserID]
	if !ok {
		return domain.Totals{}, domain.ErrProfileNotFound
	}
	key := completionKey{userID: record.UserID, contentID: record.ContentID}
	if _, done := s.completions[key]; done {
		return domain.Totals{}, domain.ErrAlreadyCompleted
	}

	next := profile.Totals.Add(reward)
	if !next.Valid() {
		return domain.Totals{}, fmt.Errorf("%w: %+v", domain.ErrInvariantViolation, next)
	}

	s.completions[key] = record
	profile.Totals = next
	profile.UpdatedAt = time.Now()
	s.profiles[record.UserID] = profile
	return profile.Totals, nil
}

// UnlockGame debits the cost and records the unlock
func (s *Store) UnlockGame(_ context.Context, record domain.UnlockRecord) (domain.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[record.UserID]
	if !ok {
		return domain.Totals{}, domain.ErrProfileNotFound
	}
	if profile.Totals.Coins < record.Cost {
		return domain.Totals{}, domain.ErrInsufficientFunds
	}
	key := unlockKey{userID: record.UserID, gameID: record.GameID}
	if _, done := s.unlocks[key]; done {
		return domain.Totals{}, domain.ErrAlreadyUnlocked
	}

	s.unlocks[key] = record
	profile.Totals.Coins -= record.Cost
	profile.UpdatedAt = time.Now()
	s.profiles[record.UserID] = profile
	return profile.Totals, nil
}

// SetTotals overwrites a profile's totals to seed a balance
func (s *Store) SetTotals(userID string, totals domain.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	profile.Totals = totals
	s.profiles[userID] = profile
	return nil
}
