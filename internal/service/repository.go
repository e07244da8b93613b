package service

import (
	"context"

	"github.com/ecoquest-ledger/internal/domain"
)

// Repository is the durable ledger store. Implementations must apply
// CompleteContent and UnlockGame atomically: the record and the totals
// change together or not at all.
type Repository interface {
	// CreateAccount stores an account and its zero-totals profile.
	// Returns domain.ErrAccountExists when the email is taken.
	CreateAccount(ctx context.Context, account domain.Account, profile domain.Profile) error
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	DeleteProfile(ctx context.Context, userID string) error
	ListProfiles(ctx context.Context, limit, offset int) ([]domain.Profile, error)

	ListCompletions(ctx context.Context, userID string) ([]domain.CompletionRecord, error)
	ListUnlocks(ctx context.Context, userID string) ([]domain.UnlockRecord, error)
	HasUnlock(ctx context.Context, userID, gameID string) (bool, error)

	// CompleteContent records the completion and adds reward to the
	// profile, returning the new totals. Returns domain.ErrAlreadyCompleted
	// without changing anything if a record exists, and
	// domain.ErrInvariantViolation if the new totals would not be Valid.
	CompleteContent(ctx context.Context, record domain.CompletionRecord, reward domain.Totals) (domain.Totals, error)

	// UnlockGame debits record.Cost and records the unlock, returning the
	// new totals. The balance is checked before the existing unlock:
	// domain.ErrInsufficientFunds wins over domain.ErrAlreadyUnlocked.
	UnlockGame(ctx context.Context, record domain.UnlockRecord) (domain.Totals, error)
}

// Cache holds profile totals and in-flight action markers
type Cache interface {
	GetTotals(ctx context.Context, userID string) (domain.Totals, bool, error)
	SetTotals(ctx context.Context, userID string, totals domain.Totals) error
	DeleteTotals(ctx context.Context, userID string) error
	AcquireInFlight(ctx context.Context, key string) (bool, error)
	ReleaseInFlight(ctx context.Context, key string) error
}

// Publisher delivers profile changes to live subscribers
type Publisher interface {
	PublishProfileChange(ctx context.Context, change domain.ProfileChange) error
}
