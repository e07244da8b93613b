package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ecoquest-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository connects to the database named by LEDGER_TEST_POSTGRES_DSN
// and skips the test when it is unset.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := &Repository{pool: pool, logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
	require.NoError(t, repo.RunMigrations(ctx))
	return repo
}

func createUser(t *testing.T, repo *Repository, coins int64) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.New().String()
	now := time.Now()
	require.NoError(t, repo.CreateAccount(ctx,
		domain.Account{ID: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: now},
		domain.Profile{ID: id, Email: id + "@example.com", Name: "Test", CreatedAt: now},
	))
	if coins > 0 {
		_, err := repo.pool.Exec(ctx, `UPDATE profiles SET coins = $2 WHERE id = $1`, id, coins)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = repo.DeleteProfile(context.Background(), id) })
	return id
}

func TestRepository_AccountLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := createUser(t, repo, 0)

	account, err := repo.GetAccountByEmail(ctx, id+"@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, account.ID)

	err = repo.CreateAccount(ctx,
		domain.Account{ID: uuid.New().String(), Email: id + "@example.com", PasswordHash: "x", CreatedAt: time.Now()},
		domain.Profile{},
	)
	assert.ErrorIs(t, err, domain.ErrAccountExists)

	profile, err := repo.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test", profile.Name)
	assert.True(t, profile.Totals.IsZero())

	require.NoError(t, repo.DeleteProfile(ctx, id))
	_, err = repo.GetProfile(ctx, id)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestRepository_CompleteContentOnce(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := createUser(t, repo, 0)
	reward := domain.Totals{Coins: 60, XP: 60, Badges: 1}
	rec := domain.CompletionRecord{UserID: id, ContentID: "intro-geography", Kind: domain.ContentKindQuiz, Score: 3, CompletedAt: time.Now()}

	totals, err := repo.CompleteContent(ctx, rec, reward)
	require.NoError(t, err)
	assert.Equal(t, reward, totals)

	_, err = repo.CompleteContent(ctx, rec, reward)
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	records, err := repo.ListCompletions(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Score)
}

func TestRepository_ConcurrentCompletionsGrantOnce(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := createUser(t, repo, 0)
	reward := domain.Totals{Coins: 100, XP: 100, Badges: 1}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.CompleteContent(ctx, domain.CompletionRecord{UserID: id, ContentID: "video-1", Kind: domain.ContentKindVideo, CompletedAt: time.Now()}, reward)
		}()
	}
	wg.Wait()

	profile, err := repo.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, reward, profile.Totals)
}

func TestRepository_UnlockOrdering(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := createUser(t, repo, 500)
	rec := domain.UnlockRecord{UserID: id, GameID: "flag-quiz", Cost: 500, UnlockedAt: time.Now()}

	ok, err := repo.HasUnlock(ctx, id, "flag-quiz")
	require.NoError(t, err)
	assert.False(t, ok)

	totals, err := repo.UnlockGame(ctx, rec)
	require.NoError(t, err)
	assert.Zero(t, totals.Coins)

	_, err = repo.UnlockGame(ctx, rec)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	unlocks, err := repo.ListUnlocks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)

	ok, err = repo.HasUnlock(ctx, id, "flag-quiz")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_CompleteContentRejectsNegativeTotals(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	id := createUser(t, repo, 10)

	_, err := repo.CompleteContent(ctx, domain.CompletionRecord{UserID: id, ContentID: "q1", Kind: domain.ContentKindQuiz, CompletedAt: time.Now()}, domain.Totals{Coins: -50})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	profile, err := repo.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), profile.Totals.Coins)
	records, err := repo.ListCompletions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, records)
}
