package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/memstore"
	"github.com/ecoquest-ledger/internal/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a mock implementation of Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishProfileChange(ctx context.Context, change domain.ProfileChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

type fixture struct {
	store  *memstore.Store
	cache  *redis.Cache
	mr     *miniredis.Miniredis
	pub    *MockPublisher
	ledger *LedgerService
	auth   *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.DefaultConfig()
	cfg.Auth.BcryptCost = 4
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache := redis.NewCacheWithClient(client, &cfg.Cache, logger)
	store := memstore.New()
	pub := new(MockPublisher)

	return &fixture{
		store:  store,
		cache:  cache,
		mr:     mr,
		pub:    pub,
		ledger: NewLedgerService(store, cache, pub, cfg.Rewards, logger),
		auth:   NewAuthService(store, cache, cache, cfg.Auth, logger),
	}
}

// signUp creates a user and returns its ID
func (f *fixture) signUp(t *testing.T, email string) string {
	t.Helper()
	session, err := f.auth.SignUp(context.Background(), email, "password1", domain.SignUpAttributes{Name: "Kid"})
	require.NoError(t, err)
	return session.UserID
}
