package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// SessionStore persists sign-in sessions
type SessionStore interface {
	SaveSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, token string) (domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
}

// RateLimiter counts attempts per key within a window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	ResetLimit(ctx context.Context, key string) error
}

// AuthService manages accounts and sessions
type AuthService struct {
	repo     Repository
	sessions SessionStore
	limiter  RateLimiter
	cfg      config.AuthConfig
	logger   *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	repo Repository,
	sessions SessionStore,
	limiter RateLimiter,
	cfg config.AuthConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:     repo,
		sessions: sessions,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// SignUp creates an account with a zero-totals profile and signs it in
func (s *AuthService) SignUp(ctx context.Context, email, password string, attrs domain.SignUpAttributes) (domain.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.Session{}, err
	}
	if len(password) < minPasswordLength {
		return domain.Session{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRequest, minPasswordLength)
	}
	if attrs.Age != nil && *attrs.Age < 0 {
		return domain.Session{}, fmt.Errorf("%w: age must not be negative", domain.ErrInvalidRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return domain.Session{}, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	account := domain.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	profile := domain.Profile{
		ID:        account.ID,
		Email:     email,
		Name:      strings.TrimSpace(attrs.Name),
		Age:       attrs.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateAccount(ctx, account, profile); err != nil {
		return domain.Session{}, err
	}

	s.logger.Info("account created", "user_id", account.ID)
	return s.issue(ctx, account)
}

// SignIn verifies credentials and issues a session
func (s *AuthService) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.Session{}, domain.ErrInvalidCredentials
	}

	limitKey := "signin:" + email
	allowed, err := s.limiter.Allow(ctx, limitKey, s.cfg.SignInLimit, s.cfg.SignInWindow)
	if err != nil {
		return domain.Session{}, fmt.Errorf("checking sign-in rate: %w", err)
	}
	if !allowed {
		metrics.SignInsTotal.WithLabelValues("rate_limited").Inc()
		return domain.Session{}, domain.ErrRateLimited
	}

	account, err := s.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			metrics.SignInsTotal.WithLabelValues("invalid").Inc()
			return domain.Session{}, domain.ErrInvalidCredentials
		}
		return domain.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		metrics.SignInsTotal.WithLabelValues("invalid").Inc()
		return domain.Session{}, domain.ErrInvalidCredentials
	}

	if err := s.limiter.ResetLimit(ctx, limitKey); err != nil {
		s.logger.Warn("failed to reset sign-in limit", "error", err)
	}
	metrics.SignInsTotal.WithLabelValues("ok").Inc()
	return s.issue(ctx, *account)
}

// GetSession resolves a session token
func (s *AuthService) GetSession(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}
	return s.sessions.GetSession(ctx, token)
}

// SignOut ends a session
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

// SignOutEverywhere revokes every session of a user
func (s *AuthService) SignOutEverywhere(ctx context.Context, userID string) error {
	revoked, err := s.sessions.DeleteUserSessions(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.Info("sessions revoked", "user_id", userID, "count", revoked)
	return nil
}

func (s *AuthService) issue(ctx context.Context, account domain.Account) (domain.Session, error) {
	session := domain.Session{
		Token:     uuid.New().String(),
		UserID:    account.ID,
		Email:     account.Email,
		ExpiresAt: time.Now().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("saving session: %w", err)
	}
	return session, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidRequest)
	}
	return email, nil
}
