package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ecoquest-ledger/internal/catalog"
	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/metrics"
)

// Ledger operations
const (
	OpCompleteVideo = "complete_video"
	OpCompleteQuiz  = "complete_quiz"
	OpUnlockGame    = "unlock_game"
)

// LedgerService provides the reward ledger operations
type LedgerService struct {
	repo      Repository
	cache     Cache
	publisher Publisher
	rewards   config.RewardsConfig
	logger    *slog.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	repo Repository,
	cache Cache,
	publisher Publisher,
	rewards config.RewardsConfig,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		rewards:   rewards,
		logger:    logger,
	}
}

// SetPublisher replaces the profile change publisher
func (s *LedgerService) SetPublisher(p Publisher) {
	s.publisher = p
}

// VideoReward returns the reward for completing a video
func (s *LedgerService) VideoReward() domain.Totals {
	return domain.Totals{
		Coins:  s.rewards.VideoCoins,
		XP:     s.rewards.VideoXP,
		Badges: s.rewards.VideoBadges,
	}
}

// QuizReward returns the reward for a quiz answered with score correct answers
func (s *LedgerService) QuizReward(score int) domain.Totals {
	return domain.Totals{
		Coins:  s.rewards.QuizPerPoint * int64(score),
		XP:     s.rewards.QuizPerPoint * int64(score),
		Badges: s.rewards.QuizBadges,
	}
}

// GetProfile returns a user's profile from storage and refreshes the cache
func (s *LedgerService) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheTotals(ctx, userID, profile.Totals)
	return profile, nil
}

// Totals returns a user's current totals, from the cache when possible
func (s *LedgerService) Totals(ctx context.Context, userID string) (domain.Totals, error) {
	totals, ok, err := s.cache.GetTotals(ctx, userID)
	if err != nil {
		s.logger.Warn("totals cache read failed", "user_id", userID, "error", err)
	}
	if ok {
		return totals, nil
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return domain.Totals{}, err
	}
	return profile.Totals, nil
}

// GetCompletions returns the content a user has completed
func (s *LedgerService) GetCompletions(ctx context.Context, userID string) ([]domain.CompletionRecord, error) {
	return s.repo.ListCompletions(ctx, userID)
}

// GetUnlocks returns the games a user has unlocked
func (s *LedgerService) GetUnlocks(ctx context.Context, userID string) ([]domain.UnlockRecord, error) {
	return s.repo.ListUnlocks(ctx, userID)
}

// CompleteVideo grants the video reward once per (user, video)
func (s *LedgerService) CompleteVideo(ctx context.Context, userID, videoID string) (domain.LedgerResult, error) {
	if strings.TrimSpace(videoID) == "" {
		return domain.LedgerResult{}, fmt.Errorf("%w: video id is required", domain.ErrInvalidRequest)
	}
	if _, ok := catalog.FindLessonByVideo(videoID); !ok {
		return domain.LedgerResult{}, fmt.Errorf("%w: video %s", domain.ErrContentNotFound, videoID)
	}

	record := domain.CompletionRecord{
		UserID:      userID,
		ContentID:   videoID,
		Kind:        domain.ContentKindVideo,
		CompletedAt: time.Now(),
	}
	return s.complete(ctx, OpCompleteVideo, record, s.VideoReward())
}

// CompleteQuiz grants the quiz reward once per (user, quiz)
func (s *LedgerService) CompleteQuiz(ctx context.Context, userID, quizID string, score int) (domain.LedgerResult, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.LedgerResult{}, fmt.Errorf("%w: quiz id is required", domain.ErrInvalidRequest)
	}
	if score < 0 {
		return domain.LedgerResult{}, fmt.Errorf("%w: score must not be negative", domain.ErrInvalidRequest)
	}
	limit, ok := catalog.MaxScore(quizID)
	if !ok {
		return domain.LedgerResult{}, fmt.Errorf("%w: quiz %s", domain.ErrContentNotFound, quizID)
	}
	if score > limit {
		return domain.LedgerResult{}, fmt.Errorf("%w: score %d exceeds %d", domain.ErrInvalidRequest, score, limit)
	}
	if err := s.requireUnlocked(ctx, userID, quizID); err != nil {
		return domain.LedgerResult{}, err
	}

	record := domain.CompletionRecord{
		UserID:      userID,
		ContentID:   quizID,
		Kind:        domain.ContentKindQuiz,
		Score:       score,
		CompletedAt: time.Now(),
	}
	return s.complete(ctx, OpCompleteQuiz, record, s.QuizReward(score))
}

// requireUnlocked refuses results for a paid game the user has not unlocked
func (s *LedgerService) requireUnlocked(ctx context.Context, userID, gameID string) error {
	if !slices.Contains(catalog.LockedGames(), gameID) {
		return nil
	}
	unlocked, err := s.repo.HasUnlock(ctx, userID, gameID)
	if err != nil {
		return fmt.Errorf("checking unlock of %s: %w", gameID, err)
	}
	if !unlocked {
		return fmt.Errorf("%w: unlock %s first", domain.ErrGameLocked, gameID)
	}
	return nil
}

func (s *LedgerService) complete(ctx context.Context, op string, record domain.CompletionRecord, reward domain.Totals) (domain.LedgerResult, error) {
	if !reward.Valid() {
		return domain.LedgerResult{}, fmt.Errorf("%w: reward %+v", domain.ErrInvariantViolation, reward)
	}

	release, err := s.acquire(ctx, record.UserID, op, record.ContentID)
	if err != nil {
		return domain.LedgerResult{}, err
	}
	defer release()

	start := time.Now()
	defer func() {
		metrics.LedgerLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	totals, err := s.repo.CompleteContent(ctx, record, reward)
	if errors.Is(err, domain.ErrAlreadyCompleted) {
		current, terr := s.Totals(ctx, record.UserID)
		if terr != nil {
			metrics.LedgerErrorsTotal.WithLabelValues(op).Inc()
			return domain.LedgerResult{}, terr
		}
		metrics.LedgerOutcomesTotal.WithLabelValues(op, string(domain.StatusAlreadyCompleted)).Inc()
		return domain.LedgerResult{
			Status:         domain.StatusAlreadyCompleted,
			Message:        "You already completed this!",
			Totals:         current,
			RemainingCoins: current.Coins,
		}, nil
	}
	if err != nil {
		metrics.LedgerErrorsTotal.WithLabelValues(op).Inc()
		return domain.LedgerResult{}, fmt.Errorf("completing %s %s: %w", record.Kind, record.ContentID, err)
	}

	metrics.LedgerOutcomesTotal.WithLabelValues(op, string(domain.StatusSuccess)).Inc()
	metrics.CoinsGrantedTotal.Add(float64(reward.Coins))

	s.cacheTotals(ctx, record.UserID, totals)
	s.publish(ctx, domain.NewProfileChange(record.UserID, totals.Sub(reward), totals, op, record.ContentID))

	s.logger.Info("content completed",
		"user_id", record.UserID,
		"content_id", record.ContentID,
		"kind", record.Kind,
		"coins", reward.Coins,
	)

	return domain.LedgerResult{
		Status:         domain.StatusSuccess,
		Message:        fmt.Sprintf("You earned %d coins!", reward.Coins),
		Earned:         reward,
		Totals:         totals,
		RemainingCoins: totals.Coins,
	}, nil
}

// UnlockGame spends cost coins to unlock a game. The cost must match the
// catalog price.
func (s *LedgerService) UnlockGame(ctx context.Context, userID, gameID string, cost int64) (domain.LedgerResult, error) {
	game, ok := catalog.FindGame(gameID)
	if !ok {
		return domain.LedgerResult{}, domain.ErrGameNotFound
	}
	if cost != game.Cost {
		return domain.LedgerResult{}, fmt.Errorf("%w: %s costs %d coins", domain.ErrInvalidRequest, gameID, game.Cost)
	}

	release, err := s.acquire(ctx, userID, OpUnlockGame, gameID)
	if err != nil {
		return domain.LedgerResult{}, err
	}
	defer release()

	start := time.Now()
	defer func() {
		metrics.LedgerLatency.WithLabelValues(OpUnlockGame).Observe(time.Since(start).Seconds())
	}()

	record := domain.UnlockRecord{
		UserID:     userID,
		GameID:     gameID,
		Cost:       cost,
		UnlockedAt: time.Now(),
	}
	totals, err := s.repo.UnlockGame(ctx, record)

	var status domain.ResultStatus
	var message string
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = domain.StatusInsufficientFunds
		message = fmt.Sprintf("Not enough coins! You need %d coins.", cost)
	case errors.Is(err, domain.ErrAlreadyUnlocked):
		status = domain.StatusAlreadyUnlocked
		message = "You already unlocked this game!"
	case err != nil:
		metrics.LedgerErrorsTotal.WithLabelValues(OpUnlockGame).Inc()
		return domain.LedgerResult{}, fmt.Errorf("unlocking game %s: %w", gameID, err)
	}

	if status != "" {
		current, terr := s.Totals(ctx, userID)
		if terr != nil {
			metrics.LedgerErrorsTotal.WithLabelValues(OpUnlockGame).Inc()
			return domain.LedgerResult{}, terr
		}
		metrics.LedgerOutcomesTotal.WithLabelValues(OpUnlockGame, string(status)).Inc()
		return domain.LedgerResult{
			Status:         status,
			Message:        message,
			Totals:         current,
			RemainingCoins: current.Coins,
		}, nil
	}

	metrics.LedgerOutcomesTotal.WithLabelValues(OpUnlockGame, string(domain.StatusSuccess)).Inc()
	metrics.CoinsSpentTotal.Add(float64(cost))

	s.cacheTotals(ctx, userID, totals)
	before := totals
	before.Coins += cost
	s.publish(ctx, domain.NewProfileChange(userID, before, totals, OpUnlockGame, gameID))

	s.logger.Info("game unlocked", "user_id", userID, "game_id", gameID, "cost", cost)

	return domain.LedgerResult{
		Status:         domain.StatusSuccess,
		Message:        fmt.Sprintf("%s unlocked!", game.Title),
		Earned:         domain.Totals{Coins: -cost},
		Totals:         totals,
		RemainingCoins: totals.Coins,
	}, nil
}

// DeleteProfile removes a user's profile and ledger records
func (s *LedgerService) DeleteProfile(ctx context.Context, userID string) error {
	if err := s.repo.DeleteProfile(ctx, userID); err != nil {
		return err
	}
	if err := s.cache.DeleteTotals(ctx, userID); err != nil {
		s.logger.Warn("failed to drop cached totals", "user_id", userID, "error", err)
	}
	s.logger.Info("profile deleted", "user_id", userID)
	return nil
}

// acquire marks (user, op, id) as in flight and returns its release func
func (s *LedgerService) acquire(ctx context.Context, userID, op, id string) (func(), error) {
	key := fmt.Sprintf("%s:%s:%s", userID, op, id)
	ok, err := s.cache.AcquireInFlight(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("marking %s in flight: %w", op, err)
	}
	if !ok {
		return nil, domain.ErrActionInFlight
	}
	return func() {
		// The request context may already be cancelled
		if err := s.cache.ReleaseInFlight(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("failed to release in-flight marker", "key", key, "error", err)
		}
	}, nil
}

func (s *LedgerService) cacheTotals(ctx context.Context, userID string, totals domain.Totals) {
	if err := s.cache.SetTotals(ctx, userID, totals); err != nil {
		s.logger.Warn("failed to cache totals", "user_id", userID, "error", err)
		// Reads fall back to storage
		_ = s.cache.DeleteTotals(ctx, userID)
	}
}

func (s *LedgerService) publish(ctx context.Context, change domain.ProfileChange) {
	if s.publisher == nil || change.Empty() {
		return
	}
	if err := s.publisher.PublishProfileChange(ctx, change); err != nil {
		s.logger.Warn("failed to publish profile change", "user_id", change.UserID, "error", err)
		return
	}
	metrics.ProfileChangesPublishedTotal.Inc()
}
