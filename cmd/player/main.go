package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecoquest-ledger/internal/catalog"
	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/game"
	"github.com/ecoquest-ledger/internal/ledgerclient"
	"github.com/ecoquest-ledger/internal/progress"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	baseURL := flag.String("url", "", "Ledger API base URL (overrides config)")
	email := flag.String("email", "explorer@example.com", "Account email")
	password := flag.String("password", "explorer1", "Account password")
	name := flag.String("name", "Explorer", "Display name used when signing up")
	signUp := flag.Bool("signup", false, "Create the account before playing")
	videoID := flag.String("video", "video-intro-geography", "Video to complete")
	gameID := flag.String("unlock", "flag-quiz", "Game to unlock")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Info("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := ledgerclient.New(&cfg.Client, logger)
	if err := play(ctx, client, *email, *password, *name, *signUp, *videoID, *gameID, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func play(ctx context.Context, client *ledgerclient.Client, email, password, name string, signUp bool, videoID, gameID string, logger *slog.Logger) error {
	session, err := authenticate(ctx, client, email, password, name, signUp)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.SignOut(context.WithoutCancel(ctx), session); err != nil {
			logger.Warn("failed to sign out", "error", err)
		}
	}()

	profile, err := client.GetProfile(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	store := progress.NewStore()
	if err := store.Initialize(profile.Totals); err != nil {
		return err
	}
	store.Watch(func(t domain.Totals) {
		fmt.Printf("  totals: %d coins, %d xp, %d badges\n", t.Coins, t.XP, t.Badges)
	})
	fmt.Printf("Signed in as %s\n", session.Email)
	fmt.Printf("  totals: %d coins, %d xp, %d badges\n", profile.Totals.Coins, profile.Totals.XP, profile.Totals.Badges)

	listener := progress.NewListener(client, store, session, logger)
	if err := listener.Start(ctx); err != nil {
		logger.Warn("live sync unavailable", "error", err)
	}
	defer listener.Close()

	ctrl := progress.NewController(client, store, session, logger)
	defer ctrl.Close()

	fmt.Printf("\nWatching %s\n", videoID)
	report(ctrl.CompleteVideo(ctx, videoID))

	if quiz, ok := catalog.FindQuiz("intro-geography"); ok {
		fmt.Printf("\nTaking quiz %q\n", quiz.Title)
		qs := game.NewQuizSession(quiz.ID, quiz.Questions, game.ClaimOnComplete(ctx, ctrl, claimed))
		for {
			q, ok := qs.Current()
			if !ok {
				break
			}
			if _, err := qs.Answer(q.Answer); err != nil {
				return err
			}
		}
	}

	fmt.Println("\nPlaying continent-match")
	match := game.NewMatchGame("continent-match", catalog.Continents, nil, game.ClaimOnComplete(ctx, ctrl, claimed))
	for !match.Complete() {
		items := match.Items()
		item := items[rand.IntN(len(items))]
		target := catalog.Continents[rand.IntN(len(catalog.Continents))].Target
		if match.Matched(item.ID) {
			continue
		}
		if _, err := match.Attempt(item.ID, target); err != nil {
			return err
		}
	}

	if g, ok := catalog.FindGame(gameID); ok {
		fmt.Printf("\nUnlocking %s for %d coins\n", g.Title, g.Cost)
		report(ctrl.UnlockGame(ctx, g.ID, g.Cost))
	} else {
		fmt.Printf("\nUnknown game %q\n", gameID)
	}
	return nil
}

func authenticate(ctx context.Context, client *ledgerclient.Client, email, password, name string, signUp bool) (domain.Session, error) {
	if signUp {
		session, err := client.SignUp(ctx, email, password, domain.SignUpAttributes{Name: name})
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, domain.ErrAccountExists) {
			return domain.Session{}, fmt.Errorf("failed to sign up: %w", err)
		}
	}

	session, err := client.SignIn(ctx, email, password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to sign in: %w", err)
	}
	return session, nil
}

func claimed(r game.Result, outcome progress.Outcome) {
	fmt.Printf("  finished %s: %d correct in %d attempts (%d%% accuracy)\n", r.GameID, r.Score, r.Attempts, r.Accuracy)
	report(outcome)
}

func report(outcome progress.Outcome) {
	switch outcome.Kind {
	case progress.Success:
		fmt.Printf("  ✓ %s\n", outcome.Message)
	case progress.AlreadyDone, progress.InsufficientFunds:
		fmt.Printf("  • %s\n", outcome.Message)
	default:
		fmt.Printf("  ✗ something went wrong, try again (%v)\n", outcome.Err)
	}
}
