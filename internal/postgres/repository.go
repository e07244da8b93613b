package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL-based ledger storage
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(64) PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id VARCHAR(64) PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
			name VARCHAR(255),
			age INT,
			coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
			xp BIGINT NOT NULL DEFAULT 0 CHECK (xp >= 0),
			badges BIGINT NOT NULL DEFAULT 0 CHECK (badges >= 0),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS completions (
			user_id VARCHAR(64) NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			content_id VARCHAR(128) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			score INT NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, content_id)
		)`,
		`CREATE TABLE IF NOT EXISTS unlocks (
			user_id VARCHAR(64) NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			game_id VARCHAR(128) NOT NULL,
			cost BIGINT NOT NULL,
			unlocked_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(20) NOT NULL,
			source_id VARCHAR(128) NOT NULL,
			coins_delta BIGINT NOT NULL,
			xp_delta BIGINT NOT NULL,
			badges_delta BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_user ON ledger_events(user_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateAccount stores an account and its zero-totals profile in one transaction
func (r *Repository) CreateAccount(ctx context.Context, account domain.Account, profile domain.Profile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, account.ID, account.Email, account.PasswordHash, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("creating account: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (id, name, age, coins, xp, badges, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, $4, $4)
	`, profile.ID, profile.Name, profile.Age, profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing account: %w", err)
	}
	return nil
}

// GetAccountByEmail retrieves an account by email
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account domain.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at
		FROM accounts
		WHERE email = $1
	`, email).Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &account, nil
}

const profileColumns = `p.id, a.email, COALESCE(p.name, ''), p.age, p.coins, p.xp, p.badges, p.created_at, p.updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&p.Age,
		&p.Totals.Coins,
		&p.Totals.XP,
		&p.Totals.Badges,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile retrieves a profile by user ID
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles p
		JOIN accounts a ON a.id = p.id
		WHERE p.id = $1
	`
	profile, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

// ListProfiles retrieves profiles ordered by ID (for cache warm-up)
func (r *Repository) ListProfiles(ctx context.Context, limit, offset int) ([]domain.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles p
		JOIN accounts a ON a.id = p.id
		ORDER BY p.id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes an account; profile and records cascade
func (r *Repository) DeleteProfile(ctx context.Context, userID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// ListCompletions retrieves a user's completions, oldest first
func (r *Repository) ListCompletions(ctx context.Context, userID string) ([]domain.CompletionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, content_id, kind, score, completed_at
		FROM completions
		WHERE user_id = $1
		ORDER BY completed_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	defer rows.Close()

	var records []domain.CompletionRecord
	for rows.Next() {
		var rec domain.CompletionRecord
		if err := rows.Scan(&rec.UserID, &rec.ContentID, &rec.Kind, &rec.Score, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListUnlocks retrieves a user's unlocks, oldest first
func (r *Repository) ListUnlocks(ctx context.Context, userID string) ([]domain.UnlockRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, game_id, cost, unlocked_at
		FROM unlocks
		WHERE user_id = $1
		ORDER BY unlocked_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing unlocks: %w", err)
	}
	defer rows.Close()

	var records []domain.UnlockRecord
	for rows.Next() {
		var rec domain.UnlockRecord
		if err := rows.Scan(&rec.UserID, &rec.GameID, &rec.Cost, &rec.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scanning unlock: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HasUnlock reports whether the user has unlocked a game
func (r *Repository) HasUnlock(ctx context.Context, userID, gameID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM unlocks WHERE user_id = $1 AND game_id = $2)
	`, userID, gameID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking unlock: %w", err)
	}
	return ok, nil
}

// lockTotals reads a profile's totals with a row lock held until the
// transaction ends
func lockTotals(ctx context.Context, tx pgx.Tx, userID string) (domain.Totals, error) {
	var t domain.Totals
	err := tx.QueryRow(ctx, `
		SELECT coins, xp, badges FROM profiles WHERE id = $1 FOR UPDATE
	`, userID).Scan(&t.Coins, &t.XP, &t.Badges)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, domain.ErrProfileNotFound
		}
		return t, fmt.Errorf("locking profile: %w", err)
	}
	return t, nil
}

// applyDelta adds delta to a profile and returns the new totals
func applyDelta(ctx context.Context, tx pgx.Tx, userID string, delta domain.Totals, at time.Time) (domain.Totals, error) {
	var t domain.Totals
	err := tx.QueryRow(ctx, `
		UPDATE profiles
		SET coins = coins + $2, xp = xp + $3, badges = badges + $4, updated_at = $5
		WHERE id = $1
		RETURNING coins, xp, badges
	`, userID, delta.Coins, delta.XP, delta.Badges, at).Scan(&t.Coins, &t.XP, &t.Badges)
	if err != nil {
		return t, fmt.Errorf("updating totals: %w", err)
	}
	return t, nil
}

// recordEvent appends to the ledger audit trail
func recordEvent(ctx context.Context, tx pgx.Tx, userID, eventType, sourceID string, delta domain.Totals, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_events (user_id, event_type, source_id, coins_delta, xp_delta, badges_delta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, eventType, sourceID, delta.Coins, delta.XP, delta.Badges, at)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// CompleteContent records a completion and applies its reward atomically
func (r *Repository) CompleteContent(ctx context.Context, record domain.CompletionRecord, reward domain.Totals) (domain.Totals, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockTotals(ctx, tx, record.UserID)
	if err != nil {
		return domain.Totals{}, err
	}
	if next := current.Add(reward); !next.Valid() {
		return domain.Totals{}, fmt.Errorf("%w: %+v", domain.ErrInvariantViolation, next)
	}

	result, err := tx.Exec(ctx, `
		INSERT INTO completions (user_id, content_id, kind, score, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, content_id) DO NOTHING
	`, record.UserID, record.ContentID, string(record.Kind), record.Score, record.CompletedAt)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("inserting completion: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.Totals{}, domain.ErrAlreadyCompleted
	}

	totals, err := applyDelta(ctx, tx, record.UserID, reward, record.CompletedAt)
	if err != nil {
		return domain.Totals{}, err
	}
	if err := recordEvent(ctx, tx, record.UserID, string(record.Kind), record.ContentID, reward, record.CompletedAt); err != nil {
		return domain.Totals{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Totals{}, fmt.Errorf("committing completion: %w", err)
	}
	return totals, nil
}

// UnlockGame debits the cost and records the unlock atomically. The balance
// check runs before the existing-unlock check.
func (r *Repository) UnlockGame(ctx context.Context, record domain.UnlockRecord) (domain.Totals, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockTotals(ctx, tx, record.UserID)
	if err != nil {
		return domain.Totals{}, err
	}
	if current.Coins < record.Cost {
		return domain.Totals{}, domain.ErrInsufficientFunds
	}

	result, err := tx.Exec(ctx, `
		INSERT INTO unlocks (user_id, game_id, cost, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, game_id) DO NOTHING
	`, record.UserID, record.GameID, record.Cost, record.UnlockedAt)
	if err != nil {
		return domain.Totals{}, fmt.Errorf("inserting unlock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.Totals{}, domain.ErrAlreadyUnlocked
	}

	delta := domain.Totals{Coins: -record.Cost}
	totals, err := applyDelta(ctx, tx, record.UserID, delta, record.UnlockedAt)
	if err != nil {
		return domain.Totals{}, err
	}
	if err := recordEvent(ctx, tx, record.UserID, "unlock", record.GameID, delta, record.UnlockedAt); err != nil {
		return domain.Totals{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Totals{}, fmt.Errorf("committing unlock: %w", err)
	}
	return totals, nil
}
