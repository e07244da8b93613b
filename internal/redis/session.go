package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecoquest-ledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// userSessionsKey indexes the live session tokens of one user
func userSessionsKey(userID string) string {
	return fmt.Sprintf("user:%s:sessions", userID)
}

// SaveSession stores a session until its expiry
func (c *Cache) SaveSession(ctx context.Context, session domain.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("saving session: %w", domain.ErrUnauthorized)
	}

	key := sessionKey(session.Token)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", session.UserID,
		"email", session.Email,
		"expires_at", session.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.ExpireAt(ctx, key, session.ExpiresAt)
	// Sessions share one TTL, so the newest one outlives the rest of the index
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.Token)
	pipe.ExpireAt(ctx, userSessionsKey(session.UserID), session.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession loads a session by token. Unknown or expired tokens yield
// domain.ErrUnauthorized.
func (c *Cache) GetSession(ctx context.Context, token string) (domain.Session, error) {
	result, err := c.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, domain.ErrUnauthorized
		}
		return domain.Session{}, fmt.Errorf("getting session: %w", err)
	}
	if len(result) == 0 {
		return domain.Session{}, domain.ErrUnauthorized
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, result["expires_at"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("parsing session expiry: %w", err)
	}
	if time.Now().After(expiresAt) {
		return domain.Session{}, domain.ErrUnauthorized
	}

	return domain.Session{
		Token:     token,
		UserID:    result["user_id"],
		Email:     result["email"],
		ExpiresAt: expiresAt,
	}, nil
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (c *Cache) DeleteSession(ctx context.Context, token string) error {
	key := sessionKey(token)
	userID, err := c.client.HGet(ctx, key, "user_id").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("deleting session: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if userID != "" {
		pipe.SRem(ctx, userSessionsKey(userID), token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes every session of a user and returns how many
// tokens were revoked
func (c *Cache) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	indexKey := userSessionsKey(userID)
	tokens, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("listing user sessions: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := c.client.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, sessionKey(token))
	}
	pipe.SRem(ctx, indexKey, toMembers(tokens)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	return len(tokens), nil
}

func toMembers(tokens []string) []interface{} {
	members := make([]interface{}, len(tokens))
	for i, t := range tokens {
		members[i] = t
	}
	return members
}
