package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache provides the Redis-backed state of the ledger service: cached
// profile totals, sessions, in-flight action locks and rate limits.
type Cache struct {
	client      *redis.Client
	profileTTL  time.Duration
	inFlightTTL time.Duration
	logger      *slog.Logger
}

// NewCache creates a new Redis cache and checks the connection
func NewCache(cfg *config.RedisConfig, cacheCfg *config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewCacheWithClient(client, cacheCfg, logger), nil
}

// NewCacheWithClient wraps an existing client
func NewCacheWithClient(client *redis.Client, cacheCfg *config.CacheConfig, logger *slog.Logger) *Cache {
	return &Cache{
		client:      client,
		profileTTL:  cacheCfg.ProfileTTL,
		inFlightTTL: cacheCfg.InFlightTTL,
		logger:      logger,
	}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// totalsKey returns the Redis key for a profile's cached totals
func totalsKey(userID string) string {
	return fmt.Sprintf("profile:%s:totals", userID)
}

// GetTotals returns the cached totals for a user. The bool is false on a
// cache miss.
func (c *Cache) GetTotals(ctx context.Context, userID string) (domain.Totals, bool, error) {
	result, err := c.client.HGetAll(ctx, totalsKey(userID)).Result()
	if err != nil {
		return domain.Totals{}, false, fmt.Errorf("getting cached totals: %w", err)
	}
	if len(result) == 0 {
		return domain.Totals{}, false, nil
	}

	totals, err := parseTotals(result)
	if err != nil {
		// A corrupt entry is treated as a miss and dropped
		c.logger.Warn("dropping corrupt totals cache entry", "user_id", userID, "error", err)
		_ = c.client.Del(ctx, totalsKey(userID)).Err()
		return domain.Totals{}, false, nil
	}
	return totals, true, nil
}

// SetTotals caches the totals for a user
func (c *Cache) SetTotals(ctx context.Context, userID string, totals domain.Totals) error {
	key := totalsKey(userID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"coins", totals.Coins,
		"xp", totals.XP,
		"badges", totals.Badges,
	)
	pipe.Expire(ctx, key, c.profileTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting cached totals: %w", err)
	}
	return nil
}

// DeleteTotals drops the cached totals for a user
func (c *Cache) DeleteTotals(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, totalsKey(userID)).Err(); err != nil {
		return fmt.Errorf("deleting cached totals: %w", err)
	}
	return nil
}

// fillMissingScript writes each KEYS[i] hash only when it does not exist.
// ARGV is the TTL in milliseconds followed by coins, xp, badges per key.
var fillMissingScript = redis.NewScript(`
local ttl = tonumber(ARGV[1])
local filled = 0
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 0 then
		local base = 1 + (i - 1) * 3
		redis.call('HSET', key, 'coins', ARGV[base + 1], 'xp', ARGV[base + 2], 'badges', ARGV[base + 3])
		if ttl > 0 then
			redis.call('PEXPIRE', key, ttl)
		end
		filled = filled + 1
	end
end
return filled
`)

// FillMissingTotals caches totals for the users that have no cached entry
// and returns how many were written. Existing entries are left alone: they
// were written by a ledger mutation after the totals here were read.
func (c *Cache) FillMissingTotals(ctx context.Context, totals map[string]domain.Totals) (int, error) {
	if len(totals) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(totals))
	args := make([]interface{}, 0, 1+3*len(totals))
	args = append(args, c.profileTTL.Milliseconds())
	for userID, t := range totals {
		keys = append(keys, totalsKey(userID))
		args = append(args, t.Coins, t.XP, t.Badges)
	}

	filled, err := fillMissingScript.Run(ctx, c.client, keys, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("filling cached totals: %w", err)
	}
	return filled, nil
}

func parseTotals(fields map[string]string) (domain.Totals, error) {
	var t domain.Totals
	var err error
	if t.Coins, err = strconv.ParseInt(fields["coins"], 10, 64); err != nil {
		return t, fmt.Errorf("parsing coins: %w", err)
	}
	if t.XP, err = strconv.ParseInt(fields["xp"], 10, 64); err != nil {
		return t, fmt.Errorf("parsing xp: %w", err)
	}
	if t.Badges, err = strconv.ParseInt(fields["badges"], 10, 64); err != nil {
		return t, fmt.Errorf("parsing badges: %w", err)
	}
	return t, nil
}
