package redis

import (
	"context"
	"fmt"
	"time"
)

func rateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// Allow counts one hit against key within a fixed window and reports
// whether the hit is within limit.
func (c *Cache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := rateLimitKey(key)

	count, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate counter: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("setting rate window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// ResetLimit clears the counter for key
func (c *Cache) ResetLimit(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, rateLimitKey(key)).Err(); err != nil {
		return fmt.Errorf("resetting rate counter: %w", err)
	}
	return nil
}
