package redis

import (
	"context"
	"fmt"
)

func inFlightKey(key string) string {
	return fmt.Sprintf("inflight:%s", key)
}

// AcquireInFlight marks an action as in progress. It returns false when the
// same action is already being processed. The marker expires on its own in
// case the holder dies before releasing it.
func (c *Cache) AcquireInFlight(ctx context.Context, key string) (bool, error) {
	ok, err := c.client.SetNX(ctx, inFlightKey(key), 1, c.inFlightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring in-flight marker: %w", err)
	}
	return ok, nil
}

// ReleaseInFlight clears an in-progress marker
func (c *Cache) ReleaseInFlight(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, inFlightKey(key)).Err(); err != nil {
		return fmt.Errorf("releasing in-flight marker: %w", err)
	}
	return nil
}
