package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for orchestrator state in Redis.
func cursorKey(name string) string  { return "cursor:" + name }
func timerKey(gameID string) string { return "game:" + gameID + ":timer" }

// timerSlack delays timer-key expiry slightly past the displayed deadline
// so the wakeup fires after the deadline has actually passed.
const timerSlack = 5 * time.Second

// Get returns a cursor value, or "" if the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, cursorKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %s: %w", key, err)
	}
	return val, nil
}

// Set stores a cursor value.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, cursorKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set cursor %s: %w", key, err)
	}
	return nil
}

// SetTimer creates a timer key expiring just after the deadline. Keyspace
// expiry notifications wake the driver early; the poll loop remains the
// fallback when notifications are unavailable.
func (c *Client) SetTimer(ctx context.Context, gameID string, deadline time.Time) error {
	ttl := time.Until(deadline) + timerSlack
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(gameID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the timer for a game.
func (c *Client) ClearTimer(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, timerKey(gameID)).Err()
}
