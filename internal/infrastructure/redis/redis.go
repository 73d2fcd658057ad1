package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
)

const (
	userKeyPrefix      = "user:"
	processedKeyPrefix = "processed_event:"
)

// Cache wraps the Redis client for the two key families this service owns:
// user records (cache-aside for order validation) and processed-event
// markers (consumer idempotency fence).
type Cache struct {
	Client       *redis.Client
	userTTL      time.Duration
	processedTTL time.Duration
}

func New(addr, pass string, db int, userTTL, processedTTL time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb, userTTL: userTTL, processedTTL: processedTTL}
}

// GetUser returns the cached user record, or nil on a miss.
func (c *Cache) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	val, err := c.Client.Get(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var u domain.User
	if err := json.Unmarshal([]byte(val), &u); err != nil {
		// corrupt entry: treat as miss, next write repairs it
		return nil, nil
	}
	return &u, nil
}

func (c *Cache) SetUser(ctx context.Context, u *domain.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, userKeyPrefix+u.UserID, raw, c.userTTL).Err()
}

func (c *Cache) DeleteUser(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, userKeyPrefix+userID).Err()
}

// SeenEvent reports whether eventID was already processed.
func (c *Cache) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	n, err := c.Client.Exists(ctx, processedKeyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventProcessed records eventID for the dedupe window.
func (c *Cache) MarkEventProcessed(ctx context.Context, eventID string) error {
	return c.Client.Set(ctx, processedKeyPrefix+eventID, "1", c.processedTTL).Err()
}

// Ping is used by the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
