package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sylvester-francis/Resource-Reserver-sub000/config"
)

// NewClient connects the cache client and verifies the connection with a
// short ping so a bad address fails at startup, not on first use.
func NewClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisCacheDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ScheduleTTL bounds staleness of cached day schedules. Writes invalidate
// eagerly; the TTL only covers invalidations lost to a crash.
const ScheduleTTL = 5 * time.Minute

// ScheduleCache memoizes per-resource day schedules. Keys are segmented by
// resource and date so invalidation on a booking only evicts the days it
// touches.
type ScheduleCache struct {
	client *redis.Client
}

func NewScheduleCache(client *redis.Client) *ScheduleCache {
	return &ScheduleCache{client: client}
}

func scheduleKey(resourceID uint, day string) string {
	return fmt.Sprintf("schedule:%d:%s", resourceID, day)
}

// Get loads a cached schedule into dest. The second return is false on a
// cache miss; cache errors are reported as misses so callers fall through to
// the database.
func (c *ScheduleCache) Get(ctx context.Context, resourceID uint, day string, dest any) bool {
	raw, err := c.client.Get(ctx, scheduleKey(resourceID, day)).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false
	}
	return true
}

// Set stores a day schedule. Failures are swallowed: the cache is an
// optimization, never a source of truth.
func (c *ScheduleCache) Set(ctx context.Context, resourceID uint, day string, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, scheduleKey(resourceID, day), body, ScheduleTTL)
}

// InvalidateDays evicts the cached schedules for the given resource days.
func (c *ScheduleCache) InvalidateDays(ctx context.Context, resourceID uint, days []string) {
	if len(days) == 0 {
		return
	}
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = scheduleKey(resourceID, d)
	}
	c.client.Del(ctx, keys...)
}

// InvalidateResource evicts every cached day for one resource. Used when the
// catalog pushes a resource update that can change any day's availability.
func (c *ScheduleCache) InvalidateResource(ctx context.Context, resourceID uint) {
	pattern := fmt.Sprintf("schedule:%d:*", resourceID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
