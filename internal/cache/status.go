// Package cache keeps projected slot statuses in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"groundslot/internal/events"
	"groundslot/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StatusCache stores status projections per (ground, date). Entries are
// keyed by a per-ground generation that every write bumps, so a reader that
// raced a writer can only store under a generation nobody reads anymore.
// The cache never decides correctness; every failure degrades to a miss.
type StatusCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewStatusCache returns nil when caching is disabled. A nil *StatusCache is
// safe to use and always misses.
func NewStatusCache(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *StatusCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StatusCache{redis: rdb, ttl: ttl, logger: logger}
}

func generationKey(groundID int64) string {
	return fmt.Sprintf("slots:gen:%d", groundID)
}

// Lookup fills out from the cache. The returned key must be passed to Store
// after a miss; it is empty when the cache is unavailable.
func (c *StatusCache) Lookup(ctx context.Context, groundID int64, date time.Time, out any) (string, bool) {
	if c == nil {
		return "", false
	}

	gen, err := c.redis.Get(ctx, generationKey(groundID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Debug().Err(err).Msg("status cache unavailable")
		return "", false
	}

	key := fmt.Sprintf("slots:%d:%s:%d", groundID, date.Format(model.DateLayout), gen)
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return key, false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return key, false
	}
	return key, true
}

// Store writes val under a key obtained from Lookup.
func (c *StatusCache) Store(ctx context.Context, key string, val any) {
	if c == nil || key == "" {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops every cached date of a ground.
func (c *StatusCache) Invalidate(ctx context.Context, groundID int64) error {
	if c == nil {
		return nil
	}
	return c.redis.Incr(ctx, generationKey(groundID)).Err()
}

// Subscribe invalidates the cache on every slot-affecting event.
func (c *StatusCache) Subscribe(bus *events.EventBus) {
	if c == nil || bus == nil {
		return
	}
	bus.Subscribe(func(e events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return c.Invalidate(ctx, e.GroundID)
	}, events.SlotTypes...)
}
