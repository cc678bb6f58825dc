// Package cache keeps computed availability in Redis.
//
// Entries are namespaced by a per-canteen version counter. Any write that changes a
// canteen's occupancy bumps the counter, so stale entries are never read again and
// simply expire.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"menza/internal/events"
	"menza/internal/slots"
)

const invalidateTimeout = 2 * time.Second

// AvailabilityCache caches slot lists per canteen and query.
type AvailabilityCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewAvailabilityCache returns a cache backed by client. A nil client or non-positive ttl
// disables caching.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *AvailabilityCache {
	return &AvailabilityCache{redis: client, ttl: ttl, logger: logger}
}

func (c *AvailabilityCache) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func versionKey(canteenID int64) string {
	return fmt.Sprintf("availability:%d:version", canteenID)
}

func (c *AvailabilityCache) entryKey(ctx context.Context, canteenID int64, query string) (string, error) {
	version, err := c.redis.Get(ctx, versionKey(canteenID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("availability:%d:v%d:%s", canteenID, version, query), nil
}

// Get returns cached slots for the canteen and query, plus the entry key to hand to Set
// on a miss. The key pins the canteen version read here, so a change committed while the
// caller computes bumps the version and leaves the later Set unreachable. key is empty
// when the cache is disabled or the version could not be read.
func (c *AvailabilityCache) Get(ctx context.Context, canteenID int64, query string) (s []slots.Slot, key string, ok bool) {
	if !c.enabled() {
		return nil, "", false
	}
	key, err := c.entryKey(ctx, canteenID, query)
	if err != nil {
		c.logger.Debug().Err(err).Int64("canteen_id", canteenID).Msg("availability cache version lookup failed")
		return nil, "", false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, key, false
	}
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, key, false
	}
	return s, key, true
}

// Set stores slots under a key returned by Get. An empty key is ignored.
func (c *AvailabilityCache) Set(ctx context.Context, key string, s []slots.Slot) {
	if !c.enabled() || key == "" {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("availability cache write failed")
	}
}

// Invalidate makes every cached entry of the canteen unreachable.
func (c *AvailabilityCache) Invalidate(ctx context.Context, canteenID int64) {
	if !c.enabled() {
		return
	}
	if err := c.redis.Incr(ctx, versionKey(canteenID)).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("canteen_id", canteenID).Msg("availability cache invalidation failed")
	}
}

// Subscribe invalidates the affected canteens whenever occupancy or configuration changes.
// An update that moved a reservation invalidates both canteens.
func (c *AvailabilityCache) Subscribe(bus *events.EventBus) {
	onReservation := func(e events.Event) error {
		var p events.ReservationPayload
		if err := e.Decode(&p); err != nil {
			return fmt.Errorf("decode reservation payload: %w", err)
		}
		c.invalidate(p.CanteenID)
		if p.PreviousCanteenID != 0 && p.PreviousCanteenID != p.CanteenID {
			c.invalidate(p.PreviousCanteenID)
		}
		return nil
	}
	onCanteen := func(e events.Event) error {
		var p events.CanteenPayload
		if err := e.Decode(&p); err != nil {
			return fmt.Errorf("decode canteen payload: %w", err)
		}
		c.invalidate(p.CanteenID)
		return nil
	}

	bus.Subscribe(events.ReservationCreated, onReservation)
	bus.Subscribe(events.ReservationCancelled, onReservation)
	bus.Subscribe(events.ReservationUpdated, onReservation)
	bus.Subscribe(events.CanteenChanged, onCanteen)
	bus.Subscribe(events.CanteenDeleted, onCanteen)
}

func (c *AvailabilityCache) invalidate(canteenID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	c.Invalidate(ctx, canteenID)
}
