// Package slotcache keeps computed slot lists in Redis. Entries are addressed through two version counters,
// one per professional (bumped on schedule changes) and one per day (bumped on bookings and status changes),
// so invalidation is an INCR and stale entries simply age out.
package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/redis/go-redis/v9"
)

// dayVersionTTL outlives any cached entry so a counter never resets while entries under it are alive.
const dayVersionTTL = 48 * time.Hour

type Cache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// New returns a cache; a nil client disables it and every lookup misses.
func New(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil
}

// Get returns the cached slots of (professional, date, duration) and the entry key it looked under.
// On a miss the caller computes the slots and hands that same key to Put, so a list computed before an
// invalidation lands under the old versions and is never read again. Errors are logged and reported as a
// miss with an empty key.
func (c *Cache) Get(ctx context.Context, tenantID, professionalID string, date time.Time, duration int) ([]availability.Clock, string, bool) {
	if !c.enabled() {
		return nil, "", false
	}
	key, err := c.entryKey(ctx, tenantID, professionalID, date)
	if err != nil {
		c.warn("slot cache version lookup failed", err)
		return nil, "", false
	}
	raw, err := c.rdb.HGet(ctx, key, strconv.Itoa(duration)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("slot cache read failed", err)
		}
		return nil, key, false
	}
	slots, err := decodeSlots(raw)
	if err != nil {
		c.warn("slot cache entry corrupt", err)
		return nil, key, false
	}
	return slots, key, true
}

// Put stores slots under the entry key returned by Get. An empty key is ignored.
func (c *Cache) Put(ctx context.Context, key string, duration int, slots []availability.Clock) {
	if !c.enabled() || key == "" {
		return
	}
	raw, err := encodeSlots(slots)
	if err != nil {
		c.warn("slot cache encode failed", err)
		return
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(duration), raw)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.warn("slot cache write failed", err)
	}
}

// InvalidateProfessional drops every cached day of the professional.
func (c *Cache) InvalidateProfessional(ctx context.Context, tenantID, professionalID string) {
	if !c.enabled() {
		return
	}
	if err := c.rdb.Incr(ctx, professionalVersionKey(tenantID, professionalID)).Err(); err != nil {
		c.warn("slot cache professional invalidation failed", err)
	}
}

// InvalidateDay drops the cached slots of one day.
func (c *Cache) InvalidateDay(ctx context.Context, tenantID, professionalID string, date time.Time) {
	if !c.enabled() {
		return
	}
	key := dayVersionKey(tenantID, professionalID, date)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dayVersionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.warn("slot cache day invalidation failed", err)
	}
}

func (c *Cache) entryKey(ctx context.Context, tenantID, professionalID string, date time.Time) (string, error) {
	vals, err := c.rdb.MGet(ctx, professionalVersionKey(tenantID, professionalID), dayVersionKey(tenantID, professionalID, date)).Result()
	if err != nil {
		return "", err
	}
	return entryKey(tenantID, professionalID, date, versionOf(vals[0]), versionOf(vals[1])), nil
}

func (c *Cache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, "err", err)
	}
}

func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}

func professionalVersionKey(tenantID, professionalID string) string {
	return fmt.Sprintf("slots:%s:%s:ver", tenantID, professionalID)
}

func dayVersionKey(tenantID, professionalID string, date time.Time) string {
	return fmt.Sprintf("slots:%s:%s:%s:ver", tenantID, professionalID, date.Format(availability.DateLayout))
}

func entryKey(tenantID, professionalID string, date time.Time, profVersion, dayVersion int64) string {
	return fmt.Sprintf("slots:%s:%s:v%d.%d:%s", tenantID, professionalID, profVersion, dayVersion, date.Format(availability.DateLayout))
}

func versionOf(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func encodeSlots(slots []availability.Clock) ([]byte, error) {
	if slots == nil {
		slots = []availability.Clock{}
	}
	return json.Marshal(slots)
}

func decodeSlots(raw []byte) ([]availability.Clock, error) {
	var slots []availability.Clock
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}
