package slotcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/redis/go-redis/v9"
)

func newRedisCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Minute, nil), mr
}

func joinSlots(slots []availability.Clock) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ",")
}

func TestEntryKeyChangesWithVersions(t *testing.T) {
	date := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	base := entryKey("t1", "p1", date, 0, 0)
	if base != "slots:t1:p1:v0.0:2026-01-26" {
		t.Fatalf("unexpected key %q", base)
	}
	if entryKey("t1", "p1", date, 1, 0) == base || entryKey("t1", "p1", date, 0, 1) == base {
		t.Fatal("bumping either version must change the key")
	}
	if entryKey("t2", "p1", date, 0, 0) == base {
		t.Fatal("keys must be tenant scoped")
	}
}

func TestVersionOf(t *testing.T) {
	if versionOf(nil) != 0 || versionOf("7") != 7 || versionOf("x") != 0 {
		t.Fatal("unexpected version parsing")
	}
}

func TestSlotsCodec(t *testing.T) {
	raw, err := encodeSlots(nil)
	if err != nil || string(raw) != "[]" {
		t.Fatalf("encode nil = %s, %v", raw, err)
	}
	raw, err = encodeSlots([]availability.Clock{availability.MustClock("09:00"), availability.MustClock("09:30")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != `["09:00","09:30"]` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	got, err := decodeSlots(raw)
	if err != nil || len(got) != 2 || got[1] != availability.MustClock("09:30") {
		t.Fatalf("decode = %v, %v", got, err)
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := New(nil, time.Minute, nil)
	date := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	_, key, ok := c.Get(context.Background(), "t1", "p1", date, 60)
	if ok || key != "" {
		t.Fatalf("disabled cache must miss without a key, got %q", key)
	}
	c.Put(context.Background(), "t1/p1", 60, []availability.Clock{540})
	c.InvalidateDay(context.Background(), "t1", "p1", date)
	c.InvalidateProfessional(context.Background(), "t1", "p1")
}

func TestPutGetRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	date := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)

	_, key, ok := c.Get(ctx, "t1", "p1", date, 60)
	if ok || key != "slots:t1:p1:v0.0:2026-01-26" {
		t.Fatalf("first lookup: hit=%v key=%q", ok, key)
	}
	c.Put(ctx, key, 60, []availability.Clock{availability.MustClock("09:00"), availability.MustClock("10:00")})

	slots, _, ok := c.Get(ctx, "t1", "p1", date, 60)
	if !ok || joinSlots(slots) != "09:00,10:00" {
		t.Fatalf("expected cached slots, got hit=%v %v", ok, slots)
	}
	if _, _, ok := c.Get(ctx, "t1", "p1", date, 90); ok {
		t.Fatal("another duration must miss")
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("entry ttl = %s", ttl)
	}
}

func TestLatePutAfterDayInvalidationIsNeverRead(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()
	date := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)

	_, key, ok := c.Get(ctx, "t1", "p1", date, 60)
	if ok {
		t.Fatal("expected a miss on an empty cache")
	}
	// A booking commits and invalidates the day while the slots are being computed.
	c.InvalidateDay(ctx, "t1", "p1", date)
	c.Put(ctx, key, 60, []availability.Clock{availability.MustClock("09:00"), availability.MustClock("10:00")})

	if slots, _, ok := c.Get(ctx, "t1", "p1", date, 60); ok {
		t.Fatalf("list computed before the invalidation was served: %v", slots)
	}
}

func TestInvalidationScopes(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	mon := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)

	for _, d := range []time.Time{mon, tue} {
		_, key, _ := c.Get(ctx, "t1", "p1", d, 60)
		c.Put(ctx, key, 60, []availability.Clock{availability.MustClock("09:00")})
	}
	_, key, _ := c.Get(ctx, "t2", "p1", mon, 60)
	c.Put(ctx, key, 60, []availability.Clock{availability.MustClock("09:00")})

	c.InvalidateDay(ctx, "t1", "p1", mon)
	if _, _, ok := c.Get(ctx, "t1", "p1", mon, 60); ok {
		t.Fatal("invalidated day must miss")
	}
	if _, _, ok := c.Get(ctx, "t1", "p1", tue, 60); !ok {
		t.Fatal("other days must stay cached")
	}
	if ttl := mr.TTL("slots:t1:p1:2026-01-26:ver"); ttl != dayVersionTTL {
		t.Fatalf("day version ttl = %s", ttl)
	}

	c.InvalidateProfessional(ctx, "t1", "p1")
	if _, _, ok := c.Get(ctx, "t1", "p1", tue, 60); ok {
		t.Fatal("schedule change must invalidate every day")
	}
	if _, _, ok := c.Get(ctx, "t2", "p1", mon, 60); !ok {
		t.Fatal("other tenants must stay cached")
	}
}

func TestRedisFailureIsAMiss(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	date := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	mr.Close()

	slots, key, ok := c.Get(ctx, "t1", "p1", date, 60)
	if ok || key != "" || slots != nil {
		t.Fatalf("unavailable redis must miss, got hit=%v key=%q", ok, key)
	}
	c.Put(ctx, key, 60, []availability.Clock{540})
	c.InvalidateDay(ctx, "t1", "p1", date)
}
