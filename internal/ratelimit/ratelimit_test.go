package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newLimiter(t *testing.T, cfg Config) (*FixedWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFixedWindow(client, cfg), mr
}

func TestFixedWindowAllowsUpToLimit(t *testing.T) {
	limiter, _ := newLimiter(t, Config{Limit: 100, Window: 1440 * time.Minute, Prefix: "imagen"})
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		res, err := limiter.Limit(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("request %d was rejected", i)
		}
		if res.Remaining != int64(100-i) {
			t.Fatalf("request %d: remaining = %d", i, res.Remaining)
		}
	}

	res, err := limiter.Limit(ctx, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Remaining != 0 {
		t.Fatalf("request 101 should be rejected, got %+v", res)
	}
}

func TestFixedWindowIdentifiersAreIndependent(t *testing.T) {
	limiter, _ := newLimiter(t, Config{Limit: 1, Window: time.Hour})
	ctx := context.Background()

	if res, _ := limiter.Limit(ctx, "a"); !res.Success {
		t.Fatal("first hit for a rejected")
	}
	if res, _ := limiter.Limit(ctx, "b"); !res.Success {
		t.Fatal("first hit for b rejected")
	}
	if res, _ := limiter.Limit(ctx, "a"); res.Success {
		t.Fatal("second hit for a accepted")
	}
}

func TestFixedWindowResetsInNextWindow(t *testing.T) {
	limiter, _ := newLimiter(t, Config{Limit: 1, Window: time.Hour})
	now := time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	first, _ := limiter.Limit(ctx, "a")
	if !first.Success {
		t.Fatal("first hit rejected")
	}
	if want := time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC).UnixMilli(); first.Reset != want {
		t.Fatalf("reset = %d, want %d", first.Reset, want)
	}
	if res, _ := limiter.Limit(ctx, "a"); res.Success {
		t.Fatal("second hit in the same window accepted")
	}

	now = now.Add(time.Hour)
	if res, _ := limiter.Limit(ctx, "a"); !res.Success {
		t.Fatal("first hit of the next window rejected")
	}
}

func TestFixedWindowKeyExpires(t *testing.T) {
	limiter, mr := newLimiter(t, Config{Limit: 5, Window: time.Minute, Prefix: "test"})
	if _, err := limiter.Limit(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one counter key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	mr.FastForward(time.Minute)
	if mr.Exists(keys[0]) {
		t.Fatal("counter should expire with its window")
	}
}

func TestFixedWindowDefaults(t *testing.T) {
	limiter := NewFixedWindow(nil, Config{})
	if limiter.limit != 100 || limiter.window != 1440*time.Minute || limiter.prefix != "imagen" {
		t.Fatalf("unexpected defaults %+v", limiter)
	}
}

func TestFixedWindowRedisDown(t *testing.T) {
	limiter, mr := newLimiter(t, Config{Limit: 1, Window: time.Minute})
	mr.Close()
	if _, err := limiter.Limit(context.Background(), "a"); err == nil {
		t.Fatal("expected an error when redis is unreachable")
	}
}
