package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestManager_UsesPrimaryWhenRedisDisabled(t *testing.T) {
	primary := NewMemoryStore(nil)
	calls := 0
	manager := NewManager(primary, func() RedisSettings {
		return RedisSettings{Enabled: false}
	}, nil, func(options *redis.Options) *redis.Client {
		calls++
		return redis.NewClient(options)
	})

	ctx := context.Background()
	if errSet := manager.Set(ctx, "k", []byte("v"), 0); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	value, err := primary.Get(ctx, "k")
	if err != nil || string(value) != "v" {
		t.Fatalf("expected primary to hold value, got %q err=%v", value, err)
	}
	if calls != 0 {
		t.Fatalf("expected no redis client, got %d", calls)
	}
}

func TestManager_FallsBackAndTripsBreaker(t *testing.T) {
	primary := NewMemoryStore(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	manager := NewManager(primary, func() RedisSettings {
		return RedisSettings{Enabled: true, Addr: "127.0.0.1:1", Prefix: "test"}
	}, func() time.Time { return now }, func(options *redis.Options) *redis.Client {
		calls++
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	})

	ctx := context.Background()
	if errSet := manager.Set(ctx, "k", []byte("v"), 0); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if _, err := primary.Get(ctx, "k"); err != nil {
		t.Fatalf("expected fallback write to primary, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one redis attempt, got %d", calls)
	}

	// Breaker is open: no new client within the breaker window.
	if _, err := manager.Get(ctx, "k"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected breaker to skip redis, got %d attempts", calls)
	}

	now = now.Add(redisBreakerDuration + time.Second)
	_, _ = manager.Get(ctx, "k")
	if calls != 2 {
		t.Fatalf("expected retry after breaker window, got %d attempts", calls)
	}
}
