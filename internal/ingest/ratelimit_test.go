package ingest

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRateLimiter_NoLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	for _, limit := range []int{0, -1} {
		rl := NewRateLimiter(client, limit)
		for range 100 {
			if !rl.Allow(ctx) {
				t.Fatalf("Allow should return true when limit is %d", limit)
			}
		}
	}
}

func TestRateLimiter_WithLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(client, 5)

	for i := range 5 {
		if !rl.Allow(ctx) {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow(ctx) {
		t.Error("request 6 should be rate limited")
	}

	rate, err := rl.CurrentRate(ctx)
	if err != nil {
		t.Fatalf("CurrentRate: %v", err)
	}
	if rate != 5 {
		t.Errorf("CurrentRate = %d, want 5", rate)
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(client, 1)

	if !rl.Allow(ctx) {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow(ctx) {
		t.Fatal("second request should be limited")
	}
	if err := rl.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !rl.Allow(ctx) {
		t.Error("request after reset should be allowed")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRateLimiter(client, 1).WithKey("relay-a")
	b := a.WithKey("relay-b")

	if !a.Allow(ctx) || !b.Allow(ctx) {
		t.Fatal("each key should admit its first request")
	}
	if a.Allow(ctx) {
		t.Error("relay-a should be limited")
	}
	if !mr.Exists("relayproxy:ratelimit:relay-a") {
		t.Error("expected namespaced key in redis")
	}
	if b.Limit() != 1 {
		t.Errorf("Limit = %d, want 1", b.Limit())
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(client, 1)

	mr.Close()

	for range 3 {
		if !rl.Allow(ctx) {
			t.Fatal("Allow should fail open when redis is down")
		}
	}
}
