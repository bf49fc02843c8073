package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(testClient(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "binance", 3, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d denied under the limit", i)
		}
	}

	allowed, err := rl.Allow(ctx, "binance", 3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed {
		t.Fatal("fourth request admitted within the window")
	}

	// Entries age out of the trailing window.
	time.Sleep(60 * time.Millisecond)
	allowed, err = rl.Allow(ctx, "binance", 3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("request denied after the window elapsed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(testClient(t))
	ctx := context.Background()

	if allowed, err := rl.Allow(ctx, "binance", 1, time.Second); err != nil || !allowed {
		t.Fatalf("first key: allowed=%v err=%v", allowed, err)
	}
	if allowed, err := rl.Allow(ctx, "kraken", 1, time.Second); err != nil || !allowed {
		t.Fatalf("second key: allowed=%v err=%v", allowed, err)
	}
	if allowed, _ := rl.Allow(ctx, "binance", 1, time.Second); allowed {
		t.Fatal("first key admitted over its own budget")
	}
}
