package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func TestLockManagerExcludesSecondHolder(t *testing.T) {
	lm := NewLockManager(testClient(t))
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "exec:BTC/USDT", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "exec:BTC/USDT", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}

	// Different key is an independent lock.
	unlockOther, err := lm.Acquire(ctx, "exec:ETH/USDT", time.Minute)
	if err != nil {
		t.Fatalf("acquire other key: %v", err)
	}
	unlockOther()

	unlock()
	unlock() // second release is a no-op

	unlock2, err := lm.Acquire(ctx, "exec:BTC/USDT", time.Minute)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	unlock2()
}
