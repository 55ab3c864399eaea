package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/relaymesh/messaging-relay/pkg/logger"
)

func TestLimiterAllowsWithinWindow(t *testing.T) {
	t.Parallel()

	l := New("test", Options{Window: time.Minute, MaxRequests: 5, BlockDuration: time.Minute}, logger.NewNop())
	defer l.Close()

	for i := 0; i < 5; i++ {
		res := l.Check("bot1:1.2.3.4")
		if !res.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if want := 5 - i - 1; res.Remaining != want {
			t.Errorf("request %d: Remaining = %d, want %d", i, res.Remaining, want)
		}
	}
}

func TestLimiterBlocksOverLimit(t *testing.T) {
	t.Parallel()

	l := New("test", Options{Window: time.Minute, MaxRequests: 3, BlockDuration: 30 * time.Second}, logger.NewNop())
	defer l.Close()

	for i := 0; i < 3; i++ {
		l.Check("key")
	}

	res := l.Check("key")
	if res.Allowed {
		t.Fatal("request over limit allowed, want denied")
	}
	if res.ResetAt.Before(time.Now()) {
		t.Errorf("ResetAt = %v, want in the future", res.ResetAt)
	}
	until := time.Until(res.ResetAt)
	if until < 25*time.Second || until > 31*time.Second {
		t.Errorf("block duration = %v, want ~30s", until)
	}

	// Subsequent checks stay denied for the whole block, even though the
	// denied attempts do not add timestamps.
	if l.Check("key").Allowed {
		t.Error("request during block allowed, want denied")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New("test", Options{Window: time.Minute, MaxRequests: 2, BlockDuration: time.Minute}, logger.NewNop())
	defer l.Close()

	l.Check("a")
	l.Check("a")
	if l.Check("a").Allowed {
		t.Fatal("key a over limit allowed")
	}
	if !l.Check("b").Allowed {
		t.Error("key b denied, want allowed")
	}
}

func TestLimiterReadmitsAfterBlockExpiry(t *testing.T) {
	t.Parallel()

	l := New("test", Options{Window: 50 * time.Millisecond, MaxRequests: 2, BlockDuration: 50 * time.Millisecond}, logger.NewNop())
	defer l.Close()

	l.Check("key")
	l.Check("key")
	if l.Check("key").Allowed {
		t.Fatal("over-limit request allowed")
	}

	// Wait out both the block and the window so old timestamps expire.
	time.Sleep(120 * time.Millisecond)

	if !l.Check("key").Allowed {
		t.Error("request after block expiry denied, want allowed")
	}
}

func TestLimiterSweepEvictsIdleKeys(t *testing.T) {
	t.Parallel()

	l := New("test", Options{Window: 10 * time.Millisecond, MaxRequests: 100, BlockDuration: time.Minute}, logger.NewNop())
	defer l.Close()

	for i := 0; i < 8; i++ {
		l.Check(fmt.Sprintf("key-%d", i))
	}
	if got := l.Size(); got != 8 {
		t.Fatalf("Size = %d, want 8", got)
	}

	// All keys idle for over 2x the window.
	l.sweep(time.Now().Add(time.Second))

	if got := l.Size(); got != 0 {
		t.Errorf("Size after sweep = %d, want 0", got)
	}
}

func TestLimiterSweepKeepsBlockedKeys(t *testing.T) {
	t.Parallel()

	l := New("test", Options{Window: 10 * time.Millisecond, MaxRequests: 1, BlockDuration: time.Hour}, logger.NewNop())
	defer l.Close()

	l.Check("blocked")
	l.Check("blocked") // trips the block
	l.Check("idle")

	l.sweep(time.Now().Add(time.Second))

	if got := l.Size(); got != 1 {
		t.Errorf("Size after sweep = %d, want 1 (blocked key retained)", got)
	}
}
