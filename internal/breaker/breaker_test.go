package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaymesh/messaging-relay/pkg/logger"
)

var errDependency = errors.New("dependency down")

func failing(ctx context.Context) error { return errDependency }
func succeeding(ctx context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := New("test", Options{FailureThreshold: 3, Timeout: time.Minute}, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failing); !errors.Is(err, errDependency) {
			t.Fatalf("call %d: err = %v, want dependency error", i, err)
		}
	}

	if got := b.Stats().State; got != Open {
		t.Fatalf("state = %q, want %q", got, Open)
	}

	// Open circuit rejects without invoking the operation.
	invoked := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !IsOpenError(err) {
		t.Fatalf("err = %v, want OpenError", err)
	}
	if invoked {
		t.Error("operation invoked while circuit open")
	}

	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatal("expected *OpenError")
	}
	if oe.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", oe.RetryAfter)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := New("test", Options{FailureThreshold: 3, Timeout: time.Minute}, logger.NewNop())
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	b.Execute(ctx, succeeding)
	b.Execute(ctx, failing)
	b.Execute(ctx, failing)

	if got := b.Stats().State; got != Closed {
		t.Errorf("state = %q, want %q (success should reset the streak)", got, Closed)
	}
}

func TestBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	t.Parallel()

	b := New("test", Options{
		FailureThreshold: 2,
		Timeout:          20 * time.Millisecond,
		SuccessThreshold: 2,
	}, logger.NewNop())
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	if got := b.Stats().State; got != Open {
		t.Fatalf("state = %q, want %q", got, Open)
	}

	time.Sleep(30 * time.Millisecond)

	// First trial call moves the circuit to half-open.
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if got := b.Stats().State; got != HalfOpen {
		t.Fatalf("state = %q, want %q", got, HalfOpen)
	}

	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("second trial call: %v", err)
	}
	if got := b.Stats().State; got != Closed {
		t.Errorf("state = %q, want %q", got, Closed)
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	t.Parallel()

	b := New("test", Options{
		FailureThreshold: 2,
		Timeout:          20 * time.Millisecond,
		SuccessThreshold: 2,
	}, logger.NewNop())
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	time.Sleep(30 * time.Millisecond)

	if err := b.Execute(ctx, failing); !errors.Is(err, errDependency) {
		t.Fatalf("trial call err = %v, want dependency error", err)
	}
	if got := b.Stats().State; got != Open {
		t.Errorf("state = %q, want %q (half-open failure reopens)", got, Open)
	}

	// And the fresh cooldown blocks again.
	if err := b.Execute(ctx, succeeding); !IsOpenError(err) {
		t.Errorf("err = %v, want OpenError", err)
	}
}

func TestBreakerQuietPeriodResetsFailureStreak(t *testing.T) {
	t.Parallel()

	b := New("test", Options{
		FailureThreshold: 3,
		Timeout:          time.Minute,
		ResetTimeout:     30 * time.Millisecond,
	}, logger.NewNop())
	ctx := context.Background()

	// Two failures, then a failure-free stretch past the reset timeout.
	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	time.Sleep(40 * time.Millisecond)

	// The stale streak no longer counts toward the threshold.
	b.Execute(ctx, failing)
	b.Execute(ctx, failing)
	if got := b.Stats().State; got != Closed {
		t.Fatalf("state = %q, want %q (stale failures should not accumulate)", got, Closed)
	}

	// A rapid third failure completes a fresh streak.
	b.Execute(ctx, failing)
	if got := b.Stats().State; got != Open {
		t.Errorf("state = %q, want %q", got, Open)
	}
}

func TestBreakerCumulativeCounters(t *testing.T) {
	t.Parallel()

	b := New("test", Options{FailureThreshold: 10, Timeout: time.Minute}, logger.NewNop())
	ctx := context.Background()

	b.Execute(ctx, failing)
	b.Execute(ctx, succeeding)
	b.Execute(ctx, failing)

	stats := b.Stats()
	if stats.Failures != 2 {
		t.Errorf("Failures = %d, want 2", stats.Failures)
	}
	if stats.Successes != 1 {
		t.Errorf("Successes = %d, want 1", stats.Successes)
	}
	if stats.ConsecFailures != 1 {
		t.Errorf("ConsecFailures = %d, want 1", stats.ConsecFailures)
	}
}
