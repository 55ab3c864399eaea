package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaymesh/messaging-relay/pkg/logger"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(0, func(context.Context) {}, logger.NewNop()); err == nil {
		t.Error("New with zero interval succeeded")
	}
	if _, err := New(time.Second, nil, logger.NewNop()); err == nil {
		t.Error("New with nil tickFn succeeded")
	}
}

func TestSchedulerTicksImmediatelyAndPeriodically(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	s, err := New(20*time.Millisecond, func(context.Context) { ticks.Add(1) }, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !s.Start() {
		t.Fatal("Start returned false")
	}
	defer s.Stop()

	// First tick fires on Start, not after the first interval.
	waitFor(t, time.Second, func() bool { return ticks.Load() >= 1 })
	waitFor(t, time.Second, func() bool { return ticks.Load() >= 3 })
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := New(time.Hour, func(context.Context) {}, logger.NewNop())

	if s.IsRunning() {
		t.Fatal("running before Start")
	}
	if !s.Start() {
		t.Fatal("first Start returned false")
	}
	if s.Start() {
		t.Error("second Start returned true")
	}
	if !s.IsRunning() {
		t.Error("not running after Start")
	}

	if !s.Stop() {
		t.Error("first Stop returned false")
	}
	if s.Stop() {
		t.Error("second Stop returned true")
	}
	if s.IsRunning() {
		t.Error("running after Stop")
	}
}

func TestSchedulerRestart(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	s, _ := New(time.Hour, func(context.Context) { ticks.Add(1) }, logger.NewNop())

	s.Start()
	s.Stop()
	first := ticks.Load()

	if !s.Start() {
		t.Fatal("restart returned false")
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return ticks.Load() > first })
}

func TestSchedulerRecoversFromTickPanic(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	s, _ := New(10*time.Millisecond, func(context.Context) {
		if ticks.Add(1) == 1 {
			panic("tick exploded")
		}
	}, logger.NewNop())

	s.Start()
	defer s.Stop()

	// The loop survives the first tick's panic and keeps ticking.
	waitFor(t, time.Second, func() bool { return ticks.Load() >= 3 })
}

func TestSchedulerStopWaitsForTick(t *testing.T) {
	t.Parallel()

	tickDone := make(chan struct{})
	started := make(chan struct{}, 1)
	s, _ := New(time.Hour, func(ctx context.Context) {
		started <- struct{}{}
		<-tickDone
	}, logger.NewNop())

	s.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(tickDone)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after tick finished")
	}
}
