// Package breaker provides a circuit breaker that stops calling a failing
// dependency for a cooldown period instead of piling up timeouts.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

// State is the breaker state machine position.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// OpenError is returned when the breaker is blocking calls.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %s open, retry in %ds", e.Name, int(e.RetryAfter.Seconds()))
}

// IsOpenError reports whether err is a circuit-open rejection.
func IsOpenError(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

// Options configures a Breaker.
type Options struct {
	// FailureThreshold is the consecutive failures that open the circuit.
	FailureThreshold int
	// Timeout is how long the circuit blocks before allowing a trial call.
	Timeout time.Duration
	// SuccessThreshold is the consecutive half-open successes that close it.
	SuccessThreshold int
	// ResetTimeout clears a closed circuit's failure streak once it has
	// been failure-free for this long, so failures trickling in over
	// hours never add up to a trip.
	ResetTimeout time.Duration
}

// Breaker guards one named dependency. State is process-lifetime only and
// resets on restart.
type Breaker struct {
	name   string
	opts   Options
	logger *logger.Logger

	mu              sync.Mutex
	state           State
	consecFailures  int
	consecSuccesses int
	lastFailure     time.Time
	nextAttempt     time.Time

	// Cumulative counters for metrics; transitions are driven by the
	// consecutive counters only.
	totalFailures  int64
	totalSuccesses int64
}

// New creates a closed breaker.
func New(name string, opts Options, log *logger.Logger) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = 2
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 2 * time.Minute
	}

	b := &Breaker{
		name:   name,
		opts:   opts,
		logger: log,
		state:  Closed,
	}
	metrics.BreakerState.WithLabelValues(name).Set(0)
	return b
}

// Execute runs op unless the circuit is blocking. The op's own error is
// propagated after being recorded.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}

	now := time.Now()
	if now.Before(b.nextAttempt) {
		return &OpenError{Name: b.name, RetryAfter: b.nextAttempt.Sub(now)}
	}

	// Cooldown elapsed: let one trial call through.
	b.setState(HalfOpen)
	b.consecSuccesses = 0
	return nil
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.state == Closed && !b.lastFailure.IsZero() && now.Sub(b.lastFailure) >= b.opts.ResetTimeout {
		// The previous streak went quiet long enough to be stale.
		b.consecFailures = 0
	}
	b.lastFailure = now

	b.totalFailures++
	b.consecFailures++
	b.consecSuccesses = 0

	switch b.state {
	case HalfOpen:
		// Any half-open failure reopens immediately.
		b.trip()
	case Closed:
		if b.consecFailures >= b.opts.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.consecFailures = 0

	if b.state == HalfOpen {
		b.consecSuccesses++
		if b.consecSuccesses >= b.opts.SuccessThreshold {
			b.setState(Closed)
			b.logger.Info("circuit closed", zap.String("breaker", b.name))
		}
	}
}

// trip opens the circuit; caller holds b.mu.
func (b *Breaker) trip() {
	b.setState(Open)
	b.nextAttempt = time.Now().Add(b.opts.Timeout)
	b.logger.Warn("circuit opened",
		zap.String("breaker", b.name),
		zap.Int("consecutive_failures", b.consecFailures),
		zap.Time("next_attempt", b.nextAttempt),
	)
}

// setState updates state and the exported gauge; caller holds b.mu.
func (b *Breaker) setState(s State) {
	b.state = s
	var v float64
	switch s {
	case HalfOpen:
		v = 1
	case Open:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(b.name).Set(v)
}

// Snapshot is a read-only view of breaker state.
type Snapshot struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	Failures       int64     `json:"failures"`
	Successes      int64     `json:"successes"`
	ConsecFailures int       `json:"consecutive_failures"`
	NextAttempt    time.Time `json:"next_attempt,omitempty"`
}

// Stats returns the current breaker state and counters.
func (b *Breaker) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:           b.name,
		State:          b.state,
		Failures:       b.totalFailures,
		Successes:      b.totalSuccesses,
		ConsecFailures: b.consecFailures,
		NextAttempt:    b.nextAttempt,
	}
}
