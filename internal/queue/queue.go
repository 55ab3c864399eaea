// Package queue provides a bounded-concurrency async task runner with
// retry and exponential backoff. The backlog is unbounded: under burst the
// system degrades via latency rather than rejecting work.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

// ErrTaskTimeout marks a task execution that exceeded the per-task timeout.
var ErrTaskTimeout = errors.New("task execution timed out")

const (
	defaultConcurrency = 10
	defaultTaskTimeout = 30 * time.Second
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 10 * time.Second
	errorRingSize      = 100
	recentErrorWindow  = 60 * time.Second
)

// Operation is one unit of asynchronous work.
type Operation func(ctx context.Context) error

type task struct {
	id         string
	op         Operation
	maxRetries int
	attempt    int
	enqueuedAt time.Time
}

// TaskError is one recorded task failure.
type TaskError struct {
	TaskID     string    `json:"task_id"`
	Err        string    `json:"error"`
	Attempts   int       `json:"attempts"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Health classifies queue condition for readiness reporting.
type Health string

const (
	Healthy   Health = "healthy"
	Degraded  Health = "degraded"
	Unhealthy Health = "unhealthy"
)

// Snapshot is a read-only view of queue state.
type Snapshot struct {
	Processed    int64       `json:"processed"`
	Failed       int64       `json:"failed"`
	Queued       int         `json:"queued"`
	Active       int         `json:"active"`
	Utilization  float64     `json:"utilization"`
	Health       Health      `json:"health"`
	RecentErrors []TaskError `json:"recent_errors,omitempty"`
}

// Options configures a Queue.
type Options struct {
	Concurrency int
	TaskTimeout time.Duration
	BaseBackoff time.Duration
}

// Queue runs tasks with bounded parallelism and FIFO dispatch. Retried
// tasks re-enter at the front of the backlog after their backoff delay,
// so catch-up work overtakes fresh submissions.
type Queue struct {
	concurrency int
	taskTimeout time.Duration
	baseBackoff time.Duration
	logger      *logger.Logger

	mu        sync.Mutex
	backlog   []*task
	active    int
	processed int64
	failed    int64
	errorRing []TaskError
	errorNext int
	closed    bool

	notify chan struct{}
	done   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates and starts a queue.
func New(opts Options, log *logger.Logger) *Queue {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}

	q := &Queue{
		concurrency: opts.Concurrency,
		taskTimeout: opts.TaskTimeout,
		baseBackoff: opts.BaseBackoff,
		logger:      log,
		errorRing:   make([]TaskError, 0, errorRingSize),
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}, opts.Concurrency),
		stop:        make(chan struct{}),
	}

	go q.dispatch()
	return q
}

// Enqueue accepts a task and returns immediately. The id is used for
// logging only; duplicate ids are not coalesced.
func (q *Queue) Enqueue(id string, op Operation, maxRetries int) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	t := &task{
		id:         id,
		op:         op,
		maxRetries: maxRetries,
		enqueuedAt: time.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("task rejected, queue closed", zap.String("task_id", id))
		return
	}
	q.backlog = append(q.backlog, t)
	depth := len(q.backlog)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		var next *task
		if len(q.backlog) > 0 && q.active < q.concurrency {
			next = q.backlog[0]
			q.backlog = q.backlog[1:]
			q.active++
		}
		depth := len(q.backlog)
		active := q.active
		q.mu.Unlock()

		metrics.QueueDepth.Set(float64(depth))
		metrics.QueueActive.Set(float64(active))

		if next != nil {
			q.wg.Add(1)
			go q.run(next)
			continue
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) run(t *task) {
	defer q.wg.Done()

	err := q.execute(t)

	q.mu.Lock()
	q.active--
	q.mu.Unlock()

	if err == nil {
		q.mu.Lock()
		q.processed++
		q.mu.Unlock()
		metrics.QueueTasksTotal.WithLabelValues("processed").Inc()
		q.signalDone()
		return
	}

	if t.attempt < t.maxRetries {
		t.attempt++
		delay := q.backoff(t.attempt)
		q.logger.Warn("task failed, retrying",
			zap.String("task_id", t.id),
			zap.Int("attempt", t.attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		// Re-enter at the front once the backoff elapses: catching up
		// takes priority over fresh work.
		time.AfterFunc(delay, func() { q.requeueFront(t) })
		q.signalDone()
		return
	}

	q.mu.Lock()
	q.failed++
	q.recordError(TaskError{
		TaskID:     t.id,
		Err:        err.Error(),
		Attempts:   t.attempt + 1,
		OccurredAt: time.Now(),
	})
	q.mu.Unlock()

	metrics.QueueTasksTotal.WithLabelValues("failed").Inc()
	q.logger.Error("task dropped after retries",
		zap.String("task_id", t.id),
		zap.Int("attempts", t.attempt+1),
		zap.Error(err),
	)
	q.signalDone()
}

func (q *Queue) execute(t *task) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.taskTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- t.op(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ErrTaskTimeout
	}
}

func (q *Queue) requeueFront(t *task) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.backlog = append([]*task{t}, q.backlog...)
	q.mu.Unlock()
	q.wake()
}

func (q *Queue) signalDone() {
	select {
	case q.done <- struct{}{}:
	default:
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := q.baseBackoff << uint(attempt-1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// recordError appends to the bounded ring; caller holds q.mu.
func (q *Queue) recordError(e TaskError) {
	if len(q.errorRing) < errorRingSize {
		q.errorRing = append(q.errorRing, e)
		return
	}
	q.errorRing[q.errorNext] = e
	q.errorNext = (q.errorNext + 1) % errorRingSize
}

// Stats returns a snapshot of queue state and health.
func (q *Queue) Stats() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-recentErrorWindow)
	recent := 0
	errs := make([]TaskError, 0, len(q.errorRing))
	for _, e := range q.errorRing {
		errs = append(errs, e)
		if e.OccurredAt.After(cutoff) {
			recent++
		}
	}

	depth := len(q.backlog)
	health := Healthy
	switch {
	case recent < 10 && depth < 100:
		health = Healthy
	case recent <= 50 || depth <= 500:
		health = Degraded
	default:
		health = Unhealthy
	}

	return Snapshot{
		Processed:    q.processed,
		Failed:       q.failed,
		Queued:       depth,
		Active:       q.active,
		Utilization:  float64(q.active) / float64(q.concurrency) * 100,
		Health:       health,
		RecentErrors: errs,
	}
}

// Close stops dispatching. Already-running tasks finish; backlog is dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	q.wg.Wait()
}
