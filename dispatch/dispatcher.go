// Package dispatch runs chunk-translation tasks concurrently under a
// counting semaphore, with jittered exponential backoff on retryable
// failures and prompt cancellation.
package dispatch

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/minhngdo/doctran/llm"
)

// ErrCancelled marks a task that terminated because the job was
// cancelled. The checkpoint remains valid and the job may resume.
var ErrCancelled = errors.New("dispatch: cancelled")

// State is the lifecycle position of a task.
type State int

const (
	StatePending State = iota
	StateRunning
	StateRetrying
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateRetrying:
		return "RETRYING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Task is one unit of work identified by the chunk id it serves.
type Task[T any] struct {
	ID  int
	Run func(ctx context.Context) (T, error)
}

// Outcome is the terminal record of one task.
type Outcome[T any] struct {
	ID       int
	State    State
	Result   T
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Config tunes a dispatcher.
type Config struct {
	Concurrency int           // max in-flight tasks, default 5
	MaxRetries  int           // attempts per task, default 3
	TaskTimeout time.Duration // per-attempt timeout, default 180s
}

// Dispatcher coordinates task execution. A single instance may run
// many batches; each Run call gets its own semaphore permits.
type Dispatcher[T any] struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
	mu    sync.Mutex
}

// New returns a dispatcher with defaults filled in.
func New[T any](cfg Config) *Dispatcher[T] {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 180 * time.Second
	}
	return &Dispatcher[T]{
		cfg:   cfg,
		sleep: sleepCtx,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes all tasks and blocks until every one reaches a terminal
// state or ctx is cancelled. Outcomes are returned in unspecified
// order; callers sort by task id. onResult, when non-nil, is invoked
// once per terminal task from the task's own goroutine.
func (d *Dispatcher[T]) Run(ctx context.Context, tasks []Task[T], stats *Stats, onResult func(Outcome[T])) []Outcome[T] {
	if stats == nil {
		stats = NewStats()
	}
	stats.addSubmitted(len(tasks))

	sem := semaphore.NewWeighted(int64(d.cfg.Concurrency))
	outcomes := make([]Outcome[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(slot int, t Task[T]) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				out := Outcome[T]{ID: t.ID, State: StateFailed, Err: ErrCancelled}
				outcomes[slot] = out
				stats.recordFailure(0)
				if onResult != nil {
					onResult(out)
				}
				return
			}
			defer sem.Release(1)

			out := d.runOne(ctx, t, stats)
			outcomes[slot] = out
			if onResult != nil {
				onResult(out)
			}
		}(i, task)
	}
	wg.Wait()
	return outcomes
}

// runOne drives a single task through its retry loop.
func (d *Dispatcher[T]) runOne(ctx context.Context, t Task[T], stats *Stats) Outcome[T] {
	start := time.Now()
	out := Outcome[T]{ID: t.ID, State: StateRunning}
	retried := false

	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		// Cancellation is polled at the head of every retry loop and
		// before every provider call.
		if ctx.Err() != nil {
			out.State = StateFailed
			out.Err = ErrCancelled
			out.Elapsed = time.Since(start)
			stats.recordFailure(out.Elapsed)
			return out
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
		result, err := t.Run(attemptCtx)
		cancel()
		out.Attempts = attempt

		if err == nil {
			out.State = StateCompleted
			out.Result = result
			out.Elapsed = time.Since(start)
			stats.recordSuccess(out.Elapsed)
			return out
		}
		out.Err = err

		if ctx.Err() != nil || !llm.IsRetryable(err) || attempt == d.cfg.MaxRetries {
			break
		}

		out.State = StateRetrying
		if !retried {
			retried = true
			stats.recordRetry()
		}
		if err := d.sleep(ctx, d.backoff(attempt, err)); err != nil {
			out.Err = ErrCancelled
			break
		}
	}

	out.State = StateFailed
	out.Elapsed = time.Since(start)
	stats.recordFailure(out.Elapsed)
	return out
}

// backoff computes the sleep before the next attempt: min(2^n, 10)s
// with 10% jitter, stretched to min(2^(n+2), 30)s for rate limits. A
// provider Retry-After longer than the computed backoff wins.
func (d *Dispatcher[T]) backoff(attempt int, err error) time.Duration {
	var secs float64
	if llm.IsRateLimited(err) {
		secs = math.Min(math.Pow(2, float64(attempt+2)), 30)
	} else {
		secs = math.Min(math.Pow(2, float64(attempt)), 10)
	}

	d.mu.Lock()
	jitter := 1 + d.rng.Float64()*0.1
	d.mu.Unlock()

	wait := time.Duration(secs * jitter * float64(time.Second))

	var lerr *llm.Error
	if errors.As(err, &lerr) && lerr.RetryAfter > wait {
		wait = lerr.RetryAfter
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
