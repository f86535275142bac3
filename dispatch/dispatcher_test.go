package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minhngdo/doctran/llm"
)

// fakeSleep records requested backoff durations instead of sleeping.
func fakeSleep(d *Dispatcher[string]) *[]time.Duration {
	var mu sync.Mutex
	sleeps := &[]time.Duration{}
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		mu.Lock()
		*sleeps = append(*sleeps, dur)
		mu.Unlock()
		return ctx.Err()
	}
	return sleeps
}

func transportErr() error {
	return &llm.Error{Kind: llm.KindTransport, Message: "connection reset"}
}

func rateLimitErr() error {
	return &llm.Error{Kind: llm.KindRateLimited, StatusCode: 429, Message: "slow down"}
}

func permanentErr() error {
	return &llm.Error{Kind: llm.KindPermanent, StatusCode: 401, Message: "bad key"}
}

func TestAllTasksComplete(t *testing.T) {
	d := New[string](Config{Concurrency: 3})
	var tasks []Task[string]
	for i := 0; i < 10; i++ {
		id := i
		tasks = append(tasks, Task[string]{ID: id, Run: func(context.Context) (string, error) {
			return fmt.Sprintf("result-%d", id), nil
		}})
	}

	stats := NewStats()
	outcomes := d.Run(context.Background(), tasks, stats, nil)
	if len(outcomes) != 10 {
		t.Fatalf("outcomes = %d, want 10", len(outcomes))
	}
	for _, o := range outcomes {
		if o.State != StateCompleted {
			t.Errorf("task %d state = %s", o.ID, o.State)
		}
		if o.Result != fmt.Sprintf("result-%d", o.ID) {
			t.Errorf("task %d result = %q", o.ID, o.Result)
		}
	}
	snap := stats.Snapshot()
	if snap.Submitted != 10 || snap.Completed != 10 || snap.Failed != 0 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestFailureIsolation(t *testing.T) {
	// One always-failing task must not abort its siblings.
	const n = 5
	d := New[string](Config{Concurrency: 2, MaxRetries: 2})
	fakeSleep(d)

	var tasks []Task[string]
	for i := 0; i < n; i++ {
		id := i
		tasks = append(tasks, Task[string]{ID: id, Run: func(context.Context) (string, error) {
			if id == 2 {
				return "", transportErr()
			}
			return "ok", nil
		}})
	}

	stats := NewStats()
	outcomes := d.Run(context.Background(), tasks, stats, nil)

	completed, failed := 0, 0
	for _, o := range outcomes {
		switch o.State {
		case StateCompleted:
			completed++
		case StateFailed:
			failed++
			if o.ID != 2 {
				t.Errorf("wrong task failed: %d", o.ID)
			}
		}
	}
	if completed != n-1 || failed != 1 {
		t.Errorf("completed=%d failed=%d, want %d/1", completed, failed, n-1)
	}
	snap := stats.Snapshot()
	if snap.Completed != n-1 || snap.Failed != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestRetryBackoffMath(t *testing.T) {
	// Two transport failures then success: sleeps of ~2s and ~4s with
	// at most 10% jitter.
	d := New[string](Config{Concurrency: 1, MaxRetries: 3})
	sleeps := fakeSleep(d)

	attempts := 0
	tasks := []Task[string]{{ID: 0, Run: func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", transportErr()
		}
		return "done", nil
	}}}

	stats := NewStats()
	outcomes := d.Run(context.Background(), tasks, stats, nil)
	if outcomes[0].State != StateCompleted || outcomes[0].Attempts != 3 {
		t.Fatalf("outcome = %+v", outcomes[0])
	}

	if len(*sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 entries", *sleeps)
	}
	var total time.Duration
	for _, s := range *sleeps {
		total += s
	}
	if total < 6*time.Second || total > 10*time.Second {
		t.Errorf("total backoff = %v, want within [6s, 10s]", total)
	}

	snap := stats.Snapshot()
	if snap.Retried != 1 {
		t.Errorf("retried = %d, want 1 per task", snap.Retried)
	}
}

func TestRateLimitedBackoffVariant(t *testing.T) {
	// Three 429s then success with max_retries=5: the long backoff
	// variant starts at min(2^3, 30) = 8 seconds.
	d := New[string](Config{Concurrency: 1, MaxRetries: 5})
	sleeps := fakeSleep(d)

	attempts := 0
	tasks := []Task[string]{{ID: 0, Run: func(context.Context) (string, error) {
		attempts++
		if attempts <= 3 {
			return "", rateLimitErr()
		}
		return "done", nil
	}}}

	stats := NewStats()
	outcomes := d.Run(context.Background(), tasks, stats, nil)
	if outcomes[0].State != StateCompleted {
		t.Fatalf("outcome = %+v", outcomes[0])
	}
	if len(*sleeps) != 3 {
		t.Fatalf("sleeps = %v, want 3 entries", *sleeps)
	}
	for i, want := range []time.Duration{8 * time.Second, 16 * time.Second, 30 * time.Second} {
		got := (*sleeps)[i]
		if got < want || got > want+want/5 {
			t.Errorf("sleep %d = %v, want roughly %v", i, got, want)
		}
	}
	if snap := stats.Snapshot(); snap.Retried != 1 {
		t.Errorf("retried = %d, want 1 per task", snap.Retried)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	d := New[string](Config{Concurrency: 1, MaxRetries: 4})
	sleeps := fakeSleep(d)

	calls := 0
	tasks := []Task[string]{{ID: 0, Run: func(context.Context) (string, error) {
		calls++
		return "", permanentErr()
	}}}

	outcomes := d.Run(context.Background(), tasks, NewStats(), nil)
	if outcomes[0].State != StateFailed {
		t.Errorf("state = %s, want FAILED", outcomes[0].State)
	}
	if calls != 1 {
		t.Errorf("calls = %d, a permanent 4xx must not retry", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", *sleeps)
	}
}

func TestRetryAfterHeaderWins(t *testing.T) {
	d := New[string](Config{Concurrency: 1, MaxRetries: 2})
	sleeps := fakeSleep(d)

	attempts := 0
	tasks := []Task[string]{{ID: 0, Run: func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", &llm.Error{Kind: llm.KindRateLimited, StatusCode: 429, RetryAfter: 25 * time.Second}
		}
		return "done", nil
	}}}

	d.Run(context.Background(), tasks, NewStats(), nil)
	if len(*sleeps) != 1 || (*sleeps)[0] < 25*time.Second {
		t.Errorf("sleeps = %v, want the Retry-After hint honoured", *sleeps)
	}
}

func TestCancellationStopsNewCalls(t *testing.T) {
	d := New[string](Config{Concurrency: 2, MaxRetries: 3})
	fakeSleep(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	var tasks []Task[string]
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Task[string]{ID: i, Run: func(context.Context) (string, error) {
			calls.Add(1)
			return "ok", nil
		}})
	}

	outcomes := d.Run(ctx, tasks, NewStats(), nil)
	if calls.Load() != 0 {
		t.Errorf("%d provider calls after cancellation, want 0", calls.Load())
	}
	for _, o := range outcomes {
		if o.State != StateFailed || !errors.Is(o.Err, ErrCancelled) {
			t.Errorf("task %d: state=%s err=%v", o.ID, o.State, o.Err)
		}
	}
}

func TestCancellationDuringBackoff(t *testing.T) {
	d := New[string](Config{Concurrency: 1, MaxRetries: 5})
	ctx, cancel := context.WithCancel(context.Background())
	d.sleep = func(c context.Context, _ time.Duration) error {
		cancel()
		return c.Err()
	}

	calls := 0
	tasks := []Task[string]{{ID: 0, Run: func(context.Context) (string, error) {
		calls++
		return "", transportErr()
	}}}

	outcomes := d.Run(ctx, tasks, NewStats(), nil)
	if calls != 1 {
		t.Errorf("calls = %d, cancellation during backoff must stop retries", calls)
	}
	if outcomes[0].State != StateFailed || !errors.Is(outcomes[0].Err, ErrCancelled) {
		t.Errorf("outcome = %+v", outcomes[0])
	}
}

func TestConcurrencyBound(t *testing.T) {
	const limit = 3
	d := New[string](Config{Concurrency: limit})

	var inFlight, peak atomic.Int32
	var tasks []Task[string]
	for i := 0; i < 20; i++ {
		tasks = append(tasks, Task[string]{ID: i, Run: func(context.Context) (string, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return "ok", nil
		}})
	}

	d.Run(context.Background(), tasks, NewStats(), nil)
	if got := peak.Load(); got > limit {
		t.Errorf("peak in-flight = %d, want <= %d", got, limit)
	}
}

func TestOnResultCalledPerTask(t *testing.T) {
	d := New[string](Config{Concurrency: 4})
	var seen sync.Map
	var count atomic.Int32

	var tasks []Task[string]
	for i := 0; i < 6; i++ {
		id := i
		tasks = append(tasks, Task[string]{ID: id, Run: func(context.Context) (string, error) {
			return "ok", nil
		}})
	}

	d.Run(context.Background(), tasks, NewStats(), func(o Outcome[string]) {
		seen.Store(o.ID, true)
		count.Add(1)
	})
	if count.Load() != 6 {
		t.Errorf("onResult called %d times, want 6", count.Load())
	}
	for i := 0; i < 6; i++ {
		if _, ok := seen.Load(i); !ok {
			t.Errorf("task %d missing from onResult", i)
		}
	}
}
