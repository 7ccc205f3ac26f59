package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockJob implements Job
type mockJob struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return ErrorResult{Err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return ErrorResult{Err: errors.New("job error")}
	}
	return ErrorResult{}
}

// TestNewPool verifies worker count defaults
func TestNewPool(t *testing.T) {
	if p := NewPool(5); p.Workers() != 5 {
		t.Errorf("expected 5 workers, got %d", p.Workers())
	}
	if p := NewPool(0); p.Workers() != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p.Workers())
	}
	if p := NewPool(-1); p.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p.Workers())
	}
}

// TestPoolExecution verifies every submitted job runs and reports
func TestPoolExecution(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	var executed int32
	count := 50

	for i := 0; i < count; i++ {
		if err := pool.Submit(context.Background(), &mockJob{executed: &executed}); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
	}

	results := pool.Wait()

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

// TestPoolConcurrency verifies the worker bound is respected
func TestPoolConcurrency(t *testing.T) {
	workers := 4
	pool := NewPool(workers)
	pool.Start()

	var current, maxConcurrent, completed int32
	var mu sync.Mutex

	for i := 0; i < 20; i++ {
		err := pool.Submit(context.Background(), JobFunc(func(ctx context.Context) Result {
			curr := atomic.AddInt32(&current, 1)
			mu.Lock()
			if curr > maxConcurrent {
				maxConcurrent = curr
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			atomic.AddInt32(&completed, 1)
			return ErrorResult{}
		}))
		if err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
	}

	pool.Wait()

	if atomic.LoadInt32(&completed) != 20 {
		t.Errorf("expected 20 completed jobs, got %d", completed)
	}
	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", maxConcurrent, workers)
	}
}

// TestPoolErrorHandling verifies job errors surface in results
func TestPoolErrorHandling(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	pool.Submit(context.Background(), &mockJob{shouldErr: true})
	pool.Submit(context.Background(), &mockJob{shouldErr: false})

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	failed := 0
	for _, res := range results {
		if res.GetError() != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 error, got %d", failed)
	}
}

// TestPoolResultHandler verifies background pools hand results to the handler
func TestPoolResultHandler(t *testing.T) {
	var handled int32
	pool := NewPool(3, WithResultHandler(func(Result) {
		atomic.AddInt32(&handled, 1)
	}), WithQueueSize(100))
	pool.Start()

	for i := 0; i < 30; i++ {
		if !pool.TrySubmit(&mockJob{}) {
			t.Fatalf("TrySubmit() refused job %d", i)
		}
	}

	if err := pool.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if atomic.LoadInt32(&handled) != 30 {
		t.Errorf("handled %d results, want 30", handled)
	}
	if results := pool.Wait(); results != nil {
		t.Errorf("Wait() = %v, want nil for a handler pool", results)
	}
}

// TestPoolSubmitAfterClose verifies a closed pool refuses work without blocking
func TestPoolSubmitAfterClose(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	pool.Shutdown()

	done := make(chan error)
	go func() {
		done <- pool.Submit(context.Background(), &mockJob{})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit after shutdown blocked")
	}

	if pool.TrySubmit(&mockJob{}) {
		t.Error("TrySubmit() after shutdown should fail")
	}
}

// TestPoolDrainTimeout verifies Drain cancels running jobs when ctx expires
func TestPoolDrainTimeout(t *testing.T) {
	pool := NewPool(1)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(context.Background(), JobFunc(func(ctx context.Context) Result {
		close(started)
		<-ctx.Done()
		return ErrorResult{Err: ctx.Err()}
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := pool.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want DeadlineExceeded", err)
	}
}

// TestPoolSubmitContext verifies Submit gives up when its context ends
func TestPoolSubmitContext(t *testing.T) {
	pool := NewPool(1, WithQueueSize(1))
	// not started, so the queue fills
	if err := pool.Submit(context.Background(), &mockJob{}); err != nil {
		t.Fatalf("first Submit() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx, &mockJob{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() error = %v, want DeadlineExceeded", err)
	}
	pool.Shutdown()
}

// TestResultCollector verifies thread-safe accumulation
func TestResultCollector(t *testing.T) {
	c := NewResultCollector()
	c.Add(ErrorResult{})
	c.Add(ErrorResult{Err: errors.New("err")})

	if res := c.Results(); len(res) != 2 {
		t.Errorf("expected 2 results, got %d", len(res))
	}
}
