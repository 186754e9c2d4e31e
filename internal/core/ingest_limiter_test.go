package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIngestLimiter_AcquireRelease(t *testing.T) {
	limiter := NewIngestLimiter(2, time.Second)
	ctx := context.Background()

	if got := limiter.Status().Available; got != 2 {
		t.Errorf("initial Available = %d, want 2", got)
	}

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	status := limiter.Status()
	if status.Active != 2 || status.Available != 0 {
		t.Errorf("after two Acquires, status = %+v, want 2 active 0 available", status)
	}

	limiter.Release()
	limiter.Release()

	if got := limiter.Status().Active; got != 0 {
		t.Errorf("after Release, Active = %d, want 0", got)
	}
}

func TestIngestLimiter_BlocksWhenFull(t *testing.T) {
	limiter := NewIngestLimiter(1, 100*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	start := time.Now()
	err := limiter.Acquire(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyIngests) {
		t.Errorf("expected ErrTooManyIngests, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("timeout too fast: %v", elapsed)
	}
}

func TestIngestLimiter_ConcurrentAccess(t *testing.T) {
	const maxConcurrent = 3
	const totalRequests = 10

	limiter := NewIngestLimiter(maxConcurrent, time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := limiter.Run(context.Background(), func(context.Context) error {
				mu.Lock()
				if current := limiter.Status().Active; current > maxObserved {
					maxObserved = current
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			if err != nil {
				t.Errorf("Run failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("exceeded max concurrent: observed %d, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.Status().Active; got != 0 {
		t.Errorf("final Active = %d, want 0", got)
	}
}

func TestIngestLimiter_RunReturnsError(t *testing.T) {
	limiter := NewIngestLimiter(1, time.Second)
	want := errors.New("boom")

	if err := limiter.Run(context.Background(), func(context.Context) error { return want }); err != want {
		t.Errorf("Run error = %v, want %v", err, want)
	}
	if got := limiter.Status().Active; got != 0 {
		t.Errorf("slot not released: Active = %d", got)
	}
}

func TestIngestLimiter_ContextCancellation(t *testing.T) {
	limiter := NewIngestLimiter(1, 5*time.Second)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- limiter.Acquire(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after context cancellation")
	}
}

func TestIngestLimiter_Drain(t *testing.T) {
	limiter := NewIngestLimiter(2, time.Second)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- limiter.Drain(context.Background())
	}()

	select {
	case <-drainDone:
		t.Error("Drain returned with an active ingest")
	case <-time.After(50 * time.Millisecond):
	}

	if err := limiter.Acquire(ctx); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Acquire while draining = %v, want ErrShuttingDown", err)
	}
	if !limiter.Status().Draining {
		t.Error("Status should report draining")
	}

	limiter.Release()

	select {
	case err := <-drainDone:
		if err != nil {
			t.Errorf("Drain returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Drain did not complete after release")
	}
}

func TestIngestLimiter_DrainIdle(t *testing.T) {
	limiter := NewIngestLimiter(1, time.Second)
	if err := limiter.Drain(context.Background()); err != nil {
		t.Errorf("Drain on idle limiter = %v", err)
	}
}

func TestIngestLimiter_DrainContextCancelled(t *testing.T) {
	limiter := NewIngestLimiter(1, time.Second)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestIngestLimiter_DefaultValues(t *testing.T) {
	limiter := NewIngestLimiter(0, 0)

	if got := limiter.Status().MaxConcurrent; got != DefaultMaxConcurrentIngests {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentIngests)
	}
}
