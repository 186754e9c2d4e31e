package core

// ingest_limiter.go caps how many bulk ingestions run at once.
//
// Each ingestion holds one semaphore slot from parse to commit. When every
// slot is taken, callers wait up to maxWait and then fail with
// ErrTooManyIngests. Drain stops new ingestions and waits for running ones,
// which the server calls during shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyIngests is returned when no ingest slot frees up within the wait
// time. Clients should retry after a short delay.
var ErrTooManyIngests = errors.New("too many concurrent ingestions, please try again later")

// ErrShuttingDown is returned by Acquire once Drain has been called.
var ErrShuttingDown = errors.New("server is shutting down")

// DefaultMaxConcurrentIngests is the default limit for parallel ingestions.
const DefaultMaxConcurrentIngests = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// IngestLimiter is a semaphore over bulk ingestions.
type IngestLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu       sync.Mutex
	active   int
	draining bool
	idle     chan struct{} // closed while active == 0
}

// NewIngestLimiter allows at most maxConcurrent simultaneous ingestions.
func NewIngestLimiter(maxConcurrent int, maxWait time.Duration) *IngestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIngests
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &IngestLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		idle:      idle,
	}
}

// Acquire takes a slot. The caller must call Release when done.
func (l *IngestLimiter) Acquire(ctx context.Context) error {
	if l.isDraining() {
		return ErrShuttingDown
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
	case <-timer.C:
		return ErrTooManyIngests
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.draining {
		<-l.semaphore
		return ErrShuttingDown
	}
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	return nil
}

// Release frees a slot taken by Acquire.
func (l *IngestLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.semaphore
}

// Run executes fn while holding a slot.
func (l *IngestLimiter) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Drain rejects new ingestions and blocks until running ones finish or ctx
// is done.
func (l *IngestLimiter) Drain(ctx context.Context) error {
	l.mu.Lock()
	l.draining = true
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *IngestLimiter) isDraining() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draining
}

// IngestLimiterStatus is a snapshot for the health endpoint.
type IngestLimiterStatus struct {
	Active        int  `json:"active"`
	Available     int  `json:"available"`
	MaxConcurrent int  `json:"max_concurrent"`
	Draining      bool `json:"draining"`
}

// Status returns the current limiter state.
func (l *IngestLimiter) Status() IngestLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return IngestLimiterStatus{
		Active:        l.active,
		Available:     cap(l.semaphore) - l.active,
		MaxConcurrent: cap(l.semaphore),
		Draining:      l.draining,
	}
}
