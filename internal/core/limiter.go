package core

// limiter.go bounds how many import batches run at once.
//
// Each batch holds a transaction and a parsed file stream for its whole
// lifetime, so the HTTP layer acquires a slot before starting one. Waiting
// requests give up after maxWait with ErrTooManyImports.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyImports is returned when all import slots stay occupied for the
// whole wait period. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent uploads, please try again later")

// Limiter defaults.
const (
	DefaultMaxConcurrentImports = 3
	DefaultMaxWaitTime          = 30 * time.Second
)

// ImportLimiter is a weighted semaphore with a bounded wait.
type ImportLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration
	active  atomic.Int64
}

// NewImportLimiter allows at most maxConcurrent simultaneous imports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &ImportLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The caller must call Release when done.
// Returns the context error if ctx ends first, ErrTooManyImports on timeout.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking.
func (l *ImportLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ImportLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// Active returns the number of running imports.
func (l *ImportLimiter) Active() int {
	return int(l.active.Load())
}

// LimiterStatus is a snapshot for health endpoints.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *ImportLimiter) Status() LimiterStatus {
	active := l.Active()
	return LimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}

// WaitForDrain blocks until no import is running or ctx ends.
// Used during shutdown so running batches can commit.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, int64(l.max)); err != nil {
		return err
	}
	l.sem.Release(int64(l.max))
	return nil
}
