// Package ratelimit gates concurrent outbound calls to an agent channel so
// fan-out from the engine cannot exceed a provider's concurrent-request
// budget. It is a deliberately small concurrency semaphore, not the
// teacher's window/token-bucket accounting system: the spec only needs a
// shared in-flight cap, not per-identifier usage windows.
package ratelimit

import (
	"context"
	"fmt"
)

// Limiter bounds the number of in-flight calls permitted at once.
type Limiter struct {
	slots chan struct{}
}

// New creates a Limiter allowing up to max concurrent acquisitions. A
// non-positive max means unlimited: Acquire always succeeds immediately.
func New(max int) *Limiter {
	if max <= 0 {
		return &Limiter{}
	}
	return &Limiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ratelimit: acquire: %w", ctx.Err())
	}
}

// Release frees a slot acquired by Acquire. Safe to call even when the
// Limiter is unbounded (no-op).
func (l *Limiter) Release() {
	if l.slots == nil {
		return
	}
	<-l.slots
}

// InUse reports the number of slots currently held, for diagnostics.
func (l *Limiter) InUse() int {
	if l.slots == nil {
		return 0
	}
	return len(l.slots)
}
