package worklet

import (
	"context"
	"time"
)

// Cond is a condition variable paired with an external Mutex the caller
// must hold across Wait, matching the pthread_cond_t contract
// original_source's mutex.c/cond pairing assumes (spec.md §4.7).
type Cond struct {
	wl *waitList
}

func NewCond() *Cond {
	return &Cond{wl: newWaitList()}
}

// WithClock overrides the time source WaitTimeout measures its deadline
// against, the same post-construction shape Timeout.WithClock exposes.
func (c *Cond) WithClock(clock clockSource) *Cond {
	c.wl.clock = clock
	return c
}

// Wait atomically unlocks m and parks the caller, re-locking m before
// returning (including on error, so the caller's invariant "I hold m after
// Wait returns" always holds).
func (c *Cond) Wait(ctx context.Context, m *Mutex) error {
	err := c.wl.waitAndUnlock(ctx, func() { _ = m.Unlock() })
	if lockErr := m.Lock(ctx); lockErr != nil && err == nil {
		err = lockErr
	}
	return err
}

// WaitTimeout is Wait's timed variant (spec.md §4.7's "timed_wait_and_unlock"):
// it returns (true, nil) if the deadline elapsed before a Signal/Broadcast
// woke the caller, matching the original's "return TRUE if timed out"
// contract, or (false, nil) on a normal wake. m is re-locked before
// returning either way.
func (c *Cond) WaitTimeout(ctx context.Context, m *Mutex, timeout time.Duration) (bool, error) {
	err := c.wl.waitTimedAndUnlock(ctx, func() { _ = m.Unlock() }, timeout)
	timedOut := false
	if e, ok := err.(*Error); ok && e.Kind == KindTimedOut {
		timedOut = true
		err = nil
	}
	if lockErr := m.Lock(ctx); lockErr != nil && err == nil {
		err = lockErr
	}
	return timedOut, err
}

func (c *Cond) Signal()    { c.wl.signal() }
func (c *Cond) Broadcast() { c.wl.broadcast() }
