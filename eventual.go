package worklet

import (
	"context"
	"sync/atomic"
	"time"
)

// Eventual is a write-once synchronization cell (spec.md §4.7): any number
// of waiters block on Wait until exactly one Set call provides the value,
// after which every past and future Wait returns immediately. Grounded on
// fallback.go's one-shot "first successful attempt wins" shape, adapted
// from a value-returning retry chain to a plain set-once cell. The guard
// spinlock is held across a waiter's not-yet-set check and its wait-list
// enqueue, and across Set's flag flip and its broadcast (spec.md §4.7's
// guarding-lock discipline) — essential here, since Set's broadcast fires
// exactly once and a waiter that misses it would never be rescued.
type Eventual struct {
	guard spinlock
	set   atomic.Bool
	value atomic.Pointer[any]
	wl    *waitList
}

func NewEventual() *Eventual {
	return &Eventual{wl: newWaitList()}
}

// WithClock overrides the time source WaitTimeout measures its deadline
// against.
func (e *Eventual) WithClock(clock clockSource) *Eventual {
	e.wl.clock = clock
	return e
}

// Set provides the value, waking every current waiter. Calling Set twice
// returns KindInvState — an Eventual is write-once by definition.
func (e *Eventual) Set(v any) error {
	e.guard.acquire()
	defer e.guard.release()
	if e.set.Load() {
		return newError("Set", KindInvState, ErrInvState)
	}
	e.value.Store(&v)
	e.set.Store(true)
	e.wl.broadcast()
	return nil
}

// Wait blocks until Set has been called, then returns the value.
func (e *Eventual) Wait(ctx context.Context) (any, error) {
	e.guard.acquire()
	for !e.set.Load() {
		if err := e.wl.waitAndUnlock(ctx, e.guard.release); err != nil {
			return nil, err
		}
		e.guard.acquire()
	}
	e.guard.release()
	return *e.value.Load(), nil
}

// WaitTimeout is Wait's timed variant: it returns KindTimedOut if no Set
// arrives before timeout elapses.
func (e *Eventual) WaitTimeout(ctx context.Context, timeout time.Duration) (any, error) {
	e.guard.acquire()
	for !e.set.Load() {
		if err := e.wl.waitTimedAndUnlock(ctx, e.guard.release, timeout); err != nil {
			return nil, err
		}
		e.guard.acquire()
	}
	e.guard.release()
	return *e.value.Load(), nil
}

// Ready reports whether Set has already been called, without blocking.
func (e *Eventual) Ready() bool { return e.set.Load() }
