package worklet

import (
	"context"
	"sync"
	"time"
)

// futex is the passive-wait primitive original_source/abtd_futex.c builds
// over pthread mutex+condvar when the OS has no native futex syscall
// available to it; we build the same "fallback" shape directly over Go's
// sync.Cond, since Go gives no raw futex syscall to bind to either.
//
// It supports the two wait shapes spec.md's wait-list needs: waitMulti,
// where any number of goroutines block on a generation counter and a
// broadcast wakes all of them, and singleWaiter, a one-shot handoff channel
// for exactly one waiter (the common case: one blocked Pop call).
type futex struct {
	mu    sync.Mutex
	cond  *sync.Cond
	gen   uint32
	clock clockSource
}

func newFutex() *futex {
	return newFutexWithClock(defaultClock())
}

// newFutexWithClock is newFutex with an injected time source, letting a
// caller (testkit, or a test directly) swap in a clockz.NewFakeClock() the
// same way Timeout.WithClock/WorkerPool.WithClock let the teacher's
// timed-wait tests run without sleeping in real time.
func newFutexWithClock(clock clockSource) *futex {
	f := &futex{clock: clock}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// current snapshots the generation counter. A waiter must capture this
// BEFORE re-checking the condition it is about to sleep on — the futex
// contract is "wait while value == V" (spec.md §4.7), so a wake landing
// between the condition check and the sleep is observed as an already-
// advanced generation instead of being lost.
func (f *futex) current() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// waitMulti blocks the caller until the generation counter advances past
// gen (the value the caller captured via current before its last condition
// check), or ctx is done, or timeout elapses (zero timeout means wait
// forever). Returns immediately if the generation already moved. Mirrors
// abtd_futex_wait's multi-waiter shape: any number of waiters can be
// parked on the same futex at once.
func (f *futex) waitMulti(ctx context.Context, gen uint32, timeout time.Duration) bool {
	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return true
	}
	done := make(chan struct{})
	go func() {
		f.mu.Lock()
		for f.gen == gen {
			f.cond.Wait()
		}
		f.mu.Unlock()
		close(done)
	}()
	f.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-done:
			return true
		case <-ctx.Done():
			f.wake() // unstick the helper goroutine above
			return false
		}
	}
	waitCtx, cancel := withTimeout(ctx, f.clock, timeout)
	defer cancel()
	select {
	case <-done:
		return true
	case <-waitCtx.Done():
		f.wake()
		return false
	}
}

// wake advances the generation counter and broadcasts, releasing every
// multi-waiter currently parked (abtd_futex_broadcast).
func (f *futex) wake() {
	f.mu.Lock()
	f.gen++
	f.cond.Broadcast()
	f.mu.Unlock()
}

// wakeOne advances the generation and releases exactly one waiter
// (abtd_futex_signal): sync.Cond.Signal wakes one parked helper goroutine,
// which sees the advanced generation and releases its waiter; the other
// helpers stay parked until a later wake.
func (f *futex) wakeOne() {
	f.mu.Lock()
	f.gen++
	f.cond.Signal()
	f.mu.Unlock()
}

// singleWaiter is the one-shot handoff shape: exactly one consumer receives
// exactly one wake, used by a pool's blocking Pop to hand off a freshly
// pushed unit directly rather than requiring a re-scan.
type singleWaiter struct {
	ch    chan struct{}
	clock clockSource
}

func newSingleWaiter() *singleWaiter {
	return &singleWaiter{ch: make(chan struct{}, 1), clock: defaultClock()}
}

func (s *singleWaiter) wait(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-s.ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	waitCtx, cancel := withTimeout(ctx, s.clock, timeout)
	defer cancel()
	select {
	case <-s.ch:
		return true
	case <-waitCtx.Done():
		return false
	}
}

func (s *singleWaiter) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}
