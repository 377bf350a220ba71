package worklet

import (
	"context"
	"time"
)

// waitNode is one parked waiter in a waitList: intrusive in the sense that
// it carries its own removal plumbing (prev/next), matching
// original_source/abti_waitlist.h's doubly-linked waiter records, so a
// timed waiter that fires its own deadline can unlink itself in O(1)
// without walking the whole list.
type waitNode struct {
	wake func() // non-yieldable: never Yield/Suspend from inside this
	prev *waitNode
	next *waitNode
}

// waitList is the intrusive FIFO queue underlying every synchronization
// primitive in this package (mutex, cond, rwlock, eventual, future,
// barrier) — spec.md §4.7's single shared wait-list design. Callers hold
// their own lock around Park/Signal/Broadcast; waitList itself only
// maintains the linked list and each waiter's own one-shot wake channel —
// the futex-like handoff a non-yieldable caller blocks on for real, while a
// yieldable caller instead parks by Yield-looping (see futex.go for the
// shared multi-waiter variant pools use for PopWait).
type waitList struct {
	mu    spinlock
	head  *waitNode
	tail  *waitNode
	clock clockSource
}

func newWaitList() *waitList {
	return &waitList{clock: defaultClock()}
}

func (wl *waitList) pushBack(n *waitNode) {
	wl.mu.acquire()
	defer wl.mu.release()
	n.prev, n.next = wl.tail, nil
	if wl.tail != nil {
		wl.tail.next = n
	} else {
		wl.head = n
	}
	wl.tail = n
}

func (wl *waitList) remove(n *waitNode) {
	wl.mu.acquire()
	defer wl.mu.release()
	wl.unlinkLocked(n)
}

func (wl *waitList) unlinkLocked(n *waitNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else if wl.head == n {
		wl.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else if wl.tail == n {
		wl.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (wl *waitList) popFront() (*waitNode, bool) {
	wl.mu.acquire()
	defer wl.mu.release()
	if wl.head == nil {
		return nil, false
	}
	n := wl.head
	wl.unlinkLocked(n)
	return n, true
}

// waitAndUnlock parks the calling goroutine on the list, having the caller
// supply unlock() to release whatever external lock guards the primitive's
// state (the wait-and-unlock pairing must be atomic from an observer's
// point of view, mirroring ABT_mutex_lock's use of this same pattern). If
// ctx belongs to a running yieldable unit, the park is implemented as a
// Yield loop instead of blocking the OS thread; otherwise it blocks for
// real on the waiter's own wake channel.
func (wl *waitList) waitAndUnlock(ctx context.Context, unlock func()) error {
	return wl.waitTimedAndUnlock(ctx, unlock, 0)
}

// waitTimedAndUnlock is waitAndUnlock with an optional deadline; timeout<=0
// means wait forever.
func (wl *waitList) waitTimedAndUnlock(ctx context.Context, unlock func(), timeout time.Duration) error {
	done := make(chan struct{})
	n := &waitNode{wake: func() { close(done) }}
	wl.pushBack(n)
	unlock()

	if si, ok := selfFrom(ctx); ok {
		if th, isThread := si.u.(*Thread); isThread {
			// Yieldable caller: don't block the OS thread. Yield
			// repeatedly until woken, canceled, or timed out — spec.md
			// §9's resolved open question: cancel wins if observed
			// before the deadline fires, else the timeout completes
			// first, so REQ_CANCEL is checked ahead of the deadline.
			deadline := time.Time{}
			if timeout > 0 {
				deadline = wl.clock.Now().Add(timeout)
			}
			for {
				select {
				case <-done:
					return nil
				default:
				}
				if th.unit().hasRequest(reqCancel) {
					wl.remove(n)
					return newError("Wait", KindInvState, ErrInvState)
				}
				if !deadline.IsZero() && wl.clock.Now().After(deadline) {
					wl.remove(n)
					if rt := currentRuntime(); rt != nil {
						rt.metrics.Counter(MetricWaitListTimeouts).Inc()
					}
					return newError("Wait", KindTimedOut, ErrTimedOut)
				}
				if err := SelfYield(ctx); err != nil {
					wl.remove(n)
					return err
				}
			}
		}
	}

	if timeout <= 0 {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			wl.remove(n)
			return newError("Wait", KindTimedOut, ctx.Err())
		}
	}
	timedCtx, cancel := withTimeout(ctx, wl.clock, timeout)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-timedCtx.Done():
		wl.remove(n)
		if ctx.Err() != nil {
			return newError("Wait", KindTimedOut, ctx.Err())
		}
		return newError("Wait", KindTimedOut, ErrTimedOut)
	}
}

// yieldUntilDone is the shared "yieldable caller waits by cooperatively
// yielding" discipline spec.md §4.7's wait-list gives every synchronization
// primitive (mutex, cond, rwlock, eventual, future, barrier — see the
// Yield-loop branch of waitTimedAndUnlock above); Thread.Join's
// Thread-on-Thread case reuses it rather than keeping its own copy, so a
// caller yields back to its scheduler instead of blocking the ES, checking
// done and its own REQ_CANCEL bit on every pass (§4.4's context-edge
// request-bit handling, applied here the same way waitTimedAndUnlock does).
func yieldUntilDone(ctx context.Context, th *Thread, done <-chan struct{}) error {
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if th.unit().hasRequest(reqCancel) {
			return newError("Join", KindInvState, ErrInvState)
		}
		if err := SelfYield(ctx); err != nil {
			return err
		}
	}
}

// signal wakes exactly one waiter, FIFO order.
func (wl *waitList) signal() {
	if n, ok := wl.popFront(); ok {
		if rt := currentRuntime(); rt != nil {
			rt.metrics.Counter(MetricWaitListSignals).Inc()
		}
		n.wake()
	}
}

// broadcast wakes every currently-parked waiter.
func (wl *waitList) broadcast() {
	for {
		n, ok := wl.popFront()
		if !ok {
			return
		}
		n.wake()
	}
}

func (wl *waitList) len() int {
	wl.mu.acquire()
	defer wl.mu.release()
	n := 0
	for c := wl.head; c != nil; c = c.next {
		n++
	}
	return n
}
