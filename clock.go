package worklet

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
)

// clock is the time source every timed wait in the runtime goes through:
// Pool.PopWait, waitList.waitTimedAndUnlock (and its Cond.WaitTimeout /
// Eventual.WaitTimeout callers), and the futex. Defaulting to
// clockz.RealClock and accepting a clockz.Clock override mirrors
// Timeout.WithClock/WorkerPool.WithClock in the teacher exactly, which is
// what lets every timed-wait test in this repo run on a
// clockz.NewFakeClock() instead of sleeping in real time.
type clockSource = clockz.Clock

func defaultClock() clockSource {
	return clockz.RealClock
}

// withDeadline builds a context that expires at target (absolute time),
// using the supplied clock rather than the wall clock directly. The
// runtime's own timed waits take relative timeouts and use withTimeout.
func withDeadline(ctx context.Context, clock clockSource, target time.Time) (context.Context, context.CancelFunc) {
	return clock.WithDeadline(ctx, target)
}

// withTimeout is withDeadline's relative-duration sibling, used by every
// call site that takes a timeout rather than an absolute deadline
// (futex.waitMulti, waitList.waitTimedAndUnlock's non-yieldable path). A
// zero or negative timeout means "no deadline": callers branch on that
// before calling this.
func withTimeout(ctx context.Context, clock clockSource, timeout time.Duration) (context.Context, context.CancelFunc) {
	return clock.WithTimeout(ctx, timeout)
}
