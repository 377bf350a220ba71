package worklet

import (
	"context"
	"io"
	"time"
)

// FIFOWaitPool is FIFOPool plus a blocking PopWait: a consumer with nothing
// to run parks instead of spin-polling, and every Push wakes a waiter
// (spec.md §4.6's "FIFO wait" pool). A single-consumer AccessMode (Private,
// SPSC, MPSC) uses the cheaper one-shot singleWaiter handoff; a
// multi-consumer mode (SPMC, MPMC) needs the futex's broadcast-capable
// multi-waiter shape instead, since more than one PopWait call can be
// parked at once.
type FIFOWaitPool struct {
	FIFOPool
	fx *futex
	sw *singleWaiter
}

var _ Pool = (*FIFOWaitPool)(nil)
var _ PoolWaiter = (*FIFOWaitPool)(nil)
var _ PoolTimedWaiter = (*FIFOWaitPool)(nil)

func NewFIFOWaitPool(mode AccessMode) *FIFOWaitPool {
	p := &FIFOWaitPool{FIFOPool: FIFOPool{poolBase: newPoolBase(mode)}}
	if mode.singleConsumer() {
		p.sw = newSingleWaiter()
	} else {
		p.fx = newFutex()
	}
	return p
}

// WithClock overrides the pool's time source for PopWait's timeout, the
// same post-construction `WithClock` shape Timeout/WorkerPool expose —
// letting a test drive PopWait's deadline with a clockz.NewFakeClock()
// instead of sleeping in real time.
func (p *FIFOWaitPool) WithClock(clock clockSource) *FIFOWaitPool {
	if p.sw != nil {
		p.sw.clock = clock
	} else {
		p.fx.clock = clock
	}
	return p
}

func (p *FIFOWaitPool) Push(s Schedulable) error {
	if err := p.FIFOPool.Push(s); err != nil {
		return err
	}
	if p.sw != nil {
		p.sw.signal()
	} else {
		p.fx.wakeOne()
	}
	return nil
}

// PopWait pops if something is already available, otherwise blocks until a
// Push wakes it, ctx is canceled, or timeout elapses. On the multi-consumer
// futex path the generation is captured BEFORE the empty-check: a Push that
// lands between the failed Pop and the sleep has already advanced the
// generation past the captured value, so waitMulti returns immediately
// instead of parking against a wake that already happened (the futex's
// "wait while value == V" lost-wakeup discipline, spec.md §4.7). The
// singleWaiter path needs no capture — its capacity-1 channel latches the
// signal.
func (p *FIFOWaitPool) PopWait(ctx context.Context, timeout time.Duration) (Schedulable, bool) {
	for {
		var gen uint32
		if p.fx != nil {
			gen = p.fx.current()
		}
		if u, ok := p.Pop(); ok {
			return u, true
		}
		p.incBlocked()
		var woken bool
		if p.sw != nil {
			woken = p.sw.wait(ctx, timeout)
		} else {
			woken = p.fx.waitMulti(ctx, gen, timeout)
		}
		p.decBlocked()
		if !woken {
			return nil, false
		}
		// Re-check: another waiter may have already taken the pushed
		// unit between wake and re-acquire, matching the futex contract
		// (a wake is a hint to re-check, not a guarantee of delivery).
		if timeout > 0 {
			select {
			case <-ctx.Done():
				return nil, false
			default:
			}
		}
	}
}

// clock returns the pool's time source, whichever wait shape owns it.
func (p *FIFOWaitPool) clock() clockSource {
	if p.sw != nil {
		return p.sw.clock
	}
	return p.fx.clock
}

// PopTimedWait is PopWait against an absolute deadline on the pool's clock.
// A deadline already in the past degrades to a plain non-blocking Pop.
func (p *FIFOWaitPool) PopTimedWait(ctx context.Context, deadline time.Time) (Schedulable, bool) {
	dt := deadline.Sub(p.clock().Now())
	if dt <= 0 {
		return p.Pop()
	}
	return p.PopWait(ctx, dt)
}

func (p *FIFOWaitPool) PrintAll(w io.Writer) {
	p.FIFOPool.PrintAll(w)
}
