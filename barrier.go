package worklet

import "context"

// Barrier blocks n arrivals until all n have arrived, then releases them
// together and resets for reuse (spec.md §4.7). This is the fixed-
// participant-count form; XBarrier below is the dynamic-membership variant
// original_source supplements with (SPEC_FULL.md §6). All counters live
// under the guard spinlock, held across an arrival's generation check and
// its wait-list enqueue and across the last arriver's generation bump and
// broadcast — spec.md §4.7's guarding-lock discipline, so the release can
// never slip between a waiter's check and its park.
type Barrier struct {
	guard   spinlock
	n       int32
	arrived int32
	gen     uint32
	wl      *waitList
}

func NewBarrier(n int) (*Barrier, error) {
	if n <= 0 {
		return nil, newError("NewBarrier", KindInvArg, ErrInvArg)
	}
	return &Barrier{n: int32(n), wl: newWaitList()}, nil
}

// Wait arrives at the barrier, blocking until all n participants have
// arrived, then releasing everyone for this generation.
func (b *Barrier) Wait(ctx context.Context) error {
	b.guard.acquire()
	myGen := b.gen
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.gen++
		b.wl.broadcast()
		b.guard.release()
		return nil
	}
	for {
		if err := b.wl.waitAndUnlock(ctx, b.guard.release); err != nil {
			return err
		}
		b.guard.acquire()
		if b.gen != myGen {
			b.guard.release()
			return nil
		}
	}
}

// XBarrier is a barrier whose participant count can change between uses
// (original_source's extended-barrier variant): Reconfigure sets the
// target count for the next generation, taking effect once no arrivals are
// pending for the current one.
type XBarrier struct {
	Barrier
	nextN int32
}

func NewXBarrier(n int) (*XBarrier, error) {
	if n <= 0 {
		return nil, newError("NewXBarrier", KindInvArg, ErrInvArg)
	}
	xb := &XBarrier{Barrier: Barrier{n: int32(n), wl: newWaitList()}}
	xb.nextN = int32(n)
	return xb, nil
}

// Reconfigure changes the participant count used starting with the next
// generation; it never affects arrivals already waiting on the current one.
func (xb *XBarrier) Reconfigure(n int) error {
	if n <= 0 {
		return newError("Reconfigure", KindInvArg, ErrInvArg)
	}
	xb.guard.acquire()
	xb.nextN = int32(n)
	if xb.arrived == 0 {
		xb.n = int32(n)
	}
	xb.guard.release()
	return nil
}

func (xb *XBarrier) Wait(ctx context.Context) error {
	xb.guard.acquire()
	myGen := xb.gen
	xb.arrived++
	if xb.arrived == xb.n {
		xb.arrived = 0
		xb.n = xb.nextN
		xb.gen++
		xb.wl.broadcast()
		xb.guard.release()
		return nil
	}
	for {
		if err := xb.wl.waitAndUnlock(ctx, xb.guard.release); err != nil {
			return err
		}
		xb.guard.acquire()
		if xb.gen != myGen {
			xb.guard.release()
			return nil
		}
	}
}
