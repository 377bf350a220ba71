package worklet

import (
	"context"
	"fmt"
	"io"
	"time"
)

// FIFOPool is the built-in FIFO work-unit container (spec.md §4.6): units
// come off in push order, and concurrent Push/Pop are serialized with a
// spinlock rather than a channel — a channel's fixed capacity would force
// an artificial bound on an otherwise-unbounded pool.
type FIFOPool struct {
	poolBase
	mu    spinlock
	units []Schedulable
}

var _ Pool = (*FIFOPool)(nil)
var _ PoolSizer = (*FIFOPool)(nil)
var _ PoolRemover = (*FIFOPool)(nil)
var _ PoolBulk = (*FIFOPool)(nil)
var _ PoolPrinter = (*FIFOPool)(nil)

// NewFIFOPool builds an empty FIFOPool with the given access-mode hint.
func NewFIFOPool(mode AccessMode) *FIFOPool {
	return &FIFOPool{poolBase: newPoolBase(mode)}
}

func (p *FIFOPool) Push(s Schedulable) error {
	p.mu.acquire()
	p.units = append(p.units, s)
	p.mu.release()
	return nil
}

func (p *FIFOPool) Pop() (Schedulable, bool) {
	p.mu.acquire()
	defer p.mu.release()
	if len(p.units) == 0 {
		return nil, false
	}
	u := p.units[0]
	p.units = p.units[1:]
	return u, true
}

func (p *FIFOPool) IsEmpty() bool {
	p.mu.acquire()
	defer p.mu.release()
	return len(p.units) == 0
}

func (p *FIFOPool) GetSize() int {
	p.mu.acquire()
	defer p.mu.release()
	return len(p.units)
}

func (p *FIFOPool) PopMany(max int) []Schedulable {
	p.mu.acquire()
	defer p.mu.release()
	if max > len(p.units) {
		max = len(p.units)
	}
	out := append([]Schedulable(nil), p.units[:max]...)
	p.units = p.units[max:]
	return out
}

func (p *FIFOPool) PushMany(units []Schedulable) error {
	p.mu.acquire()
	p.units = append(p.units, units...)
	p.mu.release()
	return nil
}

func (p *FIFOPool) Contains(s Schedulable) bool {
	p.mu.acquire()
	defer p.mu.release()
	for _, u := range p.units {
		if u.ID() == s.ID() {
			return true
		}
	}
	return false
}

func (p *FIFOPool) Remove(s Schedulable) bool {
	p.mu.acquire()
	defer p.mu.release()
	for i, u := range p.units {
		if u.ID() == s.ID() {
			p.units = append(p.units[:i], p.units[i+1:]...)
			return true
		}
	}
	return false
}

func (p *FIFOPool) PrintAll(w io.Writer) {
	p.mu.acquire()
	defer p.mu.release()
	for _, u := range p.units {
		fmt.Fprintf(w, "%s %d\n", p.String(), uint64(u.ID()))
	}
}

// PopWait backs PoolWaiter for FIFOPool: a plain spin/sleep poll, since
// FIFOPool carries no futex — a pool wanting PopWait with no busy-waiting
// should use FIFOWaitPool instead.
func (p *FIFOPool) PopWait(ctx context.Context, timeout time.Duration) (Schedulable, bool) {
	deadlineC := time.After(timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if u, ok := p.Pop(); ok {
			return u, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadlineC:
			return nil, false
		case <-ticker.C:
		}
	}
}
