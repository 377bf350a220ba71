package worklet

import (
	"fmt"
	"io"
	"math/rand/v2"
)

// RandWSPool is a randomized work-stealing pool (spec.md §4.6): Pop first
// tries its own local queue, and only on finding it empty picks a uniformly
// random peer stream's RandWSPool (via streamsSnapshot) and steals from its
// tail. math/rand/v2 is stdlib — no RNG library appears anywhere in the
// example pack, so this is the one place victim selection has no
// third-party source to ground against.
type RandWSPool struct {
	poolBase
	mu    spinlock
	units []Schedulable
}

var _ Pool = (*RandWSPool)(nil)
var _ PoolSizer = (*RandWSPool)(nil)
var _ PoolRemover = (*RandWSPool)(nil)

func NewRandWSPool(mode AccessMode) *RandWSPool {
	return &RandWSPool{poolBase: newPoolBase(mode)}
}

func (p *RandWSPool) Push(s Schedulable) error {
	p.mu.acquire()
	p.units = append(p.units, s)
	p.mu.release()
	return nil
}

// popLocal pops from the pool's own head (LIFO-from-owner, FIFO-from-
// thieves is the canonical work-stealing split: owner pops most-recently
// pushed, thieves steal oldest, minimizing contention on the hot end).
func (p *RandWSPool) popLocal() (Schedulable, bool) {
	p.mu.acquire()
	defer p.mu.release()
	n := len(p.units)
	if n == 0 {
		return nil, false
	}
	u := p.units[n-1]
	p.units = p.units[:n-1]
	return u, true
}

func (p *RandWSPool) stealOne() (Schedulable, bool) {
	p.mu.acquire()
	defer p.mu.release()
	if len(p.units) == 0 {
		return nil, false
	}
	u := p.units[0]
	p.units = p.units[1:]
	return u, true
}

// Pop tries the local queue first, then one random victim among every
// other RandWSPool currently registered on a live Stream.
func (p *RandWSPool) Pop() (Schedulable, bool) {
	if u, ok := p.popLocal(); ok {
		return u, true
	}
	victims := p.candidateVictims()
	if len(victims) == 0 {
		return nil, false
	}
	victim := victims[rand.N(len(victims))]
	return victim.stealOne()
}

func (p *RandWSPool) candidateVictims() []*RandWSPool {
	var out []*RandWSPool
	for _, s := range streamsSnapshot() {
		sched := s.mainScheduler()
		if sched == nil {
			continue
		}
		for _, other := range sched.pools {
			if rp, ok := other.(*RandWSPool); ok && rp != p {
				out = append(out, rp)
			}
		}
	}
	return out
}

func (p *RandWSPool) IsEmpty() bool {
	p.mu.acquire()
	defer p.mu.release()
	return len(p.units) == 0
}

func (p *RandWSPool) GetSize() int {
	p.mu.acquire()
	defer p.mu.release()
	return len(p.units)
}

func (p *RandWSPool) Contains(s Schedulable) bool {
	p.mu.acquire()
	defer p.mu.release()
	for _, u := range p.units {
		if u.ID() == s.ID() {
			return true
		}
	}
	return false
}

func (p *RandWSPool) Remove(s Schedulable) bool {
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

func (p *RandWSPool) PrintAll(w io.Writer) {
	p.mu.acquire()
	defer p.mu.release()
	for _, u := range p.units {
		fmt.Fprintf(w, "%s %d\n", p.String(), uint64(u.ID()))
	}
}
