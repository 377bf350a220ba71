package worklet

// rootPool holds at most one unit: the Thread hosting a Stream's main
// scheduler itself (spec.md §3's "root pool"). It is never exposed to
// callers — a Stream owns exactly one, created alongside it.
type rootPool struct {
	poolBase
	mu  spinlock
	unit Schedulable
}

var _ Pool = (*rootPool)(nil)

func newRootPool() *rootPool {
	return &rootPool{poolBase: newPoolBase(AccessPrivate)}
}

func (p *rootPool) Push(s Schedulable) error {
	p.mu.acquire()
	defer p.mu.release()
	if p.unit != nil {
		return newError("rootPool.Push", KindInvState, ErrInvState)
	}
	p.unit = s
	return nil
}

func (p *rootPool) Pop() (Schedulable, bool) {
	p.mu.acquire()
	defer p.mu.release()
	if p.unit == nil {
		return nil, false
	}
	u := p.unit
	p.unit = nil
	return u, true
}

func (p *rootPool) IsEmpty() bool {
	p.mu.acquire()
	defer p.mu.release()
	return p.unit == nil
}
