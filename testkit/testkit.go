// Package testkit provides test doubles and helpers for worklet-based code,
// adapted from the teacher's testing package: a configurable mock pool in
// place of its MockProcessor, and the same WaitFor/ParallelTest shape for
// driving concurrent scenarios deterministically.
//
// Example usage:
//
//	func TestMyScheduler(t *testing.T) {
//		pool := testkit.NewMockPool(t, worklet.AccessMPMC)
//		sched, _ := worklet.NewScheduler(nil, worklet.SchedBasic, worklet.NewConfig(), pool)
//		...
//		testkit.AssertPopped(t, pool, 1)
//	}
package testkit

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/worklet/worklet"
)

// MockPool is a configurable worklet.Pool double. It records every
// Push/Pop call, lets a test force Pop to fail or delay, and optionally
// advertises the same capability interfaces the built-in pools do
// (PoolSizer, PoolRemover, PoolBulk, PoolPrinter), so it can stand in for
// any built-in pool in a scheduler- or stream-level test.
type MockPool struct { //nolint:govet // test helper struct, functionality over field alignment
	t    *testing.T
	id   uint64
	mode worklet.AccessMode

	mu        sync.Mutex
	units     []worklet.Schedulable
	popDelay  time.Duration
	popErr    bool
	pushCount int64
	popCount  int64
}

var idCounter atomic.Uint64

// NewMockPool builds an empty MockPool advertising mode as its AccessMode
// hint.
func NewMockPool(t *testing.T, mode worklet.AccessMode) *MockPool {
	t.Helper()
	return &MockPool{t: t, id: idCounter.Add(1), mode: mode}
}

var (
	_ worklet.Pool        = (*MockPool)(nil)
	_ worklet.PoolSizer   = (*MockPool)(nil)
	_ worklet.PoolRemover = (*MockPool)(nil)
	_ worklet.PoolBulk    = (*MockPool)(nil)
	_ worklet.PoolPrinter = (*MockPool)(nil)
)

func (p *MockPool) ID() uint64               { return p.id }
func (p *MockPool) Mode() worklet.AccessMode { return p.mode }

func (p *MockPool) CreateUnit(s worklet.Schedulable) (worklet.Schedulable, error) { return s, nil }
func (p *MockPool) FreeUnit(worklet.Schedulable)                                 {}

// WithPopDelay makes every subsequent Pop call sleep d before returning,
// useful for exercising a scheduler's EventFreq check-interval behavior.
func (p *MockPool) WithPopDelay(d time.Duration) *MockPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.popDelay = d
	return p
}

// WithPopError makes every subsequent Pop call report empty regardless of
// queued units, simulating a pool that has gone permanently dry.
func (p *MockPool) WithPopError(forced bool) *MockPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.popErr = forced
	return p
}

func (p *MockPool) Push(s worklet.Schedulable) error {
	atomic.AddInt64(&p.pushCount, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units = append(p.units, s)
	return nil
}

func (p *MockPool) Pop() (worklet.Schedulable, bool) {
	atomic.AddInt64(&p.popCount, 1)
	p.mu.Lock()
	delay := p.popDelay
	forced := p.popErr
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if forced {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.units) == 0 {
		return nil, false
	}
	u := p.units[0]
	p.units = p.units[1:]
	return u, true
}

func (p *MockPool) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units) == 0
}

func (p *MockPool) GetSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units)
}

func (p *MockPool) PopMany(max int) []worklet.Schedulable {
	p.mu.Lock()
	defer p.mu.Unlock()
	if max > len(p.units) {
		max = len(p.units)
	}
	out := append([]worklet.Schedulable(nil), p.units[:max]...)
	p.units = p.units[max:]
	return out
}

func (p *MockPool) PushMany(units []worklet.Schedulable) error {
	atomic.AddInt64(&p.pushCount, int64(len(units)))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units = append(p.units, units...)
	return nil
}

func (p *MockPool) Contains(s worklet.Schedulable) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.units {
		if u.ID() == s.ID() {
			return true
		}
	}
	return false
}

func (p *MockPool) Remove(s worklet.Schedulable) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, u := range p.units {
		if u.ID() == s.ID() {
			p.units = append(p.units[:i], p.units[i+1:]...)
			return true
		}
	}
	return false
}

func (p *MockPool) PrintAll(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for range p.units {
		_, _ = io.WriteString(w, "mockpool unit\n")
	}
}

// PushCount returns the number of times Push/PushMany added a unit.
func (p *MockPool) PushCount() int { return int(atomic.LoadInt64(&p.pushCount)) }

// PopCount returns the number of times Pop was called, whether or not it
// found a unit.
func (p *MockPool) PopCount() int { return int(atomic.LoadInt64(&p.popCount)) }

// AssertPushed verifies that Push/PushMany added exactly n units in total.
func AssertPushed(t *testing.T, pool *MockPool, n int) {
	t.Helper()
	if got := pool.PushCount(); got != n {
		t.Errorf("expected %d pushes, got %d", n, got)
	}
}

// AssertPopped verifies that Pop was called exactly n times.
func AssertPopped(t *testing.T, pool *MockPool, n int) {
	t.Helper()
	if got := pool.PopCount(); got != n {
		t.Errorf("expected %d pops, got %d", n, got)
	}
}

// WaitForCondition polls cond every 2ms until it reports true or timeout
// elapses, mirroring the teacher's WaitForCalls shape for an arbitrary
// predicate instead of a fixed call-count comparison.
func WaitForCondition(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// ParallelTest runs testFunc concurrently across n goroutines and waits for
// all of them to finish, matching the teacher's ParallelTest shape.
func ParallelTest(t *testing.T, n int, testFunc func(id int)) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}
	wg.Wait()
}
