package worklet

import (
	"context"
	"sync/atomic"

	"github.com/zoobzio/capitan"
)

// MutexOption configures a Mutex at construction.
type MutexOption func(*mutexConfig)

type mutexConfig struct {
	priorityWake bool
}

// WithPriorityWake makes Unlock wake the highest-priority waiter first
// instead of strict FIFO order, supplementing the plain wait-list ordering
// with original_source/mutex.c's priority-mutex variant (SPEC_FULL.md §6).
// This implementation's waitList is FIFO-only, so priority wake is modeled
// by giving priority waiters their own secondary list checked first.
func WithPriorityWake() MutexOption {
	return func(c *mutexConfig) { c.priorityWake = true }
}

// Mutex is a non-reentrant lock built on the shared wait-list (spec.md
// §4.7): Lock from a yieldable unit parks by yielding rather than blocking
// the OS thread, same as every other primitive in this package. A guard
// spinlock is held across the held-check and the wait-list enqueue on the
// lock side, and across the release and the signal on the unlock side —
// the "caller is responsible for holding guarding_lock across the enqueue"
// discipline spec.md §4.7 requires (abti_waitlist.h asserts exactly this),
// which is what makes an Unlock racing a contending Lock unable to slip
// its signal in between the check and the enqueue.
type Mutex struct {
	guard  spinlock
	locked bool
	wl     *waitList
	prioWL *waitList
	cfg    mutexConfig
}

func NewMutex(opts ...MutexOption) *Mutex {
	m := &Mutex{wl: newWaitList()}
	for _, o := range opts {
		o(&m.cfg)
	}
	if m.cfg.priorityWake {
		m.prioWL = newWaitList()
	}
	return m
}

// Lock acquires the mutex, parking on the wait-list if already held. The
// guard is released by waitAndUnlock only after the caller is enqueued, so
// a concurrent Unlock either sees the waiter or the waiter sees the lock
// free — never neither.
func (m *Mutex) Lock(ctx context.Context) error {
	m.guard.acquire()
	for m.locked {
		if err := m.wl.waitAndUnlock(ctx, m.guard.release); err != nil {
			return err
		}
		m.guard.acquire()
	}
	m.locked = true
	m.guard.release()
	return nil
}

// LockHigh is Lock for a waiter that should be woken ahead of plain Lock
// callers when WithPriorityWake is set (the priority-mutex lock path from
// original_source/mutex.c). Without WithPriorityWake it degrades to Lock.
func (m *Mutex) LockHigh(ctx context.Context) error {
	if m.prioWL == nil {
		return m.Lock(ctx)
	}
	m.guard.acquire()
	for m.locked {
		if err := m.prioWL.waitAndUnlock(ctx, m.guard.release); err != nil {
			return err
		}
		m.guard.acquire()
	}
	m.locked = true
	m.guard.release()
	return nil
}

// TryLock acquires the mutex only if it is currently free.
func (m *Mutex) TryLock() error {
	m.guard.acquire()
	defer m.guard.release()
	if m.locked {
		return newError("TryLock", KindLockBusy, ErrLockBusy)
	}
	m.locked = true
	return nil
}

// Unlock releases the mutex and wakes exactly one waiter (priority list
// first, when WithPriorityWake is set). The release and the signal happen
// under the same guard the lock side enqueues under.
func (m *Mutex) Unlock() error {
	m.guard.acquire()
	defer m.guard.release()
	if !m.locked {
		return newError("Unlock", KindInvState, ErrInvState)
	}
	m.locked = false
	if m.prioWL != nil && m.prioWL.len() > 0 {
		capitan.Info(context.Background(), SignalMutexContended, FieldWaitersLen.Field(m.prioWL.len()))
		m.prioWL.signal()
		return nil
	}
	if m.wl.len() > 0 {
		capitan.Info(context.Background(), SignalMutexContended, FieldWaitersLen.Field(m.wl.len()))
	}
	m.wl.signal()
	return nil
}

// RecursiveMutex allows the same logical owner to Lock repeatedly without
// deadlocking itself, unlocking only when the hold count returns to zero
// (original_source/mutex.c's recursive variant, SPEC_FULL.md §6). Ownership
// is identified by the calling unit's id via Self(ctx); a caller outside
// any running unit is always treated as a distinct owner per call.
type RecursiveMutex struct {
	base  Mutex
	owner atomic.Uint64 // UnitID of current owner, 0 means unheld
	count atomic.Int32
}

func NewRecursiveMutex(opts ...MutexOption) *RecursiveMutex {
	return &RecursiveMutex{base: *NewMutex(opts...)}
}

func (m *RecursiveMutex) callerID(ctx context.Context) (uint64, bool) {
	s, ok := Self(ctx)
	if !ok {
		return 0, false
	}
	return uint64(s.ID()), true
}

func (m *RecursiveMutex) Lock(ctx context.Context) error {
	if id, ok := m.callerID(ctx); ok && m.owner.Load() == id {
		m.count.Add(1)
		return nil
	}
	if err := m.base.Lock(ctx); err != nil {
		return err
	}
	if id, ok := m.callerID(ctx); ok {
		m.owner.Store(id)
	}
	m.count.Store(1)
	return nil
}

func (m *RecursiveMutex) Unlock(ctx context.Context) error {
	if m.count.Load() == 0 {
		return newError("Unlock", KindInvState, ErrInvState)
	}
	if m.count.Add(-1) > 0 {
		return nil
	}
	m.owner.Store(0)
	return m.base.Unlock()
}
