package worklet

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a test-and-set lock over a bool, with acquire/release
// semantics matching spec.md §4.1. It is used for the rare, short critical
// sections the design calls out explicitly: the global stream-list mutation,
// keytable first-install, and wait-list head/tail mutation when the caller
// doesn't already hold an equivalent lock of its own.
//
// A spinlock is not fair and not reentrant; do not hold one across a
// context switch.
type spinlock struct {
	held atomic.Bool
}

// acquire spins (yielding the OS thread between attempts) until the lock is
// taken.
func (s *spinlock) acquire() {
	for !s.tryAcquire() {
		runtime.Gosched()
	}
}

// tryAcquire attempts to take the lock without blocking.
func (s *spinlock) tryAcquire() bool {
	return s.held.CompareAndSwap(false, true)
}

// release drops the lock. Release has release semantics: everything written
// under the lock is visible to the next acquirer's acquire-load.
func (s *spinlock) release() {
	s.held.Store(false)
}

// isLocked reports whether the lock is currently held. Diagnostic only —
// never used to gate correctness decisions.
func (s *spinlock) isLocked() bool {
	return s.held.Load()
}
