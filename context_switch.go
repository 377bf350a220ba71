package worklet

import "sync/atomic"

// machineContext is a Thread's yieldable execution: its own goroutine,
// paired with two rendezvous channels used to hand control back and forth
// with whatever goroutine is driving the hosting Stream's scheduler loop.
// Go gives us no way to switch stacks directly, so the context switch the
// spec calls for is built the way toysched's G/block/resume channel pair
// builds it: the Thread's goroutine blocks on resume until told to run,
// and the driver blocks on parked until the Thread yields or finishes.
//
// This is the only goroutine-per-Thread cost this design pays: at most one
// of {Thread goroutine, driver goroutine} is ever runnable at a time, so
// "yieldable" is enforced by construction rather than by a preemption
// mechanism spec.md's Non-goals explicitly exclude.
type machineContext struct {
	resume chan struct{}
	parked chan struct{}

	// started latches once the Thread's goroutine has been spawned; a
	// fresh Thread created but never run has no goroutine yet.
	started atomic.Bool

	// transferKind records why the Thread last parked, consumed by the
	// scheduler driving it to decide what happens next (spec.md §4.4's
	// nine transfer kinds).
	transferKind atomic.Int32

	// handoff names the specific Thread a *_to transfer should run next,
	// read by the driver immediately after resumeAndWait returns one of
	// the *To transfer kinds.
	handoff atomic.Pointer[Thread]
}

// transferKind values, one per spec.md §4.4 transfer the machine context
// must distinguish when a Thread hands control back to its driver.
const (
	transferNone transferKind = iota
	transferYield
	transferYieldTo
	transferSuspend
	transferSuspendTo
	transferExit
	transferExitTo
	transferCancel
	transferFinish
	transferMigrate
)

type transferKind int32

func newMachineContext() *machineContext {
	return &machineContext{
		resume: make(chan struct{}),
		parked: make(chan struct{}),
	}
}

// spawn starts the Thread's goroutine running body, blocking it immediately
// on the first resume signal — the goroutine exists but does not execute
// body until the driver sends the first resume.
func (mc *machineContext) spawn(body func()) {
	if !mc.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		<-mc.resume
		normalReturn := false
		// runtime.Goexit (selfExit's implementation) unwinds straight to
		// deferred calls and never reaches the statements after body():
		// the defer is what guarantees parked is always signaled, but
		// only overrides transferKind when body neither returned normally
		// nor set an explicit exit kind itself.
		defer func() {
			if !normalReturn && mc.transferKind.Load() == int32(transferNone) {
				mc.transferKind.Store(int32(transferFinish))
			}
			mc.parked <- struct{}{}
		}()
		body()
		normalReturn = true
		mc.transferKind.Store(int32(transferFinish))
	}()
}

// resumeAndWait hands control to the Thread's goroutine and blocks until it
// parks again (by yielding, suspending, exiting, or finishing).
func (mc *machineContext) resumeAndWait() transferKind {
	mc.resume <- struct{}{}
	<-mc.parked
	return transferKind(mc.transferKind.Load())
}

// park is called from inside the Thread's own goroutine (i.e. from Body) to
// hand control back to the driver and block until resumed again.
func (mc *machineContext) park(kind transferKind) {
	mc.transferKind.Store(int32(kind))
	mc.parked <- struct{}{}
	<-mc.resume
}
