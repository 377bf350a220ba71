package worklet

import "context"

// selfInfo is the per-unit identity threaded through a running Body's
// context, the idiomatic-Go replacement for original_source/self.c's
// thread-local "current ULT" cache: Go has no goroutine-local storage, so
// the running unit's handle travels on the context it was invoked with
// instead of a global lookup.
type selfInfo struct {
	u      Schedulable
	stream *Stream
}

type selfKeyType struct{}

var selfKey selfKeyType

// withSelf attaches self-identity to ctx; called once, by the scheduler,
// immediately before invoking a unit's Body (spec.md §4.3's "schedule"
// dispatch), never by user code.
func withSelf(ctx context.Context, s Schedulable, stream *Stream) context.Context {
	return context.WithValue(ctx, selfKey, &selfInfo{u: s, stream: stream})
}

func selfFrom(ctx context.Context) (*selfInfo, bool) {
	v, ok := ctx.Value(selfKey).(*selfInfo)
	return v, ok
}

// Self returns the handle of the unit currently running under ctx, mirroring
// original_source/self.c's ABT_self_get_thread fast path. false means ctx
// was not derived from a running unit's Body invocation.
func Self(ctx context.Context) (Schedulable, bool) {
	si, ok := selfFrom(ctx)
	if !ok {
		return nil, false
	}
	return si.u, true
}

// SelfGetStream returns the Stream the calling unit is currently running on.
func SelfGetStream(ctx context.Context) (*Stream, bool) {
	si, ok := selfFrom(ctx)
	if !ok {
		return nil, false
	}
	if st := si.u.unit().lastStream.Load(); st != nil {
		return st, true
	}
	return si.stream, true
}

// SelfLastPoolID returns the pool id the calling unit was popped from to
// start this run, or (0, false) outside a running unit.
func SelfLastPoolID(ctx context.Context) (uint64, bool) {
	si, ok := selfFrom(ctx)
	if !ok {
		return 0, false
	}
	p := si.u.unit().Pool()
	if p == nil {
		return 0, false
	}
	return p.ID(), true
}

// SelfSetArg/SelfGetArg let a running unit stash a value for itself to read
// back later in the same run (original_source/self.c's self-argument slot),
// distinct from the immutable args passed at creation time.
func SelfSetArg(ctx context.Context, v any) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfSetArg", KindInvContext, ErrInvContext)
	}
	u := si.u.unit()
	u.argMu.Lock()
	u.arg = v
	u.argMu.Unlock()
	return nil
}

func SelfGetArg(ctx context.Context) (any, error) {
	si, ok := selfFrom(ctx)
	if !ok {
		return nil, newError("SelfGetArg", KindInvContext, ErrInvContext)
	}
	u := si.u.unit()
	u.argMu.Lock()
	defer u.argMu.Unlock()
	return u.arg, nil
}

// SelfSchedule runs one extra scheduling pass on the calling unit's stream
// before yielding, the original_source/self.c "self schedule now" fast path
// supplemented into this design (SPEC_FULL.md §6). It is a convenience over
// SelfYield for a Thread that wants its peers to get a pass immediately
// rather than waiting for the scheduler to naturally reach it again.
func SelfSchedule(ctx context.Context) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfSchedule", KindInvContext, ErrInvContext)
	}
	sched := si.stream.mainScheduler()
	if sched != nil {
		sched.runOnce(ctx, si.stream)
	}
	return SelfYield(ctx)
}

// SelfYield yields the calling unit back to its scheduler. Valid only when
// the calling unit is a yieldable Thread (spec.md §4.4); a Tasklet calling
// this gets KindInvContext, matching ABT_TASK-vs-ABT_THREAD self calls in
// original_source/self.c.
func SelfYield(ctx context.Context) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfYield", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfYield", KindInvContext, ErrInvContext)
	}
	return th.selfYield()
}

// SelfSuspend suspends the calling Thread until explicitly resumed by
// another unit (spec.md §4.4).
func SelfSuspend(ctx context.Context) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfSuspend", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfSuspend", KindInvContext, ErrInvContext)
	}
	return th.selfSuspend()
}

// SelfYieldTo yields the calling Thread directly to target, pulling target
// out of its pool and running it next in the same scheduling pass rather
// than leaving the choice to the scheduler (spec.md §4.4's "yield_to").
func SelfYieldTo(ctx context.Context, target *Thread) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfYieldTo", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfYieldTo", KindInvContext, ErrInvContext)
	}
	if target == nil {
		return newError("SelfYieldTo", KindInvArg, ErrInvArg)
	}
	return th.selfYieldTo(target)
}

// SelfSuspendTo is SelfYieldTo's suspending counterpart: self is not
// requeued, only an explicit Resume schedules it again.
func SelfSuspendTo(ctx context.Context, target *Thread) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfSuspendTo", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfSuspendTo", KindInvContext, ErrInvContext)
	}
	if target == nil {
		return newError("SelfSuspendTo", KindInvArg, ErrInvArg)
	}
	return th.selfSuspendTo(target)
}

// SelfSetSpecific installs value under key in the calling unit's private
// keytable, allocating the table on first use (spec.md §4.9's
// "set_specific"). Works for both Thread and Task callers — TLS is a
// property of any work unit, not just yieldable ones.
func SelfSetSpecific(ctx context.Context, key KeyID, value any) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfSetSpecific", KindInvContext, ErrInvContext)
	}
	si.u.unit().keytableFor(8).Set(key, value)
	return nil
}

// SelfGetSpecific reads back the value installed by SelfSetSpecific under
// key, or (nil, false) if nothing was ever set for it on this unit (spec.md
// §4.9's "get_specific").
func SelfGetSpecific(ctx context.Context, key KeyID) (any, bool) {
	si, ok := selfFrom(ctx)
	if !ok {
		return nil, false
	}
	kt := si.u.unit().kt.Load()
	if kt == nil {
		return nil, false
	}
	return kt.Get(key)
}

// SelfExit terminates the calling unit immediately: for a Thread this never
// returns to the caller (it unwinds via runtime.Goexit, see thread.go); for
// a Tasklet it returns a sentinel error (see isSelfExit) and the Body keeps
// running unless it returns on that error itself.
func SelfExit(ctx context.Context) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfExit", KindInvContext, ErrInvContext)
	}
	switch u := si.u.(type) {
	case *Thread:
		u.selfExit() // does not return
		return nil
	case *Task:
		return errTaskSelfExit
	default:
		return newError("SelfExit", KindInvContext, ErrInvContext)
	}
}

// SelfResumeYieldTo resumes a Suspended target and transfers control to it
// directly, requeuing the caller like a plain yield (spec.md §4.4's
// "resume_yield_to").
func SelfResumeYieldTo(ctx context.Context, target *Thread) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfResumeYieldTo", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfResumeYieldTo", KindInvContext, ErrInvContext)
	}
	if target == nil {
		return newError("SelfResumeYieldTo", KindInvArg, ErrInvArg)
	}
	return th.selfResumeYieldTo(target)
}

// SelfResumeSuspendTo resumes a Suspended target and transfers control to
// it, with the caller taking the target's place as the Blocked one (spec.md
// §4.4's "resume_suspend_to"): only an explicit Resume schedules the caller
// again.
func SelfResumeSuspendTo(ctx context.Context, target *Thread) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfResumeSuspendTo", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfResumeSuspendTo", KindInvContext, ErrInvContext)
	}
	if target == nil {
		return newError("SelfResumeSuspendTo", KindInvArg, ErrInvArg)
	}
	return th.selfResumeSuspendTo(target)
}

// SelfResumeExitTo terminates the calling Thread and hands control to the
// Suspended target in one step (spec.md §4.4's "resume_exit_to"); never
// returns for a Thread caller.
func SelfResumeExitTo(ctx context.Context, target *Thread) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfResumeExitTo", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfResumeExitTo", KindInvContext, ErrInvContext)
	}
	if target == nil {
		return newError("SelfResumeExitTo", KindInvArg, ErrInvArg)
	}
	return th.selfResumeExitTo(target)
}

// SelfExitTo terminates the calling Thread and hands control to target in
// one step (spec.md §4.4's "exit_to"); never returns for a Thread caller,
// and is invalid for a Tasklet (Tasklets cannot name a successor).
func SelfExitTo(ctx context.Context, target *Thread) error {
	si, ok := selfFrom(ctx)
	if !ok {
		return newError("SelfExitTo", KindInvContext, ErrInvContext)
	}
	th, ok := si.u.(*Thread)
	if !ok {
		return newError("SelfExitTo", KindInvContext, ErrInvContext)
	}
	if target == nil {
		return newError("SelfExitTo", KindInvArg, ErrInvArg)
	}
	th.selfExitTo(target) // does not return
	return nil
}

// errTaskSelfExit is the sentinel SelfExit returns to a Tasklet's Body to
// signal early termination; the Body tells it apart from a real failure
// with isSelfExit.
var errTaskSelfExit = newError("SelfExit", KindInvState, nil)
