package worklet

import (
	"context"
	"runtime"
	"sync"
)

// Thread is a yieldable work unit (spec.md §3's "ULT"): it owns a private
// machine context and can suspend partway through Body, to be resumed later
// from anywhere. See context_switch.go for how that is built on Go.
type Thread struct {
	base unit
	mc   *machineContext
}

var _ Schedulable = (*Thread)(nil)

func (t *Thread) ID() UnitID      { return t.base.ID() }
func (t *Thread) unit() *unit     { return &t.base }
func (t *Thread) State() unitState { return t.base.State() }

// CreateThread builds a Thread bound to body/args, not yet placed on any
// pool (spec.md §4.5's create, unbound-to-stream form). Use CreateThreadOn
// to target a specific Stream's pool directly.
func CreateThread(body Body, args ...any) *Thread {
	t := &Thread{
		base: unit{
			flags: FlagExt | FlagThread | FlagYieldable | FlagMigratable,
			body:  body,
			args:  args,
		},
		mc: newMachineContext(),
	}
	t.base.setState(stateReady)
	return t
}

// CreateThreadOn builds a Thread and pushes it directly onto stream's main
// scheduler's first pool (spec.md §4.5 "create_on_xstream").
func CreateThreadOn(stream *Stream, body Body, args ...any) (*Thread, error) {
	t := CreateThread(body, args...)
	sched := stream.mainScheduler()
	if sched == nil || len(sched.pools) == 0 {
		return nil, newError("CreateThreadOn", KindInvState, ErrInvState)
	}
	if err := sched.pools[0].Push(t); err != nil {
		return nil, newError("CreateThreadOn", KindResource, err)
	}
	t.base.setPool(sched.pools[0])
	t.base.lastStream.Store(stream)
	return t, nil
}

// Revive resets a Terminated Thread back to Ready with a new body/args,
// reusing its allocation (spec.md §4.5's "revive": only legal on a
// Terminated unit).
func (t *Thread) Revive(body Body, args ...any) error {
	if t.base.State() != stateTerminated {
		return newError("Revive", KindInvState, ErrInvState)
	}
	t.base.body = body
	t.base.args = args
	t.base.doneOnce = sync.Once{}
	t.base.done = nil
	t.mc = newMachineContext()
	t.base.setState(stateReady)
	if rt := currentRuntime(); rt != nil {
		rt.tool.emit(context.Background(), ToolEvent{Kind: EventRevive, UnitID: t.ID()})
	}
	return nil
}

// Cancel requests the Thread terminate at its next migration/yield-safe
// check (spec.md §4.5). A Thread that has never run and still sits in a
// pool that supports removal is taken out of that pool and terminated at
// once, so its Body never runs. A Thread that never yields and never checks
// its request bits cannot be canceled — this is intentional (Non-goals: no
// preemption).
func (t *Thread) Cancel() error {
	if t.base.State() == stateTerminated {
		return newError("Cancel", KindInvState, ErrInvState)
	}
	t.base.requestCancel()
	if !t.mc.started.Load() {
		if r, ok := t.base.Pool().(PoolRemover); ok && r.Remove(t) {
			t.base.markTerminated()
			if rt := currentRuntime(); rt != nil {
				rt.tool.emit(context.Background(), ToolEvent{Kind: EventCancel, UnitID: t.ID()})
			}
		}
	}
	return nil
}

// Join blocks the caller until the Thread terminates (spec.md §4.5). If the
// caller is itself a yieldable unit running under ctx, Join yields it back
// to the scheduler instead of blocking the OS thread, matching the ULT
// "join yields, doesn't block the ES" requirement — via waitlist.go's
// shared yieldUntilDone, the same discipline every other synchronization
// primitive in this package uses for a yieldable waiter (spec.md §4.7).
func (t *Thread) Join(ctx context.Context) error {
	if rt := currentRuntime(); rt != nil {
		rt.tool.emit(ctx, ToolEvent{Kind: EventJoin, UnitID: t.ID()})
	}
	if si, ok := selfFrom(ctx); ok {
		if joiner, isThread := si.u.(*Thread); isThread {
			return yieldUntilDone(ctx, joiner, t.base.waitDone())
		}
	}
	select {
	case <-t.base.waitDone():
		return nil
	case <-ctx.Done():
		return newError("Join", KindTimedOut, ctx.Err())
	}
}

// JoinMany waits for every Thread in ts to terminate, matching
// ABT_thread_join_many's "wait for the whole set" semantics.
func JoinMany(ctx context.Context, ts ...*Thread) error {
	for _, t := range ts {
		if err := t.Join(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Free joins t, then drops every runtime-held reference to it (spec.md
// §4.5): the id-lookup registration goes away and the free event fires.
// TLS destructors already ran at termination. Freeing the primary Thread, a
// main-scheduler Thread, or the Thread currently running under ctx is
// forbidden.
func (t *Thread) Free(ctx context.Context) error {
	const op = "Free"
	if t.base.hasFlag(FlagPrimary) || t.base.hasFlag(FlagMainSched) {
		return newError(op, KindInvState, ErrInvState)
	}
	if si, ok := selfFrom(ctx); ok && si.u == Schedulable(t) {
		return newError(op, KindInvContext, ErrInvContext)
	}
	if err := t.Join(ctx); err != nil {
		return err
	}
	if rt := currentRuntime(); rt != nil {
		rt.metrics.Counter(MetricUnitsFreed).Inc()
		rt.unregister(t.ID())
		rt.tool.emit(ctx, ToolEvent{Kind: EventFree, UnitID: t.ID()})
	}
	return nil
}

// FreeMany frees every Thread in ts, stopping at the first failure
// (ABT_thread_free_many).
func FreeMany(ctx context.Context, ts ...*Thread) error {
	for _, t := range ts {
		if err := t.Free(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetMigratable marks t eligible (or ineligible) for MigrateTo* requests.
// The primary and main-scheduler Threads are pinned to their stream and can
// never be made migratable (spec.md Non-goals).
func (t *Thread) SetMigratable(flag bool) error {
	if t.base.hasFlag(FlagPrimary) || t.base.hasFlag(FlagMainSched) {
		return newError("SetMigratable", KindInvState, ErrInvState)
	}
	t.base.setMigratable(flag)
	return nil
}

// IsMigratable reports whether a MigrateTo* request against t can succeed.
func (t *Thread) IsMigratable() bool { return t.base.hasFlag(FlagMigratable) }

// SetMigrationCallback installs fn to run once per completed migration of t,
// after t has landed in its destination pool (spec.md §4.8's optional user
// callback; ABT_thread_set_callback). A nil fn clears it.
func (t *Thread) SetMigrationCallback(fn func(Schedulable)) {
	t.base.migration.callback = fn
}

// ThreadAttr is the read-back attribute record ABT_thread_get_attr exposes.
// Stack geometry is absent: Threads run on Go-managed goroutine stacks.
type ThreadAttr struct {
	Migratable bool
	Named      bool
	PoolID     uint64
}

// Attr snapshots t's attributes.
func (t *Thread) Attr() ThreadAttr {
	a := ThreadAttr{
		Migratable: t.base.hasFlag(FlagMigratable),
		Named:      t.base.hasFlag(FlagNamed),
	}
	if p := t.base.Pool(); p != nil {
		a.PoolID = p.ID()
	}
	return a
}

// AssociatedPool returns the pool t currently belongs to, nil if unbound.
func (t *Thread) AssociatedPool() Pool { return t.base.Pool() }

// SetAssociatedPool re-binds t to p without moving any queued entry: legal
// only while t is not sitting in its current pool (a Ready-in-pool move is
// a migration and goes through MigrateToPool instead).
func (t *Thread) SetAssociatedPool(p Pool) error {
	const op = "SetAssociatedPool"
	if p == nil {
		return newError(op, KindInvArg, ErrInvArg)
	}
	if cur := t.base.Pool(); cur != nil {
		if r, ok := cur.(PoolRemover); ok && r.Contains(t) {
			return newError(op, KindInvState, ErrInvState)
		}
	}
	t.base.setPool(p)
	return nil
}

// CreateThreadTo builds a Thread and transfers control to it immediately,
// bypassing any pool for the first run (spec.md §4.5's "create_to"): the
// caller yields as if by SelfYieldTo and the new Thread starts in the same
// scheduling pass. The new Thread inherits the caller's pool for its later
// requeues. Only a yieldable caller can do this.
func CreateThreadTo(ctx context.Context, body Body, args ...any) (*Thread, error) {
	const op = "CreateThreadTo"
	si, ok := selfFrom(ctx)
	if !ok {
		return nil, newError(op, KindInvContext, ErrInvContext)
	}
	caller, ok := si.u.(*Thread)
	if !ok {
		return nil, newError(op, KindInvContext, ErrInvContext)
	}
	t := CreateThread(body, args...)
	t.base.setPool(caller.base.Pool())
	if err := caller.selfYieldTo(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReviveTo is Revive followed by a direct transfer (spec.md §4.5's
// "revive_to"): t restarts with the new body in the same scheduling pass,
// never touching a pool on the way. Only a yieldable caller can do this.
func (t *Thread) ReviveTo(ctx context.Context, body Body, args ...any) error {
	const op = "ReviveTo"
	si, ok := selfFrom(ctx)
	if !ok {
		return newError(op, KindInvContext, ErrInvContext)
	}
	caller, ok := si.u.(*Thread)
	if !ok {
		return newError(op, KindInvContext, ErrInvContext)
	}
	if err := t.Revive(body, args...); err != nil {
		return err
	}
	if t.base.Pool() == nil {
		t.base.setPool(caller.base.Pool())
	}
	return caller.selfYieldTo(t)
}

// selfYield parks the Thread's goroutine, handing control back to whatever
// called resumeAndWait, then re-enqueues the Thread on its own pool so the
// scheduler can pick it up again later.
func (t *Thread) selfYield() error {
	t.requeue()
	t.mc.park(transferYield)
	return nil
}

// selfSuspend parks the Thread without re-enqueuing it: only an explicit
// Resume from another unit will ever schedule it again (spec.md §4.4).
func (t *Thread) selfSuspend() error {
	t.base.setState(stateBlocked)
	t.mc.park(transferSuspend)
	t.base.setState(stateRunning)
	return nil
}

// selfExit unwinds the Thread's goroutine via runtime.Goexit, so the
// calling Body never returns past this point; the machine context's
// trampoline defer still observes the exit and reports the transferExit
// kind stored here to its driver.
func (t *Thread) selfExit() {
	t.base.requestCancel()
	t.mc.transferKind.Store(int32(transferExit))
	runtime.Goexit()
}

// requeue pushes the Thread back onto its last-known pool. Called after a
// plain Yield (not YieldTo/Suspend).
func (t *Thread) requeue() {
	if p := t.base.Pool(); p != nil {
		_ = p.Push(t)
	}
}

// Resume moves a Suspended Thread back onto its pool, making it eligible to
// run again (spec.md §4.4's "resume").
func (t *Thread) Resume() error {
	if t.base.State() != stateBlocked {
		return newError("Resume", KindInvState, ErrInvState)
	}
	t.requeue()
	if rt := currentRuntime(); rt != nil {
		rt.tool.emit(context.Background(), ToolEvent{Kind: EventResume, UnitID: t.ID()})
	}
	return nil
}

// pullFromPool removes target from whatever pool currently holds it, if its
// pool supports direct removal (spec.md §4.4 requires this for every *_to
// transfer: the target must come out of its pool immediately rather than
// wait its turn).
func pullFromPool(target *Thread) {
	p := target.base.Pool()
	if p == nil {
		return
	}
	if remover, ok := p.(PoolRemover); ok {
		remover.Remove(target)
	}
}

// selfYieldTo yields directly to target: self is requeued exactly like a
// plain Yield, but the driver is told (via the machine context's handoff
// slot) to run target next instead of popping from a pool (spec.md §4.4's
// "yield_to").
func (t *Thread) selfYieldTo(target *Thread) error {
	pullFromPool(target)
	t.mc.handoff.Store(target)
	t.requeue()
	t.mc.park(transferYieldTo)
	return nil
}

// selfSuspendTo is selfYieldTo's suspending counterpart: self parks without
// being requeued, so only an explicit Resume brings it back.
func (t *Thread) selfSuspendTo(target *Thread) error {
	pullFromPool(target)
	t.mc.handoff.Store(target)
	t.base.setState(stateBlocked)
	t.mc.park(transferSuspendTo)
	t.base.setState(stateRunning)
	return nil
}

// selfResumeYieldTo resumes a Suspended target and transfers control to it
// directly in the same step, combining Resume with YieldTo (spec.md §4.4's
// "resume_yield_to"): self is requeued, target runs next.
func (t *Thread) selfResumeYieldTo(target *Thread) error {
	if target.base.State() != stateBlocked {
		return newError("ResumeYieldTo", KindInvState, ErrInvState)
	}
	t.mc.handoff.Store(target)
	t.requeue()
	t.mc.park(transferYieldTo)
	return nil
}

// selfResumeSuspendTo is selfResumeYieldTo's suspending counterpart (spec.md
// §4.4's "resume_suspend_to"): the Suspended target runs next, and self
// takes its place as the Blocked one — only an explicit Resume brings self
// back.
func (t *Thread) selfResumeSuspendTo(target *Thread) error {
	if target.base.State() != stateBlocked {
		return newError("ResumeSuspendTo", KindInvState, ErrInvState)
	}
	t.mc.handoff.Store(target)
	t.base.setState(stateBlocked)
	t.mc.park(transferSuspendTo)
	t.base.setState(stateRunning)
	return nil
}

// selfResumeExitTo terminates self and hands control to the Suspended
// target in one step (spec.md §4.4's "resume_exit_to"); never returns.
func (t *Thread) selfResumeExitTo(target *Thread) error {
	if target.base.State() != stateBlocked {
		return newError("ResumeExitTo", KindInvState, ErrInvState)
	}
	t.mc.handoff.Store(target)
	t.base.requestCancel()
	t.mc.transferKind.Store(int32(transferExitTo))
	runtime.Goexit()
	return nil
}

// selfExitTo terminates self and hands control to target in one step
// (spec.md §4.4's "exit_to"); like selfExit, this never returns.
func (t *Thread) selfExitTo(target *Thread) {
	pullFromPool(target)
	t.mc.handoff.Store(target)
	t.base.requestCancel()
	t.mc.transferKind.Store(int32(transferExitTo))
	runtime.Goexit()
}

// runThread drives one scheduling quantum of a Thread: spawning its
// goroutine on first run, resuming it, and interpreting the transferKind it
// parks with to decide whether it goes back on a pool, stays blocked, or is
// finished (spec.md §4.4's nine transfer kinds, §4.5's lifecycle).
func runThread(ctx context.Context, rt *Runtime, stream *Stream, sc *Scheduler, t *Thread) {
	if t.base.hasRequest(reqCancel) {
		t.base.markTerminated()
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventCancel, UnitID: t.ID()})
		}
		return
	}

	runCtx := withSelf(ctx, t, stream)
	t.base.lastStream.Store(stream)
	t.base.setState(stateRunning)

	if !t.mc.started.Load() {
		if rt != nil {
			rt.metrics.Counter(MetricUnitsCreated).Inc()
			rt.tool.emit(ctx, ToolEvent{Kind: EventCreate, UnitID: t.ID()})
			rt.register(t)
		}
		t.mc.spawn(func() {
			defer func() {
				if r := recover(); r != nil {
					// A panicking Body still has to hand control back to
					// the driver; runtime.Goexit from selfExit does not
					// trigger recover, so this only ever fires for a
					// genuine Body panic.
					t.mc.transferKind.Store(int32(transferFinish))
				}
			}()
			t.base.body(runCtx, t.base.args...)
		})
	}

	if rt != nil {
		rt.tool.emit(ctx, ToolEvent{Kind: EventRun, UnitID: t.ID()})
	}

	kind := t.mc.resumeAndWait()
	if rt != nil {
		rt.metrics.Counter(MetricContextSwitches).Inc()
	}

	var handoff *Thread
	switch kind {
	case transferYield:
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventYield, UnitID: t.ID()})
		}
	case transferSuspend:
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventSuspend, UnitID: t.ID()})
		}
	case transferYieldTo:
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventYield, UnitID: t.ID()})
		}
		handoff = t.mc.handoff.Swap(nil)
	case transferSuspendTo:
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventSuspend, UnitID: t.ID()})
		}
		handoff = t.mc.handoff.Swap(nil)
	case transferFinish, transferExit:
		if rt != nil {
			rt.unregister(t.ID())
		}
		t.base.markTerminated()
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventFinish, UnitID: t.ID()})
		}
	case transferExitTo:
		if rt != nil {
			rt.unregister(t.ID())
		}
		t.base.markTerminated()
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventFinish, UnitID: t.ID()})
		}
		handoff = t.mc.handoff.Swap(nil)
	}

	if t.base.hasRequest(reqMigrate) && t.base.State() != stateTerminated {
		t.base.clearRequest(reqMigrate)
		if dst := t.base.migration.targetPool; dst != nil {
			t.base.migration.targetPool = nil
			_ = MigrateToPool(ctx, rt, t, dst)
		}
	}

	// A *_to transfer names its target directly: run it now, in this same
	// scheduling pass, instead of leaving the driver to pop whatever its
	// pools happen to offer next (spec.md §4.4's "transfer control
	// directly to" requirement for yield_to/suspend_to/exit_to).
	if handoff != nil {
		runThread(ctx, rt, stream, sc, handoff)
	}
}
