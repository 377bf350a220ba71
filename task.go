package worklet

import (
	"context"
	"errors"
)

// Task is a non-yieldable work unit (spec.md §3's "Tasklet"): it runs to
// completion on whichever goroutine its scheduler's driver loop is using,
// with no private stack or machine context. It cannot Yield, Suspend, or
// Migrate — attempting any of those returns KindInvContext/KindMigrationNA.
type Task struct {
	base unit
}

var _ Schedulable = (*Task)(nil)

func (t *Task) ID() UnitID   { return t.base.ID() }
func (t *Task) unit() *unit  { return &t.base }
func (t *Task) State() unitState { return t.base.State() }

// CreateTask builds a Tasklet bound to body/args, not yet placed on any
// pool (spec.md §4.5 creation semantics, Task variant).
func CreateTask(body Body, args ...any) *Task {
	t := &Task{base: unit{
		flags: FlagExt,
		body:  body,
		args:  args,
	}}
	t.base.setState(stateReady)
	return t
}

// Cancel requests the Task stop before it next runs. Once a Task has
// started running it cannot be canceled mid-body (spec.md Non-goals: no
// preemption) — the request only prevents a not-yet-started Task from
// running at all.
func (t *Task) Cancel() error {
	if t.base.State() == stateTerminated {
		return newError("Cancel", KindInvState, ErrInvState)
	}
	t.base.requestCancel()
	return nil
}

// runTask executes a Task's Body inline on the calling (driver) goroutine,
// with the tool/event hook pair around run/finish (spec.md §4.5, §7).
func runTask(ctx context.Context, rt *Runtime, stream *Stream, t *Task) {
	if t.base.hasRequest(reqCancel) {
		t.base.markTerminated()
		if rt != nil {
			rt.tool.emit(ctx, ToolEvent{Kind: EventCancel, UnitID: t.ID()})
		}
		return
	}

	t.base.lastStream.Store(stream)
	t.base.setState(stateRunning)
	if rt != nil {
		rt.metrics.Counter(MetricUnitsCreated).Inc()
		rt.tool.emit(ctx, ToolEvent{Kind: EventRun, UnitID: t.ID()})
		rt.register(t)
	}

	runCtx := withSelf(ctx, t, stream)
	func() {
		defer func() {
			if r := recover(); r != nil {
				// A Task's Body is expected never to panic; spec.md has no
				// recovery semantics for this, so surface it as a
				// terminated unit rather than crashing the driver loop.
			}
		}()
		t.base.body(runCtx, t.base.args...)
	}()

	t.base.markTerminated()
	if rt != nil {
		rt.tool.emit(ctx, ToolEvent{Kind: EventFinish, UnitID: t.ID()})
		rt.unregister(t.ID())
	}
}

// Join blocks the caller until the Task finishes running (spec.md §4.5).
func (t *Task) Join(ctx context.Context) error {
	select {
	case <-t.base.waitDone():
		return nil
	case <-ctx.Done():
		return newError("Join", KindTimedOut, ctx.Err())
	}
}

// Free joins t and drops every runtime-held reference to it, the Task half
// of spec.md §4.5's free. Tasks carry no stack, so there is nothing else to
// release beyond the id registration.
func (t *Task) Free(ctx context.Context) error {
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

// isSelfExit reports whether err is the sentinel SelfExit(ctx) returns for
// a Task, letting callers distinguish an intentional early exit from a real
// failure without inspecting its Kind by hand.
func isSelfExit(err error) bool {
	return errors.Is(err, errTaskSelfExit)
}
