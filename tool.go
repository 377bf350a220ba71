package worklet

import (
	"context"

	"github.com/zoobzio/hookz"
)

// EventKind enumerates the tool/event hook points named in spec.md §7:
// create, revive, run, finish, yield, suspend, resume, free, cancel, join,
// plus migrate (supplemented from original_source/tool.c, which tracks a
// migrate callback distinct from the others).
type EventKind int

const (
	EventCreate EventKind = iota
	EventRevive
	EventRun
	EventFinish
	EventYield
	EventSuspend
	EventResume
	EventFree
	EventCancel
	EventJoin
	EventMigrate
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventRevive:
		return "revive"
	case EventRun:
		return "run"
	case EventFinish:
		return "finish"
	case EventYield:
		return "yield"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventFree:
		return "free"
	case EventCancel:
		return "cancel"
	case EventJoin:
		return "join"
	case EventMigrate:
		return "migrate"
	default:
		return "unknown"
	}
}

// hookKey maps an EventKind to the hookz.Key registered handlers attach to.
// hookz keys events by name, so EventKind values are rendered through
// String() rather than carrying their own key type.
func hookKey(k EventKind) hookz.Key {
	return hookz.Key("worklet.tool." + k.String())
}

// ToolEvent is the payload every tool/event hook handler receives, shaped
// after the richer ABT_tool_context payload from original_source/tool.c
// (see SPEC_FULL.md §6's supplemented-features list). The runtime's own
// emit sites always fill Kind and UnitID, and fill PoolID (the destination
// pool) only for EventMigrate; they leave PeerID and StreamID zero.
type ToolEvent struct {
	Kind     EventKind
	UnitID   UnitID
	PoolID   uint64
	PeerID   UnitID // joiner, canceler-target, or migration peer; zero if n/a
	StreamID int32
}

// toolHub is the single opaque tool/event hook the spec describes: one
// *hookz.Hooks[ToolEvent] owned by the Runtime, not one per object, exactly
// as Timeout owns one *hookz.Hooks[TimeoutEvent] per instance — except here
// there is exactly one instance (the Runtime) to own it.
type toolHub struct {
	hooks *hookz.Hooks[ToolEvent]
}

func newToolHub() *toolHub {
	return &toolHub{hooks: hookz.New[ToolEvent]()}
}

// On registers a handler for a specific EventKind. The handler runs
// asynchronously via hookz and must not context-switch the calling unit
// (spec.md §7): do not call Yield/Suspend/Join from inside a handler.
func (h *toolHub) On(kind EventKind, handler func(context.Context, ToolEvent) error) error {
	_, err := h.hooks.Hook(hookKey(kind), handler)
	return err
}

// emit fires kind for the given event, swallowing hookz errors the way
// Timeout does at its `_ = t.hooks.Emit(...)` call sites: a tool hook must
// never be able to fail the operation that triggered it.
func (h *toolHub) emit(ctx context.Context, ev ToolEvent) {
	_ = h.hooks.Emit(ctx, hookKey(ev.Kind), ev) //nolint:errcheck
}

// Close shuts down the hook registry. Safe to call once during Finalize.
func (h *toolHub) Close() error {
	return h.hooks.Close()
}
