package worklet

import (
	"context"
	"sync"
	"sync/atomic"
)

// UnitID is a work unit's lazily-assigned, monotonic, process-wide id.
type UnitID uint64

var nextUnitID atomic.Uint64

// allocUnitID draws the next id from the process-global counter the first
// time a unit's id is observed (spec.md §3: "64-bit id, assigned lazily").
func allocUnitID() UnitID {
	return UnitID(nextUnitID.Add(1))
}

// UnitFlags is the work-unit type bit-set from spec.md §3.
type UnitFlags uint32

const (
	FlagExt UnitFlags = 1 << iota
	FlagThread
	FlagNamed
	FlagRoot
	FlagPrimary
	FlagMainSched
	FlagYieldable
	FlagMigratable
	// Memory-management bits are mutually exclusive; only one is ever set.
	FlagMemExternal // descriptor/stack supplied by the caller, never freed by us
	FlagMemManaged  // descriptor/stack allocated by the runtime itself
)

// unitState is the atomic lifecycle state common to every work unit.
type unitState int32

const (
	stateReady unitState = iota
	stateRunning
	stateBlocked
	stateTerminated
)

func (s unitState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateRunning:
		return "running"
	case stateBlocked:
		return "blocked"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// request bits, spec.md §3: "atomic request bit-set with bits {JOIN, CANCEL,
// MIGRATE}".
const (
	reqJoin uint32 = 1 << iota
	reqCancel
	reqMigrate
)

// Body is a work unit's executable payload. It receives a context carrying
// the running unit's self-identity (see self.go) — the idiomatic-Go stand-in
// for the implicit thread-local "current ULT" lookup the spec's self_*
// operations assume.
type Body func(ctx context.Context, args ...any)

// unit is the data every work unit — Thread or Task — shares: spec.md §3's
// "Work Unit (thread)" fields, minus the Thread-only machine context (see
// thread.go).
type unit struct {
	id         UnitID
	idAssigned atomic.Bool
	flags      UnitFlags
	state      atomic.Int32
	request    atomic.Uint32

	lastStream atomic.Pointer[Stream]
	parent     *unit

	pool Pool

	migration migrationRecord

	kt atomic.Pointer[keytable]

	body Body
	args []any

	// arg is the self-settable argument slot used by SelfSetArg/SelfGetArg.
	argMu sync.Mutex
	arg   any

	done     chan struct{}
	doneOnce sync.Once
}

// ID returns the unit's id, assigning one from the process-global counter on
// first access (spec.md §3: lazy assignment).
func (u *unit) ID() UnitID {
	if u.idAssigned.Load() {
		return u.id
	}
	if u.idAssigned.CompareAndSwap(false, true) {
		u.id = allocUnitID()
	}
	return u.id
}

func (u *unit) State() unitState           { return unitState(u.state.Load()) }
func (u *unit) setState(s unitState)       { u.state.Store(int32(s)) }
func (u *unit) casState(old, new unitState) bool {
	return u.state.CompareAndSwap(int32(old), int32(new))
}

func (u *unit) hasFlag(f UnitFlags) bool { return u.flags&f != 0 }

// setMigratable flips FlagMigratable. Callers serialize against the unit's
// own scheduling edges; the flag is never flipped concurrently with a
// migration request in flight.
func (u *unit) setMigratable(on bool) {
	if on {
		u.flags |= FlagMigratable
	} else {
		u.flags &^= FlagMigratable
	}
}

func (u *unit) Pool() Pool { return u.pool }

func (u *unit) setPool(p Pool) { u.pool = p }

// requestCancel sets REQ_CANCEL. Idempotent.
func (u *unit) requestCancel() { fetchOr32(&u.request, reqCancel) }

// requestJoinBit sets REQ_JOIN.
func (u *unit) requestJoinBit() { fetchOr32(&u.request, reqJoin) }

func (u *unit) hasRequest(bit uint32) bool { return testBit32(&u.request, bit) }

func (u *unit) clearRequest(bit uint32) { fetchAndNot32(&u.request, bit) }

// waitDone returns the channel that closes when the unit reaches
// stateTerminated, the Join primitive every work unit supports regardless
// of yieldability (spec.md §4.5).
func (u *unit) waitDone() <-chan struct{} {
	u.doneOnce.Do(func() { u.done = make(chan struct{}) })
	return u.done
}

// markTerminated transitions the unit to stateTerminated and wakes every
// current and future Join caller exactly once, then runs any installed TLS
// destructors (spec.md §4.9: destructors run at free/terminate time, in a
// non-yieldable context).
func (u *unit) markTerminated() {
	u.doneOnce.Do(func() { u.done = make(chan struct{}) })
	u.setState(stateTerminated)
	close(u.done)
	if kt := u.kt.Load(); kt != nil {
		kt.runDestructors()
	}
}

// keytableFor lazily allocates the unit's keytable on first use, matching
// spec.md §3: "created lazily on first set_specific".
func (u *unit) keytableFor(size int) *keytable {
	if kt := u.kt.Load(); kt != nil {
		return kt
	}
	nkt := newKeytable(size)
	if u.kt.CompareAndSwap(nil, nkt) {
		return nkt
	}
	return u.kt.Load()
}
