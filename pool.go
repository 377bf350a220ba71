package worklet

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// AccessMode is a pool's declared concurrency shape. It is a hint only
// (spec.md §3) — the runtime never enforces it; built-in pools pick their
// internal locking discipline based on it and a custom pool may ignore it
// entirely.
type AccessMode int

const (
	AccessPrivate AccessMode = iota
	AccessSPSC
	AccessMPSC
	AccessSPMC
	AccessMPMC
)

func (m AccessMode) String() string {
	switch m {
	case AccessPrivate:
		return "private"
	case AccessSPSC:
		return "spsc"
	case AccessMPSC:
		return "mpsc"
	case AccessSPMC:
		return "spmc"
	case AccessMPMC:
		return "mpmc"
	default:
		return "unknown"
	}
}

// singleConsumer reports whether mode declares at most one consumer
// (Private, SPSC, MPSC), letting a pool with a PopWait pick the cheaper
// single-waiter handoff over the broadcast-capable futex for the common
// "one worker draining this queue" case.
func (m AccessMode) singleConsumer() bool {
	switch m {
	case AccessPrivate, AccessSPSC, AccessMPSC:
		return true
	default:
		return false
	}
}

// accessRank orders pools the way scheduler_loop (spec.md §4.3) iterates
// them: "access-sorted: PRIV < single-X < MPMC".
func (m AccessMode) accessRank() int {
	switch m {
	case AccessPrivate:
		return 0
	case AccessSPSC, AccessSPMC:
		return 1
	case AccessMPSC:
		return 1
	case AccessMPMC:
		return 2
	default:
		return 2
	}
}

// Schedulable is anything a Pool can hold: a *Thread or a *Task. The
// unexported accessor keeps the common unit state reachable to the
// scheduler/pool machinery without exposing it on the public API.
type Schedulable interface {
	ID() UnitID
	unit() *unit
}

var (
	_ Schedulable = (*Thread)(nil)
	_ Schedulable = (*Task)(nil)
)

// PoolOps is the required capability record every pool implementation must
// satisfy (spec.md §4.6 "required ops (all pools)"). CreateUnit/FreeUnit let
// a pool wrap a Schedulable in its own bookkeeping representation; built-in
// pools use the identity wrapping.
type PoolOps interface {
	CreateUnit(s Schedulable) (Schedulable, error)
	FreeUnit(s Schedulable)
	Push(s Schedulable) error
	Pop() (Schedulable, bool)
	IsEmpty() bool
}

// Pool is the full handle the runtime manipulates: required ops plus
// identity (ID) and the access-mode hint (Mode).
type Pool interface {
	PoolOps
	ID() uint64
	Mode() AccessMode
}

// Optional capability interfaces (spec.md §4.6 "optional ops"). A pool
// implementation advertises support by implementing the interface; callers
// probe with a type assertion — the idiomatic Go analogue of the corpus's
// optional-ops struct, and the design note's "capability record" without an
// explicit function-pointer table.
type PoolWaiter interface {
	PopWait(ctx context.Context, timeout time.Duration) (Schedulable, bool)
}

// PoolTimedWaiter is PopWait's absolute-deadline sibling (the corpus's
// pop_timedwait): wait until deadline on the pool's own clock.
type PoolTimedWaiter interface {
	PopTimedWait(ctx context.Context, deadline time.Time) (Schedulable, bool)
}

type PoolBulk interface {
	PopMany(max int) []Schedulable
	PushMany(units []Schedulable) error
}

type PoolSizer interface {
	GetSize() int
}

type PoolPrinter interface {
	PrintAll(w io.Writer)
}

type PoolLifecycle interface {
	Init(cfg Config) error
	Free() error
}

// PoolRemover is required for ThreadYieldTo (spec.md §4.4): the runtime
// must be able to pull a specific unit out of its pool before transferring
// to it directly.
type PoolRemover interface {
	Remove(s Schedulable) bool
	Contains(s Schedulable) bool
}

var poolIDCounter atomic.Uint64

func allocPoolID() uint64 { return poolIDCounter.Add(1) }

// poolBase is embedded by every built-in pool for the identity/counter
// fields spec.md §3 assigns to the runtime, not the pool implementation.
type poolBase struct {
	id         uint64
	mode       AccessMode
	numScheds  atomic.Int32
	numBlocked atomic.Int32
}

func newPoolBase(mode AccessMode) poolBase {
	return poolBase{id: allocPoolID(), mode: mode}
}

func (b *poolBase) ID() uint64        { return b.id }
func (b *poolBase) Mode() AccessMode  { return b.mode }
func (b *poolBase) incBlocked()       { b.numBlocked.Add(1) }
func (b *poolBase) decBlocked()       { b.numBlocked.Add(-1) }
func (b *poolBase) blocked() int32    { return b.numBlocked.Load() }
func (b *poolBase) incScheds()        { b.numScheds.Add(1) }
func (b *poolBase) decScheds()        { b.numScheds.Add(-1) }

// CreateUnit/FreeUnit default (identity) implementation, embeddable by
// built-in pools that don't need a bespoke wrapper representation.
func (b *poolBase) CreateUnit(s Schedulable) (Schedulable, error) { return s, nil }
func (b *poolBase) FreeUnit(s Schedulable)                       {}

func (b *poolBase) String() string {
	return fmt.Sprintf("pool#%d(%s)", b.id, b.mode)
}
