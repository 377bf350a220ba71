package worklet

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
)

// SchedKind names a scheduler's policy, matching ABT_sched_kind's
// BASIC/BASIC_WAIT/PRIO distinction (spec.md §4.3) with room for a caller's
// own custom kind string.
type SchedKind string

const (
	SchedBasic     SchedKind = "basic"
	SchedBasicWait SchedKind = "basic_wait"
	SchedPrio      SchedKind = "prio"
)

// schedUsage tracks whether a Scheduler is free-standing, hosting a
// process's "main" (the stream's own scheduling loop), or installed as a
// pool's scheduler-in-a-pool (spec.md §3 UsageState).
type schedUsage int32

const (
	schedUsageNotUsed schedUsage = iota
	schedUsageMain
	schedUsageInPool
)

// request bits a Scheduler's own run loop watches for (spec.md §4.3).
const (
	schedReqFinish uint32 = 1 << iota
	schedReqExit
	schedReqReplace
)

// SchedulerOps is the capability record a caller supplies to drive a
// Scheduler with custom dispatch logic (spec.md §3's "four function
// pointers: init, run, free, get_migration_pool", surfaced at §6 as
// "create with user-supplied ops"), mirroring pool.go's PoolOps pattern:
// built-in schedulers use the pool-sorting pop loop in runOnce, a
// caller-supplied one replaces it entirely.
type SchedulerOps interface {
	Init(cfg Config) error
	Run(ctx context.Context, stream *Stream, sc *Scheduler)
	Free() error
	GetMigrationPool() Pool
}

// Scheduler runs one or more Pools, picking units to hand to a Stream's
// driver loop (spec.md §4.3). A Scheduler can also be hosted as ordinary
// schedulable work inside another scheduler's pool — a "stackable
// scheduler" (spec.md §1, §3's UsageState InPool) — in which case
// hostThread is the Thread whose body drives its run loop; see
// NewThreadForScheduler. replaceDone is closed by whichever loop (a
// Stream's driverLoop, or a hosting Thread's body) applies a pending
// Replace, letting a caller that called Replace wait for the swap to take
// effect via WaitReplaced (spec.md §4.3's replacement protocol: "the
// hosting ULT identity is preserved across the swap").
type Scheduler struct {
	kind  SchedKind
	cfg   Config
	pools []Pool
	ops   SchedulerOps

	numScheds  atomic.Int32
	request    atomic.Uint32
	usage      schedUsage
	hostStream *Stream
	hostThread *Thread

	replacement atomic.Pointer[Scheduler]
	replaceDone chan struct{}

	passes atomic.Uint64

	rt *Runtime
}

// NewScheduler builds a Scheduler of the given kind over pools, sorted
// PRIV < single-access < MPMC the way scheduler_loop's pop order expects
// (spec.md §4.3).
func NewScheduler(rt *Runtime, kind SchedKind, cfg Config, pools ...Pool) (*Scheduler, error) {
	if len(pools) == 0 {
		return nil, newError("NewScheduler", KindInvArg, ErrInvArg)
	}
	ordered := append([]Pool(nil), pools...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Mode().accessRank() < ordered[j].Mode().accessRank()
	})
	for _, p := range ordered {
		if pb, ok := p.(interface{ incScheds() }); ok {
			pb.incScheds()
		}
	}
	return &Scheduler{kind: kind, cfg: cfg, pools: ordered, rt: rt, replaceDone: make(chan struct{})}, nil
}

// NewSchedulerWithOps builds a Scheduler whose run loop is driven entirely
// by a caller-supplied SchedulerOps instead of the built-in pool-sorting
// policy (spec.md §6's "create with user-supplied ops"). ops.Init runs once,
// synchronously, before this returns.
func NewSchedulerWithOps(rt *Runtime, kind SchedKind, cfg Config, ops SchedulerOps, pools ...Pool) (*Scheduler, error) {
	if ops == nil {
		return nil, newError("NewSchedulerWithOps", KindInvArg, ErrInvArg)
	}
	sc, err := NewScheduler(rt, kind, cfg, pools...)
	if err != nil {
		return nil, err
	}
	if err := ops.Init(cfg); err != nil {
		return nil, newError("NewSchedulerWithOps", KindInvState, err)
	}
	sc.ops = ops
	return sc, nil
}

func (sc *Scheduler) Kind() SchedKind { return sc.kind }
func (sc *Scheduler) Pools() []Pool   { return sc.pools }

func (sc *Scheduler) migrationPool() Pool {
	if sc.ops != nil {
		if p := sc.ops.GetMigrationPool(); p != nil {
			return p
		}
	}
	if len(sc.pools) == 0 {
		return nil
	}
	return sc.pools[0]
}

// free releases a scheduler's custom ops, if any, when a driver loop
// terminates, or when it is retired by a Replace swap and its
// Config.Automatic is set (spec.md §3's "free" function pointer). Built-in
// schedulers have nothing to release.
func (sc *Scheduler) free() error {
	if sc.ops != nil {
		return sc.ops.Free()
	}
	return nil
}

func (sc *Scheduler) requestFinish() { fetchOr32(&sc.request, schedReqFinish) }
func (sc *Scheduler) requestExit()   { fetchOr32(&sc.request, schedReqExit) }

// hasToStop implements spec.md §4.3's formula verbatim: "true when (REQ_EXIT
// is set) OR (REQ_FINISH is set AND every associated pool reports no work
// units)". REQ_EXIT is an unconditional hard stop; REQ_FINISH waits for every
// one of the scheduler's pools to drain (IsEmpty and no blocked waiters)
// before the run loop is allowed to return.
func (sc *Scheduler) hasToStop() bool {
	v := sc.request.Load()
	if v&schedReqExit != 0 {
		return true
	}
	if v&schedReqFinish == 0 {
		return false
	}
	for _, p := range sc.pools {
		if !p.IsEmpty() {
			return false
		}
		if bp, ok := p.(interface{ blocked() int32 }); ok && bp.blocked() > 0 {
			return false
		}
	}
	return true
}

// Finish requests this scheduler stop once every one of its pools has
// drained (spec.md §6 public API: "finish"). The run loop keeps dispatching
// queued work until then.
func (sc *Scheduler) Finish() { sc.requestFinish() }

// Exit requests this scheduler stop immediately, regardless of queued work
// (spec.md §6 public API: "exit").
func (sc *Scheduler) Exit() { sc.requestExit() }

// HasToStop reports whether the scheduler's run loop is allowed to return
// right now (spec.md §6 public API: "has_to_stop"), for callers driving a
// scheduler through custom SchedulerOps.
func (sc *Scheduler) HasToStop() bool { return sc.hasToStop() }

// clearRequests wipes the finish/exit/replace bits, used when a Terminated
// stream Revives with its old scheduler intact.
func (sc *Scheduler) clearRequests() { sc.request.Store(0) }

// GetMigrationPool returns the pool migration operations should target when
// moving a unit onto this scheduler (spec.md §6 public API:
// "get_migration_pool"; §4.8).
func (sc *Scheduler) GetMigrationPool() Pool { return sc.migrationPool() }

// Replace installs next as the scheduler the hosting stream switches to
// after the current pass completes (spec.md §4.3's atomic REPLACE
// protocol). Safe to call from any goroutine; the driver loop picks it up
// between passes.
func (sc *Scheduler) Replace(next *Scheduler) error {
	if next == nil {
		return newError("Replace", KindInvArg, ErrInvArg)
	}
	if !sc.replacement.CompareAndSwap(nil, next) {
		return newError("Replace", KindInvState, ErrInvState)
	}
	fetchOr32(&sc.request, schedReqReplace)
	return nil
}

func (sc *Scheduler) takeReplacement() *Scheduler {
	return sc.replacement.Swap(nil)
}

// WaitReplaced blocks until a pending Replace on sc has actually been
// applied by whichever loop drives sc (a Stream's driverLoop, or a hosting
// Thread's body for a stackable scheduler), or until ctx is done. Spec.md
// §4.3's replacement protocol has the requesting caller "suspend itself...
// and resume the waiter" once the swap completes; WaitReplaced is that
// rendezvous point for callers that don't have a ULT to suspend.
func (sc *Scheduler) WaitReplaced(ctx context.Context) error {
	select {
	case <-sc.replaceDone:
		return nil
	case <-ctx.Done():
		return newError("WaitReplaced", KindTimedOut, ctx.Err())
	}
}

// runOnce pops and schedules one unit from whichever pool offers one first,
// checking own request bits every EventFreq passes (spec.md §4.3).
func (sc *Scheduler) runOnce(ctx context.Context, stream *Stream) {
	n := sc.passes.Add(1)
	freq := sc.cfg.EventFreq
	if sc.kind == SchedBasic && sc.cfg.BasicFreq != nil {
		freq = *sc.cfg.BasicFreq
	}
	if freq > 0 && n%uint64(freq) == 0 {
		if sc.hasToStop() {
			return
		}
	}

	if sc.ops != nil {
		sc.ops.Run(ctx, stream, sc)
		return
	}

	var picked Schedulable
	for _, p := range sc.pools {
		if u, ok := p.Pop(); ok {
			picked = u
			break
		}
	}
	if picked == nil {
		if sc.rt != nil {
			sc.rt.metrics.Counter(MetricPoolPopMisses).Inc()
		}
		if sc.cfg.SleepDuration > 0 {
			if sc.rt != nil {
				sc.rt.metrics.Counter(MetricSchedulerSleeps).Inc()
			}
			capitan.Info(ctx, SignalSchedulerSleeping, FieldSchedKind.Field(string(sc.kind)))
			time.Sleep(sc.cfg.SleepDuration)
		}
		return
	}
	if sc.rt != nil {
		sc.rt.metrics.Counter(MetricPoolPops).Inc()
	}
	sc.schedule(ctx, stream, picked)
}

// schedule hands one popped unit to the stream, dispatching by concrete
// type: a Task runs inline to completion on the driver's own goroutine,
// a Thread gets its machine context resumed and may yield back before
// finishing (spec.md §4.4's Thread-vs-Task execution split).
func (sc *Scheduler) schedule(ctx context.Context, stream *Stream, s Schedulable) {
	if sc.rt != nil {
		sc.rt.metrics.Counter(MetricSchedulerDispatch).Inc()
		var span interface{ Finish() }
		ctx, span = sc.rt.tracer.StartSpan(ctx, SpanSchedulerDispatch)
		defer span.Finish()
	}
	stream.setRunning(s)
	defer stream.setRunning(nil)

	switch w := s.(type) {
	case *Task:
		runTask(ctx, sc.rt, stream, w)
	case *Thread:
		runThread(ctx, sc.rt, stream, sc, w)
	}
}

// NewThreadForScheduler wraps sched as a Thread body so it can be pushed
// onto another scheduler's pool as ordinary schedulable work: a "stackable
// scheduler" hosted by a Thread rather than by a Stream directly (spec.md
// §1's "stackable schedulers", §3's UsageState InPool). Running the
// returned Thread drives sched's own runOnce loop, re-yielding to its host
// between passes, until sched is asked to stop or is itself Replace'd — at
// which point the replacement inherits sched's hostThread, preserving the
// hosting-unit identity across the swap (spec.md §4.3).
func NewThreadForScheduler(sched *Scheduler) *Thread {
	sched.usage = schedUsageInPool
	th := CreateThread(func(ctx context.Context, args ...any) {
		stream, _ := SelfGetStream(ctx)
		active := sched
		if self, ok := Self(ctx); ok {
			if hostTh, ok := self.(*Thread); ok {
				active.hostThread = hostTh
			}
		}
		for {
			active.runOnce(ctx, stream)
			if next := active.takeReplacement(); next != nil {
				next.hostThread = active.hostThread
				next.usage = schedUsageInPool
				old := active
				active = next
				close(old.replaceDone)
				if old.cfg.Automatic {
					_ = old.free()
				}
				continue
			}
			if active.hasToStop() {
				_ = active.free()
				return
			}
			if err := SelfYield(ctx); err != nil {
				return
			}
		}
	})
	sched.hostThread = th
	return th
}
