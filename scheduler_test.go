package worklet

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerOrdersPoolsByAccessRank(t *testing.T) {
	mpmc := NewFIFOPool(AccessMPMC)
	priv := NewFIFOPool(AccessPrivate)
	spsc := NewFIFOPool(AccessSPSC)

	sched, err := NewScheduler(nil, SchedBasic, NewConfig(), mpmc, priv, spsc)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	pools := sched.Pools()
	if pools[0].Mode() != AccessPrivate {
		t.Errorf("pools[0] = %v, want Private first", pools[0].Mode())
	}
	if pools[len(pools)-1].Mode() != AccessMPMC {
		t.Errorf("pools[last] = %v, want MPMC last", pools[len(pools)-1].Mode())
	}
}

func TestSchedulerRejectsEmptyPools(t *testing.T) {
	if _, err := NewScheduler(nil, SchedBasic, NewConfig()); err == nil {
		t.Error("expected NewScheduler with no pools to fail")
	}
}

func TestSchedulerRunOncePrefersFirstNonEmptyPool(t *testing.T) {
	priv := NewFIFOPool(AccessPrivate)
	mpmc := NewFIFOPool(AccessMPMC)
	sched, err := NewScheduler(nil, SchedBasic, NewConfig(), mpmc, priv)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	stream, err := NewStream(nil, sched)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	ranOnPriv := false
	th := CreateThread(func(ctx context.Context, args ...any) { ranOnPriv = true })
	_ = priv.Push(th)
	th.unit().setPool(priv)

	sched.runOnce(context.Background(), stream)
	if !ranOnPriv {
		t.Error("expected the access-ranked-first pool (Private) to be drained before MPMC")
	}
}

func TestSchedulerReplaceSwapsAfterPass(t *testing.T) {
	pool1 := NewFIFOPool(AccessMPMC)
	sched1, err := NewScheduler(nil, SchedBasic, NewConfig(), pool1)
	if err != nil {
		t.Fatalf("NewScheduler sched1: %v", err)
	}
	pool2 := NewFIFOPool(AccessMPMC)
	sched2, err := NewScheduler(nil, SchedBasic, NewConfig(), pool2)
	if err != nil {
		t.Fatalf("NewScheduler sched2: %v", err)
	}

	if err := sched1.Replace(sched2); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if sched1.hasToStop() {
		t.Error("a pending Replace alone must not make hasToStop true — only REQ_FINISH/REQ_EXIT do (spec.md §4.3); driverLoop checks takeReplacement independently so the swap still happens")
	}
	got := sched1.takeReplacement()
	if got != sched2 {
		t.Error("takeReplacement did not return the installed replacement")
	}
	if sched1.takeReplacement() != nil {
		t.Error("takeReplacement should only deliver the replacement once")
	}
}

func TestSchedulerHasToStopWaitsForPoolsToDrain(t *testing.T) {
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	th := CreateThread(func(context.Context, ...any) {})
	_ = pool.Push(th)
	th.unit().setPool(pool)

	sched.requestFinish()
	if sched.hasToStop() {
		t.Error("expected hasToStop false while the pool still holds a unit")
	}

	stream, _ := NewStream(nil, sched)
	sched.runOnce(context.Background(), stream) // drains the one queued unit

	if !sched.hasToStop() {
		t.Error("expected hasToStop true once REQ_FINISH is set and every pool is empty")
	}
}

func TestSchedulerHasToStopExitIsUnconditional(t *testing.T) {
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool)
	th := CreateThread(func(context.Context, ...any) {})
	_ = pool.Push(th)
	th.unit().setPool(pool)

	sched.requestExit()
	if !sched.hasToStop() {
		t.Error("expected REQ_EXIT to stop the scheduler regardless of queued work")
	}
}

func TestStreamFreeTerminatesAfterQueuedUnitRuns(t *testing.T) {
	pool := NewFIFOPool(AccessMPMC)
	sched, _ := NewScheduler(nil, SchedBasic, NewConfig(WithSleep(time.Millisecond)), pool)
	stream, err := NewStream(nil, sched)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := stream.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	progressed := make(chan struct{})
	th := CreateThread(func(ctx context.Context, args ...any) {
		close(progressed)
	})
	_ = pool.Push(th)
	th.unit().setPool(pool)

	select {
	case <-progressed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the queued unit to run before Free drains the stream")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := stream.Free(ctx); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if stream.State() != streamTerminated {
		t.Errorf("State = %v, want Terminated", stream.State())
	}
}

type recordingSchedOps struct {
	initCalled atomic.Bool
	runCalls   atomic.Int32
	freeCalled atomic.Bool
	pool       Pool
}

func (o *recordingSchedOps) Init(cfg Config) error {
	o.initCalled.Store(true)
	return nil
}

func (o *recordingSchedOps) Run(ctx context.Context, stream *Stream, sc *Scheduler) {
	o.runCalls.Add(1)
	if u, ok := o.pool.Pop(); ok {
		stream.setRunning(u)
		defer stream.setRunning(nil)
		if th, ok := u.(*Thread); ok {
			runThread(ctx, nil, stream, sc, th)
		}
	}
}

func (o *recordingSchedOps) Free() error {
	o.freeCalled.Store(true)
	return nil
}

func (o *recordingSchedOps) GetMigrationPool() Pool { return o.pool }

func TestNewSchedulerWithOpsDrivesCustomDispatch(t *testing.T) {
	pool := NewFIFOPool(AccessMPMC)
	ops := &recordingSchedOps{pool: pool}
	sched, err := NewSchedulerWithOps(nil, SchedKind("custom"), NewConfig(), ops, pool)
	if err != nil {
		t.Fatalf("NewSchedulerWithOps: %v", err)
	}
	if !ops.initCalled.Load() {
		t.Error("expected Init to run during construction")
	}
	if sched.GetMigrationPool() != pool {
		t.Error("expected GetMigrationPool to delegate to the custom ops")
	}

	ran := false
	th := CreateThread(func(context.Context, ...any) { ran = true })
	_ = pool.Push(th)
	th.unit().setPool(pool)

	stream, _ := NewStream(nil, sched)
	sched.runOnce(context.Background(), stream)
	if ops.runCalls.Load() != 1 {
		t.Errorf("Run calls = %d, want 1", ops.runCalls.Load())
	}
	if !ran {
		t.Error("expected the custom ops' Run to dispatch the queued unit")
	}

	sched.Finish()
	if !sched.hasToStop() {
		t.Error("expected Finish+drained pool to stop the scheduler")
	}
	_ = sched.free()
	if !ops.freeCalled.Load() {
		t.Error("expected free() to delegate to the custom ops")
	}
}

func TestNewThreadForSchedulerWiresStackableScheduler(t *testing.T) {
	hostPool := NewFIFOPool(AccessMPMC)
	hostSched, _ := NewScheduler(nil, SchedBasic, NewConfig(), hostPool)
	hostStream, _ := NewStream(nil, hostSched)
	if err := hostStream.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	innerPool := NewFIFOPool(AccessMPMC)
	innerSched, _ := NewScheduler(nil, SchedBasic, NewConfig(), innerPool)

	ran := make(chan struct{})
	worker := CreateThread(func(context.Context, ...any) { close(ran) })
	_ = innerPool.Push(worker)
	worker.unit().setPool(innerPool)

	hostedThread := NewThreadForScheduler(innerSched)
	if innerSched.hostThread != hostedThread {
		t.Error("expected NewThreadForScheduler to wire hostThread")
	}
	if innerSched.usage != schedUsageInPool {
		t.Error("expected a stackable scheduler's usage to be InPool")
	}

	_ = hostPool.Push(hostedThread)
	hostedThread.unit().setPool(hostPool)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the inner scheduler's queued unit to run once its hosting Thread is dispatched")
	}

	innerSched.Finish()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hostedThread.Join(ctx); err != nil {
		t.Fatalf("Join hosting thread: %v", err)
	}

	_ = hostStream.Free(context.Background())
}

func TestSchedulerReplaceTwiceFails(t *testing.T) {
	pool1 := NewFIFOPool(AccessMPMC)
	sched1, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool1)
	pool2 := NewFIFOPool(AccessMPMC)
	sched2, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool2)
	pool3 := NewFIFOPool(AccessMPMC)
	sched3, _ := NewScheduler(nil, SchedBasic, NewConfig(), pool3)

	if err := sched1.Replace(sched2); err != nil {
		t.Fatalf("first Replace: %v", err)
	}
	if err := sched1.Replace(sched3); err == nil {
		t.Error("expected a second pending Replace to fail until the first is consumed")
	}
}
