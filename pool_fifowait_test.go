package worklet

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestFIFOWaitPoolSingleConsumerWakesOnPush(t *testing.T) {
	p := NewFIFOWaitPool(AccessMPSC)
	if p.sw == nil || p.fx != nil {
		t.Fatal("expected single-consumer AccessMode to pick the singleWaiter handoff")
	}

	th := CreateThread(func(context.Context, ...any) {})
	resultCh := make(chan Schedulable, 1)
	go func() {
		u, ok := p.PopWait(context.Background(), time.Second)
		if !ok {
			t.Error("expected PopWait to succeed")
			return
		}
		resultCh <- u
	}()

	time.Sleep(10 * time.Millisecond)
	if err := p.Push(th); err != nil {
		t.Fatalf("Push: %v", err)
	}

	select {
	case got := <-resultCh:
		if got.ID() != th.ID() {
			t.Error("PopWait returned the wrong unit")
		}
	case <-time.After(time.Second):
		t.Fatal("PopWait never returned after Push")
	}
}

func TestFIFOWaitPoolMultiConsumerUsesFutex(t *testing.T) {
	p := NewFIFOWaitPool(AccessMPMC)
	if p.fx == nil || p.sw != nil {
		t.Fatal("expected multi-consumer AccessMode to pick the futex handoff")
	}
}

func TestFIFOWaitPoolPopWaitTimesOutWithClock(t *testing.T) {
	p := NewFIFOWaitPool(AccessSPSC)
	fc := clockz.NewFakeClock()
	p.WithClock(fc)

	errCh := make(chan bool, 1)
	go func() {
		_, ok := p.PopWait(context.Background(), 10*time.Millisecond)
		errCh <- ok
	}()

	fc.BlockUntilReady()
	fc.Advance(20 * time.Millisecond)

	select {
	case ok := <-errCh:
		if ok {
			t.Error("expected PopWait to time out on an empty pool")
		}
	case <-time.After(time.Second):
		t.Fatal("PopWait never returned after fake clock advance")
	}
}

func TestFIFOWaitPoolPopImmediateIfAlreadyQueued(t *testing.T) {
	p := NewFIFOWaitPool(AccessMPMC)
	th := CreateThread(func(context.Context, ...any) {})
	_ = p.Push(th)

	got, ok := p.PopWait(context.Background(), time.Second)
	if !ok || got.ID() != th.ID() {
		t.Fatal("expected PopWait to return the already-queued unit immediately")
	}
}

func TestFIFOWaitPoolPopTimedWaitPastDeadline(t *testing.T) {
	p := NewFIFOWaitPool(AccessMPMC)
	if _, ok := p.PopTimedWait(context.Background(), time.Now().Add(-time.Second)); ok {
		t.Error("expected an expired deadline on an empty pool to return nothing")
	}

	th := CreateThread(func(context.Context, ...any) {})
	_ = p.Push(th)
	got, ok := p.PopTimedWait(context.Background(), time.Now().Add(-time.Second))
	if !ok || got.ID() != th.ID() {
		t.Error("expected an expired deadline to still drain an already-queued unit")
	}
}

func TestFIFOWaitPoolPopTimedWaitWakesOnPush(t *testing.T) {
	p := NewFIFOWaitPool(AccessMPMC)
	th := CreateThread(func(context.Context, ...any) {})

	resultCh := make(chan bool, 1)
	go func() {
		_, ok := p.PopTimedWait(context.Background(), time.Now().Add(time.Second))
		resultCh <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	_ = p.Push(th)

	select {
	case ok := <-resultCh:
		if !ok {
			t.Error("expected PopTimedWait to return the pushed unit before its deadline")
		}
	case <-time.After(time.Second):
		t.Fatal("PopTimedWait never returned after Push")
	}
}
