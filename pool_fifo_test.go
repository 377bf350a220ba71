package worklet

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestFIFOPoolPushPopOrder(t *testing.T) {
	p := NewFIFOPool(AccessMPMC)
	t1 := CreateThread(func(ctx context.Context, args ...any) {})
	t2 := CreateThread(func(ctx context.Context, args ...any) {})

	if !p.IsEmpty() {
		t.Fatal("expected new pool empty")
	}
	if err := p.Push(t1); err != nil {
		t.Fatalf("Push t1: %v", err)
	}
	if err := p.Push(t2); err != nil {
		t.Fatalf("Push t2: %v", err)
	}
	if p.GetSize() != 2 {
		t.Fatalf("GetSize = %d, want 2", p.GetSize())
	}

	got1, ok := p.Pop()
	if !ok || got1.ID() != t1.ID() {
		t.Fatalf("first Pop = %v, want t1", got1)
	}
	got2, ok := p.Pop()
	if !ok || got2.ID() != t2.ID() {
		t.Fatalf("second Pop = %v, want t2", got2)
	}
	if !p.IsEmpty() {
		t.Error("expected pool empty after draining")
	}
}

func TestFIFOPoolRemoveAndContains(t *testing.T) {
	p := NewFIFOPool(AccessMPMC)
	th := CreateThread(func(ctx context.Context, args ...any) {})
	_ = p.Push(th)
	if !p.Contains(th) {
		t.Error("expected Contains true after Push")
	}
	if !p.Remove(th) {
		t.Error("expected Remove to succeed")
	}
	if p.Contains(th) {
		t.Error("expected Contains false after Remove")
	}
	if p.Remove(th) {
		t.Error("expected second Remove to report false")
	}
}

func TestFIFOPoolPushManyPopMany(t *testing.T) {
	p := NewFIFOPool(AccessMPMC)
	units := []Schedulable{
		CreateThread(func(context.Context, ...any) {}),
		CreateThread(func(context.Context, ...any) {}),
		CreateThread(func(context.Context, ...any) {}),
	}
	if err := p.PushMany(units); err != nil {
		t.Fatalf("PushMany: %v", err)
	}
	got := p.PopMany(2)
	if len(got) != 2 {
		t.Fatalf("PopMany(2) returned %d, want 2", len(got))
	}
	if p.GetSize() != 1 {
		t.Errorf("GetSize after PopMany = %d, want 1", p.GetSize())
	}
}

func TestFIFOPoolPrintAll(t *testing.T) {
	p := NewFIFOPool(AccessMPMC)
	_ = p.Push(CreateThread(func(context.Context, ...any) {}))
	var buf bytes.Buffer
	p.PrintAll(&buf)
	if buf.Len() == 0 {
		t.Error("expected PrintAll to write output for a non-empty pool")
	}
}

func TestFIFOPoolPopWaitPollsUntilAvailable(t *testing.T) {
	p := NewFIFOPool(AccessMPMC)
	th := CreateThread(func(context.Context, ...any) {})

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Push(th)
	}()

	got, ok := p.PopWait(context.Background(), time.Second)
	if !ok {
		t.Fatal("expected PopWait to succeed once Push happens")
	}
	if got.ID() != th.ID() {
		t.Errorf("PopWait returned wrong unit")
	}
}

func TestFIFOPoolPopWaitTimesOut(t *testing.T) {
	p := NewFIFOPool(AccessMPMC)
	_, ok := p.PopWait(context.Background(), 20*time.Millisecond)
	if ok {
		t.Error("expected PopWait to time out on an empty pool")
	}
}
