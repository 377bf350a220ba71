package worklet

import "context"

// Future is Eventual's error-carrying sibling: exactly one of SetValue or
// SetError may be called once, and Wait returns whichever was provided
// (spec.md §4.7's future primitive — an Eventual that can also fail).
type Future struct {
	ev *Eventual
}

type futureResult struct {
	value any
	err   error
}

func NewFuture() *Future {
	return &Future{ev: NewEventual()}
}

func (f *Future) SetValue(v any) error {
	return f.ev.Set(futureResult{value: v})
}

func (f *Future) SetError(err error) error {
	return f.ev.Set(futureResult{err: err})
}

func (f *Future) Wait(ctx context.Context) (any, error) {
	v, err := f.ev.Wait(ctx)
	if err != nil {
		return nil, err
	}
	r := v.(futureResult)
	return r.value, r.err
}

func (f *Future) Ready() bool { return f.ev.Ready() }
