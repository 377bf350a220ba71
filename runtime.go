package worklet

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Runtime owns the process-wide subsystems spec.md frames as a single
// opaque surface per process: the metrics registry, tracer, and tool/event
// hook hub. Init/Finalize follow the corpus's reference-counted global
// lifetime (every *[T] connector in the corpus owns its own metricz/tracez
// instances for the lifetime of the value; here there is exactly one
// long-lived value — the Runtime — so those instances live exactly as long
// as it does).
type Runtime struct {
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	tool    *toolHub

	primary atomic.Pointer[Stream]

	lookupMu sync.RWMutex
	lookup   map[UnitID]Schedulable
}

var (
	globalMu   sync.Mutex
	globalRT   *Runtime
	globalRefs int
)

// Init returns the process-wide Runtime, creating it on the first call and
// incrementing a reference count on every call thereafter (spec.md §3:
// "global init/finalize... reference-counted"). The returned Runtime also
// owns the implicit Primary stream hosting "main".
func Init(sched *Scheduler) (*Runtime, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRT != nil {
		globalRefs++
		return globalRT, nil
	}
	if sched == nil {
		return nil, newError("Init", KindInvArg, ErrInvArg)
	}
	rt := &Runtime{
		metrics: newMetricsRegistry(),
		tracer:  newTracer(),
		tool:    newToolHub(),
		lookup:  make(map[UnitID]Schedulable),
	}
	primary := newPrimaryStream(rt, sched)
	rt.primary.Store(primary)
	globalRT = rt
	globalRefs = 1
	go primary.driverLoop()
	return rt, nil
}

// Finalize drops one reference; the Runtime and its Primary stream are torn
// down only once the count reaches zero (spec.md §3). Finalizing more times
// than Init was called is KindInvState.
func Finalize(rt *Runtime) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRT == nil || globalRT != rt {
		return newError("Finalize", KindInvState, ErrInvState)
	}
	globalRefs--
	if globalRefs > 0 {
		return nil
	}
	primary := rt.primary.Load()
	if primary != nil {
		sched := primary.mainScheduler()
		sched.requestExit()
		close(primary.stopCh)
		removeStream(primary)
	}
	_ = rt.tool.Close()
	globalRT = nil
	return nil
}

// Initialized reports whether the process-wide Runtime is currently live:
// true between the first Init and the Finalize that drops the last
// reference.
func Initialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalRT != nil
}

// currentRuntime returns the live process-wide Runtime, or nil outside an
// Init/Finalize window. Used by operations (Thread.Free) that need the
// Runtime's bookkeeping but take no explicit handle.
func currentRuntime() *Runtime {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalRT
}

// Primary returns the Runtime's implicit Primary stream.
func (rt *Runtime) Primary() *Stream { return rt.primary.Load() }

// Metrics exposes the Runtime's metricz.Registry for external scraping,
// matching Timeout.Metrics()'s accessor shape.
func (rt *Runtime) Metrics() *metricz.Registry { return rt.metrics }

// Tracer exposes the Runtime's tracez.Tracer, matching Timeout.Tracer().
func (rt *Runtime) Tracer() *tracez.Tracer { return rt.tracer }

// OnEvent registers a tool/event hook handler (spec.md §7).
func (rt *Runtime) OnEvent(kind EventKind, handler func(context.Context, ToolEvent) error) error {
	return rt.tool.On(kind, handler)
}

// register/unregister maintain the debug unit-id->handle map supplementing
// original_source/util/hashtable.c's id lookup table (SPEC_FULL.md §6).
func (rt *Runtime) register(s Schedulable) {
	rt.lookupMu.Lock()
	rt.lookup[s.ID()] = s
	rt.lookupMu.Unlock()
}

func (rt *Runtime) unregister(id UnitID) {
	rt.lookupMu.Lock()
	delete(rt.lookup, id)
	rt.lookupMu.Unlock()
}

// Lookup finds a previously-registered unit by id, the debug/introspection
// surface original_source's hashtable.c provides over raw pointers.
func (rt *Runtime) Lookup(id UnitID) (Schedulable, bool) {
	rt.lookupMu.RLock()
	defer rt.lookupMu.RUnlock()
	s, ok := rt.lookup[id]
	return s, ok
}
