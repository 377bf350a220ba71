package worklet

import "github.com/zoobzio/tracez"

// Span names and tags, declared the way timeout.go/retry.go declare
// tracez.Key/tracez.Tag consts per connector. Here they're per-component of
// the runtime rather than per pipeline connector, since the runtime is the
// single long-lived subject being traced.
const (
	SpanSchedulerDispatch = tracez.Key("worklet.scheduler.dispatch")
	SpanStreamRoot        = tracez.Key("worklet.stream.root")
	SpanThreadRun         = tracez.Key("worklet.thread.run")
	SpanPoolPop           = tracez.Key("worklet.pool.pop")
	SpanWaitListWait      = tracez.Key("worklet.waitlist.wait")
)

const (
	TagUnitID      = tracez.Tag("worklet.unit_id")
	TagStreamRank  = tracez.Tag("worklet.stream_rank")
	TagPoolID      = tracez.Tag("worklet.pool_id")
	TagSchedKind   = tracez.Tag("worklet.scheduler_kind")
	TagResult      = tracez.Tag("worklet.result")
)

// newTracer constructs the single runtime-wide tracez.Tracer, mirroring
// Timeout's `tracer: tracez.New()` field initialization.
func newTracer() *tracez.Tracer {
	return tracez.New()
}
