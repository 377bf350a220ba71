package worklet

import "github.com/zoobzio/metricz"

// Metric keys, one per counted/gauged runtime event. Named and grouped
// exactly the way timeout.go/retry.go declare their metricz.Key consts.
const (
	MetricUnitsCreated     = metricz.Key("worklet.units.created")
	MetricUnitsFreed       = metricz.Key("worklet.units.freed")
	MetricContextSwitches  = metricz.Key("worklet.context_switches")
	MetricMigrations       = metricz.Key("worklet.migrations")
	MetricPoolPops         = metricz.Key("worklet.pool.pops")
	MetricPoolPopMisses    = metricz.Key("worklet.pool.pop_misses")
	MetricWaitListSignals  = metricz.Key("worklet.waitlist.signals")
	MetricWaitListTimeouts = metricz.Key("worklet.waitlist.timeouts")
	MetricSchedulerDispatch = metricz.Key("worklet.scheduler.dispatch")
	MetricSchedulerSleeps  = metricz.Key("worklet.scheduler.sleeps")
)

// newMetricsRegistry builds the single, runtime-wide metricz.Registry and
// pre-registers every counter/gauge above. A single shared registry (rather
// than one per component, as pipz's per-connector registries are) matches
// spec.md's framing of the runtime as one process-wide subsystem.
func newMetricsRegistry() *metricz.Registry {
	r := metricz.New()
	r.Counter(MetricUnitsCreated)
	r.Counter(MetricUnitsFreed)
	r.Counter(MetricContextSwitches)
	r.Counter(MetricMigrations)
	r.Counter(MetricPoolPops)
	r.Counter(MetricPoolPopMisses)
	r.Counter(MetricWaitListSignals)
	r.Counter(MetricWaitListTimeouts)
	r.Counter(MetricSchedulerDispatch)
	r.Counter(MetricSchedulerSleeps)
	return r
}
