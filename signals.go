package worklet

import "github.com/zoobzio/capitan"

// Operational signals, declared the same way the teacher's signals.go
// declares capitan.Signal consts grouped by subsystem, and the field keys
// used with them. These are for operational visibility (what would show up
// in a log/dashboard), distinct from the tool/event hook in tool.go, which
// is the spec's programmatic callback surface.
var (
	// Stream lifecycle.
	SignalStreamStarted     = capitan.NewSignal("stream.started", "stream started")
	SignalStreamTerminated  = capitan.NewSignal("stream.terminated", "stream terminated")
	SignalStreamJoinBlocked = capitan.NewSignal("stream.join_blocked", "stream join blocked")

	// Scheduler lifecycle.
	SignalSchedulerStarted  = capitan.NewSignal("scheduler.started", "scheduler started")
	SignalSchedulerStopped  = capitan.NewSignal("scheduler.stopped", "scheduler stopped")
	SignalSchedulerReplaced = capitan.NewSignal("scheduler.replaced", "scheduler replaced")
	SignalSchedulerSleeping = capitan.NewSignal("scheduler.sleeping", "scheduler sleeping")

	// Pool.
	SignalPoolScaled  = capitan.NewSignal("pool.scaled", "pool scaled")
	SignalPoolStarved = capitan.NewSignal("pool.starved", "pool starved")

	// Mutex / wait-list.
	SignalMutexContended  = capitan.NewSignal("mutex.contended", "mutex contended")
	SignalWaitListTimeout = capitan.NewSignal("waitlist.timeout", "wait-list timeout")

	// Migration.
	SignalMigrationRequested = capitan.NewSignal("migration.requested", "migration requested")
	SignalMigrationCompleted = capitan.NewSignal("migration.completed", "migration completed")
)

// Field keys, grouped as signals.go groups them.
var (
	FieldRank       = capitan.NewIntKey("rank")
	FieldUnitID     = capitan.NewStringKey("unit_id")
	FieldPoolID     = capitan.NewStringKey("pool_id")
	FieldSchedKind  = capitan.NewStringKey("scheduler_kind")
	FieldReason     = capitan.NewStringKey("reason")
	FieldWaitersLen = capitan.NewIntKey("waiters")
	FieldTargetPool = capitan.NewStringKey("target_pool_id")
)

// The migration signals are emitted by migration.go calling the
// package-level capitan.Info directly — no per-instance registry, since
// capitan signals are process-global by design in the corpus.

