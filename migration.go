package worklet

import (
	"context"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zoobzio/capitan"
)

// migrationRecord is the per-unit bookkeeping spec.md §4.8 requires to
// support a migration request racing against the unit's own progress: the
// requested destination, recorded against the request bit rather than acted
// on directly, so the owning Thread/Task can honor it at its own next
// migration-safe point.
type migrationRecord struct {
	targetPool Pool
	// callback, if set, runs exactly once per completed migration with the
	// migrated unit, after the unit has landed in its destination pool
	// (spec.md §4.8's optional user callback).
	callback func(Schedulable)
}

// migrationSnapshot is a narrow, purely diagnostic encoding of a completed
// migration — never a wire format, never read back by the runtime itself.
// It exists so a tool hook handler (or an external debugger) can msgpack-
// encode a trail of migrations for offline inspection, the one place this
// module's otherwise-persistence-free design (spec.md Non-goals) has a use
// for a serialization library.
type migrationSnapshot struct {
	UnitID     UnitID    `msgpack:"unit_id"`
	FromPoolID uint64    `msgpack:"from_pool_id"`
	ToPoolID   uint64    `msgpack:"to_pool_id"`
	At         time.Time `msgpack:"at"`
}

// EncodeMigrationSnapshot msgpack-encodes a migration snapshot for logging
// or offline inspection. It is never used internally for control flow.
func EncodeMigrationSnapshot(s migrationSnapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

// DecodeMigrationSnapshot is the inverse of EncodeMigrationSnapshot, useful
// to a consumer replaying a recorded diagnostic trail.
func DecodeMigrationSnapshot(b []byte) (migrationSnapshot, error) {
	var s migrationSnapshot
	err := msgpack.Unmarshal(b, &s)
	return s, err
}

// MigrateToPool requests that s be moved to dst the next time it reaches a
// migration-safe point (spec.md §4.8): a Thread between context switches, or
// immediately if s is currently idle in its own source pool. Tasklets are
// non-migratable (spec.md Non-goals) and always fail with KindMigrationNA.
func MigrateToPool(ctx context.Context, rt *Runtime, s Schedulable, dst Pool) error {
	const op = "MigrateToPool"
	u := s.unit()
	if !u.hasFlag(FlagMigratable) {
		return newError(op, KindMigrationNA, ErrMigrationNA)
	}
	if dst == nil {
		return newError(op, KindInvArg, ErrInvArg)
	}
	src := u.Pool()
	if src == nil {
		return newError(op, KindInvState, ErrInvState)
	}
	if src.ID() == dst.ID() {
		return newError(op, KindMigrationNA, ErrMigrationNA)
	}
	if remover, ok := src.(PoolRemover); ok && remover.Contains(s) {
		if !remover.Remove(s) {
			return newError(op, KindMigrationNA, ErrMigrationNA)
		}
		if err := dst.Push(s); err != nil {
			_ = src.Push(s) // best-effort rollback; src is required to accept its own unit back
			return newError(op, KindMigrationNA, err)
		}
		u.setPool(dst)
		if cb := u.migration.callback; cb != nil {
			cb(s)
		}
		if rt != nil {
			rt.metrics.Counter(MetricMigrations).Inc()
			rt.tool.emit(ctx, ToolEvent{Kind: EventMigrate, UnitID: u.ID(), PoolID: dst.ID()})
		}
		capitan.Info(ctx, SignalMigrationCompleted,
			FieldUnitID.Field(idString(uint64(u.ID()))),
			FieldTargetPool.Field(idString(dst.ID())),
		)
		return nil
	}
	// Unit is running or blocked: record the request for the owning
	// Thread/Task to honor at its next yield point (reqMigrate bit).
	u.migration.targetPool = dst
	fetchOr32(&u.request, reqMigrate)
	capitan.Info(ctx, SignalMigrationRequested,
		FieldUnitID.Field(idString(uint64(u.ID()))),
		FieldTargetPool.Field(idString(dst.ID())),
	)
	return nil
}

// MigrateToStream moves s onto one of dst's pools selected the way the
// scheduler itself would pick a target: the primary pool registered with
// dst's current main scheduler.
func MigrateToStream(ctx context.Context, rt *Runtime, s Schedulable, dst *Stream) error {
	const op = "MigrateToStream"
	if dst == nil {
		return newError(op, KindInvArg, ErrInvArg)
	}
	sched := dst.mainScheduler()
	if sched == nil || len(sched.pools) == 0 {
		return newError(op, KindMigrationNA, ErrMigrationNA)
	}
	return MigrateToPool(ctx, rt, s, sched.pools[0])
}

// MigrateToScheduler moves s onto sched's migration pool (spec.md §4.8:
// "scheduler.GetMigrationPool()"), falling back to its first pool.
func MigrateToScheduler(ctx context.Context, rt *Runtime, s Schedulable, sched *Scheduler) error {
	const op = "MigrateToScheduler"
	if sched == nil {
		return newError(op, KindInvArg, ErrInvArg)
	}
	p := sched.migrationPool()
	if p == nil {
		return newError(op, KindMigrationNA, ErrMigrationNA)
	}
	return MigrateToPool(ctx, rt, s, p)
}

func idString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
