package worklet

import "sync/atomic"

// KeyID identifies a TLS slot, analogous to an ABT_key handle. Allocated
// once per logical key (typically at package-init time for a given piece of
// per-unit state) and shared across every unit that wants a slot under it.
type KeyID uint32

var nextKeyID atomic.Uint32

// NewKey allocates a fresh KeyID with the given destructor. The destructor
// runs (non-yieldable context, per spec.md §4.9) when the owning unit
// terminates and its slot is non-nil, mirroring ABT_key_create; Free does
// not run destructors.
func NewKey(dtor func(value any)) KeyID {
	id := KeyID(nextKeyID.Add(1))
	keyDtors.Store(id, dtor)
	return id
}

var keyDtors keyDtorMap

// keyDtorMap is a tiny fixed-stripe map from KeyID to destructor; key
// creation is rare (near process-init) so a coarse lock is fine (spec.md
// §4.9 never requires this registry itself to be lock-free).
type keyDtorMap struct {
	mu spinlock
	m  map[KeyID]func(any)
}

func (m *keyDtorMap) Store(id KeyID, fn func(any)) {
	m.mu.acquire()
	defer m.mu.release()
	if m.m == nil {
		m.m = make(map[KeyID]func(any))
	}
	m.m[id] = fn
}

func (m *keyDtorMap) Load(id KeyID) (func(any), bool) {
	m.mu.acquire()
	defer m.mu.release()
	fn, ok := m.m[id]
	return fn, ok
}

func (m *keyDtorMap) Delete(id KeyID) {
	m.mu.acquire()
	defer m.mu.release()
	delete(m.m, id)
}

// FreeKey retires a KeyID, mirroring ABT_key_free: its destructor is
// deregistered, so values already installed under it on any unit stay
// readable but no longer run a destructor at termination. The id is never
// reissued.
func FreeKey(id KeyID) {
	keyDtors.Delete(id)
}

// keyEntry is one link in a slot's destructor chain — open addressing with
// chaining, matching original_source/util/hashtable.c's bucket-chain layout
// as SPEC_FULL.md §4 data model describes.
type keyEntry struct {
	id    KeyID
	value any
	next  *keyEntry
}

// keytable is a unit's private TLS map: a small open-addressed slice of
// bucket heads, each a chain of keyEntry. Set installs and updates entries
// under the table's spinlock; Get walks the chains lock-free through
// atomic loads of the bucket heads.
type keytable struct {
	mu      spinlock
	buckets []atomic.Pointer[keyEntry]
}

func newKeytable(size int) *keytable {
	if size <= 0 {
		size = 8
	}
	return &keytable{buckets: make([]atomic.Pointer[keyEntry], size)}
}

func (kt *keytable) bucket(id KeyID) *atomic.Pointer[keyEntry] {
	return &kt.buckets[uint32(id)%uint32(len(kt.buckets))]
}

// Get returns the value stored for id, or (nil, false) if unset.
func (kt *keytable) Get(id KeyID) (any, bool) {
	for e := kt.bucket(id).Load(); e != nil; e = e.next {
		if e.id == id {
			return e.value, true
		}
	}
	return nil, false
}

// Set installs or overwrites the value for id under the keytable spinlock
// (spec.md §4.9: new entries are installed and existing values updated
// under the lock; only Get stays lock-free).
func (kt *keytable) Set(id KeyID, value any) {
	head := kt.bucket(id)
	kt.mu.acquire()
	defer kt.mu.release()
	for e := head.Load(); e != nil; e = e.next {
		if e.id == id {
			e.value = value
			return
		}
	}
	head.Store(&keyEntry{id: id, value: value, next: head.Load()})
}

// runDestructors sweeps every installed slot holding a non-nil value and
// invokes its key's destructor (spec.md §4.9's key cleanup). Called exactly
// once, from the owning unit's markTerminated, after its Body has stopped
// running, so never concurrently with the unit's own Get/Set.
func (kt *keytable) runDestructors() {
	for i := range kt.buckets {
		for e := kt.buckets[i].Load(); e != nil; e = e.next {
			if fn, ok := keyDtors.Load(e.id); ok && fn != nil && e.value != nil {
				fn(e.value)
			}
		}
	}
}
