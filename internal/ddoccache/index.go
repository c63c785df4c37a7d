package ddoccache

import "sync/atomic"

// entryResult is the stored outcome of the most recent successful (or
// failed-and-remembered) recover for a key.  Only ever written by the entry
// actor that owns the row; readers outside the coordinator only ever call
// CacheIndex.Lookup.
type entryResult struct {
	val Value
	err error
}

// entryRecord is one CacheIndex row: {key, pid, val} from spec.md §3.  pid
// and val are atomic pointers so concurrent Lookups never race with the
// owning actor's single-writer updates — the "lock-free fast-path read"
// spec.md §2 calls for.  A nil pid means the reserved placeholder row a
// coordinator inserts before the actor attaches; a nil val means "no
// successful open yet".
type entryRecord struct {
	key Key
	pid atomic.Pointer[entry]
	val atomic.Pointer[entryResult]
}

// CacheIndex is the shared Key → entryRecord map every reader consults on
// the fast path.  It supports exactly the four operations spec.md §4.1
// requires: lookup, insert-if-absent, single-field update, and a delete
// that only removes a row when its pid still matches the caller's — so a
// stale, already-evicted actor can never delete a row a newer actor
// installed for the same key.
type CacheIndex struct {
	m syncMap
}

// NewCacheIndex returns an empty CacheIndex.
func NewCacheIndex() *CacheIndex {
	return &CacheIndex{}
}

// Lookup returns the row for k, if any.
func (c *CacheIndex) Lookup(k Key) (*entryRecord, bool) {
	v, ok := c.m.Load(k)
	if !ok {
		return nil, false
	}
	return v, true
}

// InsertIfAbsent installs an empty row (pid = none, val = none) for k if
// none exists yet, and returns the row along with whether this call was the
// one that created it.
func (c *CacheIndex) InsertIfAbsent(k Key) (rec *entryRecord, inserted bool) {
	fresh := &entryRecord{key: k}
	actual, loaded := c.m.LoadOrStore(k, fresh)
	return actual, !loaded
}

// SetPid attaches pid to rec.  Called exactly once, by the coordinator
// itself, synchronously while handling {start, Key} and before the new
// actor's goroutine is spawned — never by the actor, and never again after
// attach (spec.md §4.3 "Startup", §9 "the coordinator writes only the pid
// field, once at attach, never after").
func (c *CacheIndex) SetPid(rec *entryRecord, pid *entry) {
	rec.pid.Store(pid)
}

// SetVal stores the outcome of a successful recover.  Only the owning
// entry actor calls this.
func (c *CacheIndex) SetVal(rec *entryRecord, val Value, err error) {
	rec.val.Store(&entryResult{val: val, err: err})
}

// DeleteMatching removes the row for k only if its current pid equals pid,
// and reports whether a row was removed.  This is the match-qualified
// delete spec.md §4.1 requires: an entry actor's termination cleanup calls
// this, whether the actor was shut down by the coordinator's remove_entry
// or exited on its own, and it never deletes a row a newer actor has since
// installed for the same key.
func (c *CacheIndex) DeleteMatching(k Key, pid *entry) bool {
	v, ok := c.m.Load(k)
	if !ok {
		return false
	}
	if v.pid.Load() != pid {
		return false
	}
	return c.m.CompareAndDelete(k, v)
}

// Size reports the number of rows currently present, matching pid or not.
// The engine itself does not call it; the coordinator tracks its own
// authoritative size.
func (c *CacheIndex) Size() int {
	n := 0
	c.m.Range(func(Key, *entryRecord) bool { n++; return true })
	return n
}
