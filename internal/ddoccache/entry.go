package ddoccache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// actorState is the per-entry state machine from spec.md §4.3.
type actorState int

const (
	stateFetchingInitial actorState = iota
	stateIdle
	stateRefreshing
	stateTerminal
)

func (s actorState) String() string {
	switch s {
	case stateFetchingInitial:
		return "fetching_initial"
	case stateIdle:
		return "idle"
	case stateRefreshing:
		return "refreshing"
	default:
		return "terminal"
	}
}

// ErrTerminated is returned by Open when the actor had already exited by
// the time the call was dispatched.  The call site — never the actor — is
// responsible for falling back to a direct recover on this error, per
// spec.md §4.3.
var ErrTerminated = fmt.Errorf("ddoccache: entry actor already terminated")

type openReply struct {
	val Value
	err error
}

type msgKind int

const (
	msgOpen msgKind = iota
	msgRefresh
	msgShutdown
)

type actorMsg struct {
	kind  msgKind
	reply chan openReply  // msgOpen
	done  chan struct{}   // msgShutdown
}

// openOutcome is what an opener goroutine delivers on completion.  gen
// lets the actor discard a stale result from an opener it has since killed
// and replaced — belt-and-braces alongside context cancellation, since a
// result can already be in flight on the channel the instant cancel fires.
type openOutcome struct {
	gen int64
	val Value
	err error
}

// entry is one cached key's actor: a goroutine with a private mailbox that
// owns the opener task, the refresh timer, the waiter list, and the value
// slot (spec.md §2, §4.3).  All fields below are touched only from the
// run() goroutine — the single-writer discipline spec.md §9 calls for —
// except silent, which the coordinator sets (see below), and terminated,
// which is closed exactly once and is safe to read from anywhere.
type entry struct {
	cache *Cache
	key   Key
	rec   *entryRecord

	mailbox    chan actorMsg
	accessedCh chan struct{}
	resultCh   chan openOutcome
	terminated chan struct{}

	// silent is set by the coordinator's remove_entry just before it calls
	// Shutdown, so this actor's own exit doesn't re-trigger the
	// coordinator's normal-exit handler (spec.md §9 "unlink").
	silent bool

	state        actorState
	val          *entryResult
	waiters      []chan openReply
	ts           int64 // 0 == spec.md's "none"
	openerGen    int64
	openerCancel context.CancelFunc
	refreshTimer *time.Timer
}

func newEntry(c *Cache, key Key, rec *entryRecord) *entry {
	return &entry{
		cache:      c,
		key:        key,
		rec:        rec,
		mailbox:    make(chan actorMsg, 8),
		accessedCh: make(chan struct{}, 1),
		resultCh:   make(chan openOutcome, 1),
		terminated: make(chan struct{}),
	}
}

// Open implements the entry actor's synchronous open contract (spec.md
// §4.3).  It is the call site's job to fall back to a direct recover when
// ErrTerminated comes back.
func (e *entry) Open(ctx context.Context, _ Key) (Value, error) {
	reply := make(chan openReply, 1)
	select {
	case e.mailbox <- actorMsg{kind: msgOpen, reply: reply}:
	case <-e.terminated:
		return nil, ErrTerminated
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-e.terminated:
		// Actor exited mid-flight without delivering a reply; treat
		// exactly like a dispatch failure.
		select {
		case r := <-reply:
			return r.val, r.err
		default:
			return nil, ErrTerminated
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Accessed signals that a fast-path lookup just served a hit.  Buffered
// and coalesced: a burst of back-to-back calls collapses to one LRU touch
// (spec.md §4.3, §5 "Ordering guarantees").
func (e *entry) Accessed() {
	select {
	case e.accessedCh <- struct{}{}:
	default: // already a pending accessed signal; the burst coalesces.
	case <-e.terminated:
	}
}

// Refresh asks the actor to re-run recover.  Idempotent while a refresh is
// already in flight.
func (e *entry) Refresh() {
	select {
	case e.mailbox <- actorMsg{kind: msgRefresh}:
	case <-e.terminated:
	}
}

// Shutdown synchronously tears the actor down: its CacheIndex row and
// LRUItem are removed before this call returns.
func (e *entry) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	select {
	case e.mailbox <- actorMsg{kind: msgShutdown, done: done}:
	case <-e.terminated:
		return
	}
	select {
	case <-done:
	case <-e.terminated:
	case <-ctx.Done():
	}
}

// markSilent is called by the coordinator's remove_entry before Shutdown.
func (e *entry) markSilent() { e.silent = true }

// run is the actor's goroutine body.  Spawned by the coordinator
// immediately after it installs the placeholder CacheIndex row and attaches
// this actor's pid to it — synchronously, from the coordinator's own
// serialized goroutine, per spec.md §9 ("the coordinator writes only the
// pid field, once at attach, never after"). By the time run starts, the
// row already carries e's pid, so a concurrent coordStart for the same key
// always observes a live pid and never spawns a second actor around the
// same row.
func (e *entry) run(ctx context.Context) {
	e.state = stateFetchingInitial
	e.startOpener(ctx)
	e.emit(EventStarted)

	// A Shutdown caller is released only once cleanup has removed the
	// CacheIndex row and LRUItem.
	var shutdownDone chan struct{}
	defer func() {
		e.cleanup()
		if shutdownDone != nil {
			close(shutdownDone)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-e.mailbox:
			switch msg.kind {
			case msgOpen:
				e.handleOpen(msg)
			case msgRefresh:
				e.handleRefresh(ctx)
			case msgShutdown:
				close(msg.done)
				return
			}

		case <-e.accessedCh:
			e.drainAccessed()
			e.touchLRU()

		case res := <-e.resultCh:
			if !e.handleOpenerDone(res) {
				return
			}
		}
	}
}

// drainAccessed performs the "zero-timeout receive" spec.md §4.3 asks for:
// a non-blocking drain of any further queued accessed signals so a burst
// collapses into the single LRU touch the caller is about to perform.
func (e *entry) drainAccessed() {
	for {
		select {
		case <-e.accessedCh:
		default:
			return
		}
	}
}

func (e *entry) handleOpen(msg actorMsg) {
	switch e.state {
	case stateIdle:
		msg.reply <- openReply{val: e.val.val, err: e.val.err}
	case stateFetchingInitial, stateRefreshing:
		e.waiters = append(e.waiters, msg.reply)
	}
}

func (e *entry) handleRefresh(ctx context.Context) {
	switch e.state {
	case stateIdle:
		if e.refreshTimer != nil {
			e.refreshTimer.Stop()
			e.refreshTimer = nil
		}
		e.startOpener(ctx)
		e.state = stateRefreshing
	case stateFetchingInitial, stateRefreshing:
		e.killOpener()
		e.startOpener(ctx)
	}
}

func (e *entry) handleOpenerDone(res openOutcome) bool {
	if res.gen != e.openerGen {
		return true // stale result from a killed opener; ignore and keep running.
	}
	e.openerCancel = nil

	if res.err == nil {
		prior := e.val
		e.val = &entryResult{val: res.val}
		e.cache.index.SetVal(e.rec, res.val, nil)

		switch {
		case prior == nil:
			e.emit(EventInserted)
		case reflect.DeepEqual(prior.val, res.val):
			e.emit(EventUpdateNoop)
		default:
			e.emit(EventUpdated)
		}

		for _, w := range e.waiters {
			w <- openReply{val: res.val}
		}
		e.waiters = e.waiters[:0]

		e.touchLRU()
		e.scheduleRefresh()
		e.state = stateIdle
		return true
	}

	// Recover failure: spec.md §4.3 "Any other outcome" row. Waiters get
	// the failure verbatim; no further waiters are ever buffered (the
	// Open Question in spec.md §9 is resolved here — a caller racing this
	// transition either lands in e.waiters above and gets the failure, or
	// dispatches after e.terminated closes and falls back to a direct
	// recover; it never reads stale data).
	e.state = stateTerminal
	for _, w := range e.waiters {
		w <- openReply{err: res.err}
	}
	e.waiters = nil
	return false
}

func (e *entry) touchLRU() {
	ts := NextTimestamp()
	if e.ts != 0 {
		e.cache.lru.DeleteExact(LRUItem{TS: e.ts, Key: e.key, Pid: e})
	}
	e.ts = ts
	e.cache.lru.Insert(LRUItem{TS: ts, Key: e.key, Pid: e})
	e.emit(EventAccessed)
}

// scheduleRefresh arms the Idle-state refresh timer.  Firing funnels
// through the same msgRefresh path any external caller uses — so a timer
// firing and an explicit Refresh() racing each other hit the exact same
// handleRefresh code, instead of needing a second state machine.
func (e *entry) scheduleRefresh() {
	e.refreshTimer = time.AfterFunc(e.cache.refreshInterval(), e.Refresh)
}

func (e *entry) startOpener(ctx context.Context) {
	e.openerGen++
	gen := e.openerGen
	octx, cancel := context.WithCancel(ctx)
	e.openerCancel = cancel
	spawnOpener(octx, e.cache.registry, e.key, gen, e.resultCh)
}

func (e *entry) killOpener() {
	if e.openerCancel != nil {
		e.openerCancel()
		e.openerCancel = nil
	}
}

// cleanup runs exactly once, via defer in run(), on every exit path:
// normal shutdown, recover failure, or a supervisory context cancellation.
// Both deletes tolerate the row/item already being gone, per spec.md §4.3
// "Termination cleanup" and §5 "Races handled explicitly".
func (e *entry) cleanup() {
	close(e.terminated)
	e.killOpener()
	if e.refreshTimer != nil {
		e.refreshTimer.Stop()
		e.refreshTimer = nil
	}

	removedRow := e.cache.index.DeleteMatching(e.key, e)
	removedItem := false
	if e.ts != 0 {
		removedItem = e.cache.lru.DeleteExact(LRUItem{TS: e.ts, Key: e.key, Pid: e})
		e.ts = 0
	}
	if removedRow || removedItem {
		e.emit(EventRemoved)
	}

	if !e.silent {
		e.cache.notifyEntryExit(e)
	}
}

func (e *entry) emit(kind EventKind) {
	e.cache.logEvent(zap.String("key", e.key.String()), kind)
	if e.cache.observer != nil {
		e.cache.observer(Event{Kind: kind, Key: e.key})
	}
}
