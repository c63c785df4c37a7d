package ddoccache

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrCacheFull is returned by the coordinator's start handling when no
// eviction candidate exists to make room for a new entry (spec.md §4.4,
// §7 item 2).  The caller — Cache.Open's fast path — falls back to a
// direct recover on this error; it never reaches an entry actor.
var ErrCacheFull = errors.New("ddoccache: cache full")

type coordMsgKind int

const (
	coordStart coordMsgKind = iota
	coordEvict
	coordDoEvict
	coordRefresh
	coordDoRefresh
)

type coordMsg struct {
	kind    coordMsgKind
	key     Key
	dbname  string
	ddocids []string
	reply   chan startReply
}

type startReply struct {
	pid  *entry
	full bool
}

// coordinator is the single serialized LRU coordinator from spec.md §4.4:
// it admits new entries (evicting the oldest to respect max size), tracks
// entries by pid and by (dbname, ddocid, key), reacts to database events,
// and fans out evict/refresh directives.  Every field below is touched
// only from the run() goroutine.
type coordinator struct {
	cache   *Cache
	mailbox chan coordMsg
	exitCh  chan *entry

	pids map[*entry]Key
	dbs  map[string]map[string]map[Key]*entry
}

func newCoordinator(c *Cache) *coordinator {
	return &coordinator{
		cache:   c,
		mailbox: make(chan coordMsg, 64),
		exitCh:  make(chan *entry, 64),
		pids:    make(map[*entry]Key),
		dbs:     make(map[string]map[string]map[Key]*entry),
	}
}

func (co *coordinator) run(ctx context.Context) {
	dbEvents := co.subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-co.mailbox:
			co.handle(ctx, msg)

		case e := <-co.exitCh:
			co.handleEntryExit(e)

		case ev, ok := <-dbEvents:
			if !ok {
				if ctx.Err() != nil {
					// Shutdown, not a live event-source death: dbEvents
					// closed because ctx was canceled, the same ctx this
					// loop selects on for its own exit. Return now, as the
					// ctx.Done() case would, instead of emitting a
					// spurious evictor_died and resubscribing with an
					// already-canceled context.
					return
				}
				co.cache.emitGlobal(EventEvictorDied, "")
				dbEvents = co.subscribe(ctx)
				continue
			}
			co.handleDBEvent(ctx, ev)
		}
	}
}

func (co *coordinator) subscribe(ctx context.Context) <-chan DBEvent {
	if co.cache.events == nil {
		return nil // select on a nil channel blocks forever: no event source configured.
	}
	ch, err := co.cache.events.Subscribe(ctx)
	if err != nil {
		zap.L().Warn("ddoccache: event subscription failed", zap.Error(err))
		return nil
	}
	return ch
}

func (co *coordinator) handleDBEvent(ctx context.Context, ev DBEvent) {
	switch ev.Kind {
	case DBCreated, DBDeleted:
		co.Evict(ctx, ev.DBName)
	}
	// All other kinds are ignored, per spec.md §4.5.
}

func (co *coordinator) handle(ctx context.Context, msg coordMsg) {
	switch msg.kind {
	case coordStart:
		co.handleStart(ctx, msg)
	case coordEvict:
		co.fanOut(ctx, BroadcastMessage{Kind: BroadcastDoEvict, DBName: msg.dbname})
	case coordDoEvict:
		co.doEvict(msg.dbname)
	case coordRefresh:
		co.fanOut(ctx, BroadcastMessage{Kind: BroadcastDoRefresh, DBName: msg.dbname, DDocIDs: msg.ddocids})
	case coordDoRefresh:
		co.doRefresh(msg.dbname, msg.ddocids)
	}
}

func (co *coordinator) handleStart(ctx context.Context, msg coordMsg) {
	if rec, ok := co.cache.index.Lookup(msg.key); ok {
		if pid := rec.pid.Load(); pid != nil {
			msg.reply <- startReply{pid: pid}
			return
		}
	}

	if _, err := co.trim(co.cache.maxSize()); err != nil {
		co.cache.emitGlobal(EventFull, "")
		msg.reply <- startReply{full: true}
		return
	}

	rec, _ := co.cache.index.InsertIfAbsent(msg.key)
	e := newEntry(co.cache, msg.key, rec)
	co.cache.index.SetPid(rec, e)
	co.pids[e] = msg.key
	co.addDB(msg.key, e)

	co.cache.group.Go(func() error {
		e.run(ctx)
		return nil
	})

	msg.reply <- startReply{pid: e}
}

// trim implements spec.md §4.4's trim(cur, max): make room for one new
// entry if the cache is at or over max, evicting the single oldest live
// entry.  Returns ErrCacheFull exactly when max = 0, or when the cache is
// at capacity and the LRU index has no candidate to evict.
func (co *coordinator) trim(maxSize int) (int, error) {
	if maxSize == 0 {
		return 0, ErrCacheFull
	}
	if len(co.pids) < maxSize {
		return 0, nil
	}
	item, ok := co.cache.lru.First()
	if !ok {
		return 0, ErrCacheFull
	}
	co.removeEntry(item.Key, item.Pid)
	return 1, nil
}

// removeEntry implements spec.md §4.4's remove_entry(key, pid): unlink the
// actor so its own normal exit won't re-trigger handleEntryExit, shut it
// down synchronously, then drop the bookkeeping.
func (co *coordinator) removeEntry(key Key, pid *entry) {
	pid.markSilent()
	pid.Shutdown(context.Background())
	delete(co.pids, pid)
	co.pruneDB(key)
}

func (co *coordinator) doEvict(dbname string) {
	ddocs, ok := co.dbs[dbname]
	if !ok {
		co.cache.emitGlobal(EventEvictNoop, dbname)
		return
	}

	type pair struct {
		key Key
		pid *entry
	}
	var all []pair
	for _, byKey := range ddocs {
		for key, pid := range byKey {
			all = append(all, pair{key, pid})
		}
	}
	for _, p := range all {
		co.removeEntry(p.key, p.pid)
	}
	delete(co.dbs, dbname)
	co.cache.emitGlobal(EventEvicted, dbname)
}

func (co *coordinator) doRefresh(dbname string, ddocids []string) {
	all := append([]string{NoDDocID}, ddocids...)
	for _, ddocid := range all {
		byKey, ok := co.dbs[dbname][ddocid]
		if !ok {
			continue
		}
		for _, pid := range byKey {
			pid.Refresh()
		}
	}
}

func (co *coordinator) handleEntryExit(e *entry) {
	key, ok := co.pids[e]
	if !ok {
		return // already unlinked and removed via removeEntry.
	}
	delete(co.pids, e)
	co.pruneDB(key)
}

func (co *coordinator) addDB(key Key, e *entry) {
	dbname, err := co.cache.registry.dbname(key)
	if err != nil {
		return
	}
	ddocid, err := co.cache.registry.ddocid(key)
	if err != nil {
		ddocid = NoDDocID
	}
	if co.dbs[dbname] == nil {
		co.dbs[dbname] = make(map[string]map[Key]*entry)
	}
	if co.dbs[dbname][ddocid] == nil {
		co.dbs[dbname][ddocid] = make(map[Key]*entry)
	}
	co.dbs[dbname][ddocid][key] = e
}

func (co *coordinator) pruneDB(key Key) {
	dbname, err := co.cache.registry.dbname(key)
	if err != nil {
		return
	}
	ddocid, err := co.cache.registry.ddocid(key)
	if err != nil {
		ddocid = NoDDocID
	}
	m, ok := co.dbs[dbname]
	if !ok {
		return
	}
	if d, ok := m[ddocid]; ok {
		delete(d, key)
		if len(d) == 0 {
			delete(m, ddocid)
		}
	}
	if len(m) == 0 {
		delete(co.dbs, dbname)
	}
}

func (co *coordinator) fanOut(ctx context.Context, msg BroadcastMessage) {
	for _, node := range co.cache.broadcaster.Nodes() {
		co.cache.broadcaster.Broadcast(ctx, node, msg)
	}
}

// Start asks the coordinator to look up or create the entry actor for key
// (spec.md §4.4 "{start, Key}").
func (co *coordinator) Start(ctx context.Context, key Key) (*entry, error) {
	reply := make(chan startReply, 1)
	select {
	case co.mailbox <- coordMsg{kind: coordStart, key: key, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		if r.full {
			return nil, ErrCacheFull
		}
		return r.pid, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Evict is the local-origin {evict, DbName} message: it rebroadcasts to
// every known node (including self) as {do_evict, DbName}.
func (co *coordinator) Evict(ctx context.Context, dbname string) {
	select {
	case co.mailbox <- coordMsg{kind: coordEvict, dbname: dbname}:
	case <-ctx.Done():
	}
}

// RefreshDB is the local-origin {refresh, DbName, DDocIds} message.
func (co *coordinator) RefreshDB(ctx context.Context, dbname string, ddocids []string) {
	select {
	case co.mailbox <- coordMsg{kind: coordRefresh, dbname: dbname, ddocids: ddocids}:
	case <-ctx.Done():
	}
}

// DeliverBroadcast is the receiving end of Broadcaster.Broadcast: every
// node's coordinator (including the local one, uniformly) handles
// {do_evict, ...} / {do_refresh, ...} through this single entry point.
func (co *coordinator) DeliverBroadcast(ctx context.Context, msg BroadcastMessage) {
	var m coordMsg
	switch msg.Kind {
	case BroadcastDoEvict:
		m = coordMsg{kind: coordDoEvict, dbname: msg.DBName}
	case BroadcastDoRefresh:
		m = coordMsg{kind: coordDoRefresh, dbname: msg.DBName, ddocids: msg.DDocIDs}
	default:
		return
	}
	select {
	case co.mailbox <- m:
	case <-ctx.Done():
	}
}
