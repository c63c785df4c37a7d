package ddoccache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxSize and DefaultRefreshInterval are used when a Cache is
// constructed without WithMaxSize / WithRefreshInterval.  Values match
// spec.md §6: "Default: 1000" for max_size; the refresh interval is a
// compile-time constant in the original, here a sane default that callers
// are expected to override from config.
const (
	DefaultMaxSize         = 1000
	DefaultRefreshInterval = 67 * time.Second
)

// Cache is the public entry point of the design-document cache core: the
// fast-path Open from spec.md §4.6, wired to a CacheIndex, an LRUIndex, a
// coordinator, and the external collaborators (KeyOps registry, event
// source, broadcaster).
type Cache struct {
	registry    *Registry
	index       *CacheIndex
	lru         *LRUIndex
	coord       *coordinator
	events      EventSource
	broadcaster Broadcaster
	observer    EventObserver
	stats       StatsSink

	maxSizeFn         func() int
	refreshIntervalFn func() time.Duration

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Cache bound to reg.  Call Start before issuing any
// Open; Close tears it down.
func New(reg *Registry, opts ...Option) *Cache {
	c := &Cache{
		registry:          reg,
		index:             NewCacheIndex(),
		lru:               NewLRUIndex(),
		stats:             noopStats{},
		maxSizeFn:         func() int { return DefaultMaxSize },
		refreshIntervalFn: func() time.Duration { return DefaultRefreshInterval },
	}
	c.coord = newCoordinator(c)

	for _, opt := range opts {
		opt(c)
	}
	if c.broadcaster == nil {
		c.broadcaster = NewLocalBroadcaster(c.coord.DeliverBroadcast)
	}
	return c
}

// Start launches the coordinator goroutine (and, transitively, the event
// subscription loop it owns).  ctx bounds the whole cache's lifetime: every
// entry actor the coordinator spawns shares it, so cancelling it is a hard
// stop for the entire cache.
func (c *Cache) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	c.group = g
	g.Go(func() error {
		c.coord.run(gctx)
		return nil
	})
}

// Close cancels the coordinator and every live entry actor, then waits for
// them to finish draining — the concrete, testable stand-in spec.md §7
// item 5's "supervision restarts it with empty state" calls for (see
// SPEC_FULL.md Supplemented Feature 2): a restart here is simply
// constructing a fresh Cache after Close returns.
func (c *Cache) Close(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- c.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open implements spec.md §4.6's fast path: a lock-free CacheIndex lookup,
// falling through to the coordinator on a miss and to a direct recover
// when the cache is full or a stale pid has already terminated.
func (c *Cache) Open(ctx context.Context, key Key) (Value, error) {
	rec, ok := c.index.Lookup(key)
	if !ok {
		return c.slowOpen(ctx, key)
	}

	pid := rec.pid.Load()
	if pid == nil {
		return c.slowOpen(ctx, key)
	}

	if res := rec.val.Load(); res != nil {
		pid.Accessed()
		c.stats.IncHit()
		return res.val, res.err
	}

	// Row and pid exist but no value yet: a fetch is already underway.
	c.stats.IncMiss()
	return c.dispatchOpen(ctx, pid, key)
}

func (c *Cache) slowOpen(ctx context.Context, key Key) (Value, error) {
	c.stats.IncMiss()
	pid, err := c.coord.Start(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheFull) {
			return c.directRecover(ctx, key)
		}
		return nil, err
	}
	return c.dispatchOpen(ctx, pid, key)
}

func (c *Cache) dispatchOpen(ctx context.Context, pid *entry, key Key) (Value, error) {
	val, err := pid.Open(ctx, key)
	if errors.Is(err, ErrTerminated) {
		// Stale-pid dispatch (spec.md §7 item 3): the call site, not the
		// actor, falls back to a direct recover.
		return c.directRecover(ctx, key)
	}
	return val, err
}

func (c *Cache) maxSize() int {
	return c.maxSizeFn()
}

func (c *Cache) refreshInterval() time.Duration {
	return c.refreshIntervalFn()
}

func (c *Cache) directRecover(ctx context.Context, key Key) (Value, error) {
	c.stats.IncRecovery()
	return c.registry.recover(ctx, key)
}

// EvictDatabase sends the local-origin {evict, DbName} message (spec.md
// §4.4), broadcasting a {do_evict, DbName} to every cluster node.
func (c *Cache) EvictDatabase(ctx context.Context, dbname string) {
	c.coord.Evict(ctx, dbname)
}

// RefreshDatabase sends the local-origin {refresh, DbName, DDocIds}
// message.
func (c *Cache) RefreshDatabase(ctx context.Context, dbname string, ddocids []string) {
	c.coord.RefreshDB(ctx, dbname, ddocids)
}

// DeliverBroadcast is the receiving end a Broadcaster implementation calls
// on every node (including the originating one) for a fanned-out message.
func (c *Cache) DeliverBroadcast(ctx context.Context, msg BroadcastMessage) {
	c.coord.DeliverBroadcast(ctx, msg)
}

// Len reports the number of live entries; used by tests and /debug.
func (c *Cache) Len() int {
	return len(c.coord.pids)
}

func (c *Cache) notifyEntryExit(e *entry) {
	select {
	case c.coord.exitCh <- e:
	default:
		// exitCh is generously buffered; a full buffer only happens under
		// extreme entry churn and merely delays bookkeeping, which the
		// next exit or start will catch up on.
	}
}

func (c *Cache) emitGlobal(kind EventKind, dbname string) {
	c.logEvent(zap.String("dbname", dbname), kind)
	if c.observer != nil {
		c.observer(Event{Kind: kind, DBName: dbname})
	}
}

func (c *Cache) logEvent(field zap.Field, kind EventKind) {
	zap.L().Debug("ddoccache event", zap.String("event", string(kind)), field)
}
