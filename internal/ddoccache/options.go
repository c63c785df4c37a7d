package ddoccache

import "time"

// Option configures a Cache at construction time, following the same
// functional-options pattern the pack's tempuscache.Option uses: New()
// takes a variadic list of Options so new knobs never change its
// signature.
type Option func(*Cache)

// WithEventSource wires the database-event subscription source spec.md
// §4.5 consumes.  Without one, the coordinator never evicts on database
// lifecycle events — callers must drive Cache.EvictDatabase themselves.
func WithEventSource(es EventSource) Option {
	return func(c *Cache) { c.events = es }
}

// WithBroadcaster overrides the default single-node LocalBroadcaster with
// a cluster-aware one (see internal/cluster).
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Cache) { c.broadcaster = b }
}

// WithObserver registers a callback invoked for every observability event
// in spec.md §6.  Must not block.
func WithObserver(o EventObserver) Option {
	return func(c *Cache) { c.observer = o }
}

// WithStats wires the hit/miss/recovery counters.  Defaults to a no-op
// sink; internal/metrics supplies the Prometheus-backed one.
func WithStats(s StatsSink) Option {
	return func(c *Cache) { c.stats = s }
}

// WithMaxSize overrides the default fixed max-size function with one that
// can change at runtime — e.g. reading a live-reloadable config value, the
// way spec.md §6 requires ("read on every start decision").
func WithMaxSize(fn func() int) Option {
	return func(c *Cache) { c.maxSizeFn = fn }
}

// WithRefreshInterval overrides the default fixed refresh interval.
func WithRefreshInterval(fn func() time.Duration) Option {
	return func(c *Cache) { c.refreshIntervalFn = fn }
}
