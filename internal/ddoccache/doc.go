// Package ddoccache is the concurrency and lifecycle engine of a clustered
// design-document cache: a bounded LRU in which every live entry is its own
// goroutine-backed actor owning one in-flight opener, a refresh timer, and a
// set of waiters.
//
// Fast reads never touch the coordinator: CacheIndex is a lock-free map kept
// current by the single entry actor that owns each row.  Misses, eviction,
// and database-wide invalidation are serialized through a single
// coordinator goroutine while entry actors evolve independently of one
// another and of it.
package ddoccache
