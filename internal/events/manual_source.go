// Package events provides the ddoccache.EventSource the coordinator
// subscribes to for database lifecycle notifications (create/delete), the
// trigger for spec.md §4.5's database-wide eviction.
//
// ManualSource is the default, transport-agnostic implementation: whatever
// drives real lifecycle notifications — a shard's binlog tailer, a message
// queue consumer, the admin HTTP surface's /admin/event endpoint — calls
// Publish, and every subscriber (normally exactly one: the coordinator)
// receives it.
package events

import (
	"context"
	"sync"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

// ManualSource fans a published DBEvent out to every active subscriber.
// Safe for concurrent use.
type ManualSource struct {
	mu   sync.Mutex
	subs map[chan ddoccache.DBEvent]struct{}
}

// NewManualSource returns an empty ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{subs: make(map[chan ddoccache.DBEvent]struct{})}
}

// Subscribe implements ddoccache.EventSource.  The returned channel closes
// when ctx is done; the coordinator is expected to call Subscribe again
// after that (spec.md §4.4 "Exit of the event-subscription task").
func (s *ManualSource) Subscribe(ctx context.Context) (<-chan ddoccache.DBEvent, error) {
	ch := make(chan ddoccache.DBEvent, 16)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Publish delivers ev to every active subscriber.  Non-blocking: a
// subscriber whose buffer is full drops the event rather than stalling the
// publisher — spec.md's eviction is triggered by the *next* create/delete
// of that database if one is missed, not a correctness requirement on its
// own.
func (s *ManualSource) Publish(ev ddoccache.DBEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
