package ddoccache

import "context"

// The engine treats the document fetch/recovery logic (KeyOps, already
// defined in key.go), the database-event subscription source, and
// cross-node broadcast as external collaborators — spec.md §1 scopes all
// three out of the core and models them only by the interfaces below.

// DBEventKind is one of the database lifecycle notifications the event
// handler (spec.md §4.5) acts on.  Any other kind is ignored.
type DBEventKind string

const (
	DBCreated DBEventKind = "created"
	DBDeleted DBEventKind = "deleted"
)

// DBEvent names a lifecycle transition for a logical database.  DBName is
// already resolved from whatever shard emitted the underlying
// notification — that resolution is the event source's job, not the
// cache's.
type DBEvent struct {
	Kind   DBEventKind
	DBName string
}

// EventSource is the database-event subscription source from spec.md §1.
// Subscribe may be called again after its returned channel closes (the
// coordinator treats a closed channel as subscriber death and
// resubscribes, per spec.md §4.4 "Exit of the event-subscription task").
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan DBEvent, error)
}

// BroadcastKind is the wire-level directive a Broadcaster fans out.
type BroadcastKind string

const (
	BroadcastDoEvict   BroadcastKind = "do_evict"
	BroadcastDoRefresh BroadcastKind = "do_refresh"
)

// BroadcastMessage is what gets delivered to every node's coordinator.
type BroadcastMessage struct {
	Kind    BroadcastKind
	DBName  string
	DDocIDs []string
}

// Broadcaster is the cross-node broadcast collaborator from spec.md §6:
// "delivers message to the local coordinator on every node in nodes".
// Nodes is re-read on every call so membership changes take effect
// immediately; Broadcast must include the local node in its own fan-out so
// a single code path handles both local and remote delivery (spec.md §9
// Design Notes, "per-node broadcast").
type Broadcaster interface {
	Nodes() []string
	Broadcast(ctx context.Context, node string, msg BroadcastMessage)
}

// LocalBroadcaster is the single-node default: its one "node" is the
// process itself, and Broadcast dispatches directly into the coordinator
// that owns it.  Suitable for tests and for a cache that never runs
// clustered.  internal/cluster provides an HTTP-fanout Broadcaster for the
// real multi-node case.
type LocalBroadcaster struct {
	deliver func(ctx context.Context, msg BroadcastMessage)
}

// NewLocalBroadcaster returns a Broadcaster whose single node delivers
// straight to deliver.
func NewLocalBroadcaster(deliver func(ctx context.Context, msg BroadcastMessage)) *LocalBroadcaster {
	return &LocalBroadcaster{deliver: deliver}
}

func (b *LocalBroadcaster) Nodes() []string { return []string{"local"} }

func (b *LocalBroadcaster) Broadcast(ctx context.Context, node string, msg BroadcastMessage) {
	b.deliver(ctx, msg)
}
