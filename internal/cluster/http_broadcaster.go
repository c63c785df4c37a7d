// Package cluster implements ddoccache.Broadcaster over plain HTTP,
// posting a BroadcastMessage to every peer's /admin/broadcast endpoint
// (see internal/server/admin.go).  Delivery is best-effort: spec.md §6
// only requires "delivers message to the local coordinator on every node
// in nodes", not guaranteed delivery, so a failed POST to one peer is
// logged and otherwise ignored rather than retried indefinitely.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

// HTTPBroadcaster fans a BroadcastMessage out to every configured peer,
// including the local node via deliverLocal (so Broadcast never needs to
// special-case "is this node me").
type HTTPBroadcaster struct {
	selfNode     string
	deliverLocal func(ctx context.Context, msg ddoccache.BroadcastMessage)
	client       *http.Client

	mu    sync.RWMutex
	peers map[string]string // node name -> base URL, e.g. "node-b" -> "http://10.0.1.8:7100"
}

// NewHTTPBroadcaster builds a Broadcaster for the node named selfNode.
// deliverLocal is invoked for selfNode instead of an HTTP round-trip;
// wire it to Cache.DeliverBroadcast.
func NewHTTPBroadcaster(selfNode string, deliverLocal func(ctx context.Context, msg ddoccache.BroadcastMessage)) *HTTPBroadcaster {
	return &HTTPBroadcaster{
		selfNode:     selfNode,
		deliverLocal: deliverLocal,
		client:       &http.Client{Timeout: 5 * time.Second},
		peers:        make(map[string]string),
	}
}

// SetPeers replaces the peer set wholesale.  Safe to call concurrently
// with Broadcast; membership changes take effect on the next call.
func (b *HTTPBroadcaster) SetPeers(peers map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers = peers
}

// Nodes implements ddoccache.Broadcaster.
func (b *HTTPBroadcaster) Nodes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	nodes := make([]string, 0, len(b.peers)+1)
	nodes = append(nodes, b.selfNode)
	for name := range b.peers {
		nodes = append(nodes, name)
	}
	return nodes
}

// Broadcast implements ddoccache.Broadcaster: local delivery is direct,
// every other node gets a best-effort POST sent from its own goroutine, so
// Broadcast returns without waiting for the peer.
func (b *HTTPBroadcaster) Broadcast(ctx context.Context, node string, msg ddoccache.BroadcastMessage) {
	if node == b.selfNode {
		b.deliverLocal(ctx, msg)
		return
	}

	b.mu.RLock()
	base, ok := b.peers[node]
	b.mu.RUnlock()
	if !ok {
		zap.L().Warn("ddoccache: broadcast to unknown peer", zap.String("node", node))
		return
	}

	go func() {
		if err := b.post(ctx, base, msg); err != nil {
			zap.L().Warn("ddoccache: broadcast delivery failed",
				zap.String("node", node), zap.String("kind", string(msg.Kind)), zap.Error(err))
		}
	}()
}

func (b *HTTPBroadcaster) post(ctx context.Context, base string, msg ddoccache.BroadcastMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/admin/broadcast", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}
