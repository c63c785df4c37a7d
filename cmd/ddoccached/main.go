// Command ddoccached runs a design-document cache core node: it loads
// configuration, opens the shard-backed recovery store, wires the cache
// engine to the event source and cluster broadcaster, and serves the
// admin/observability HTTP surface until interrupted.
//
// Startup sequence:
//  1. Load configuration (.env → conf/global.yaml → DDOC_ env overrides,
//     Vault-resolved shard password).
//  2. Install the process-wide zap logger.
//  3. Build the KeyOps registry over the shard store.
//  4. Start the cache engine, wired to a manual event source and an
//     HTTP cluster broadcaster.
//  5. Serve /metrics, /debug/ddoccache, /admin/evict, /admin/event, and
//     /admin/broadcast until SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusdb/ddoccache/internal/cluster"
	"github.com/nimbusdb/ddoccache/internal/config"
	"github.com/nimbusdb/ddoccache/internal/ddoccache"
	"github.com/nimbusdb/ddoccache/internal/events"
	"github.com/nimbusdb/ddoccache/internal/logger"
	"github.com/nimbusdb/ddoccache/internal/metrics"
	"github.com/nimbusdb/ddoccache/internal/server"
	"github.com/nimbusdb/ddoccache/internal/shardstore"
)

const shutdownGrace = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		// Config failed before the file logger could be installed; the
		// loader already logged through the bootstrap sugared logger.
		zap.S().Fatalw("config load failed", "err", err)
	}

	if _, err := logger.New(cfg.Paths.Root, true); err != nil {
		zap.S().Fatalw("logger init failed", "err", err)
	}
	defer zap.L().Sync()

	store := shardstore.NewStore(cfg.Shard.DSNTemplate, cfg.Shard.Password, shardstore.HashShard(8))
	defer store.Close()

	registry := ddoccache.NewRegistry()
	registry.Register("ddoc", store)

	src := events.NewManualSource()

	// cache is referenced by the broadcaster's deliverLocal closure before
	// it exists; safe because Broadcast is never called until after
	// cache.Start runs, long after this assignment completes.
	var cache *ddoccache.Cache
	broadcaster := cluster.NewHTTPBroadcaster(cfg.Cache.NodeID, func(ctx context.Context, msg ddoccache.BroadcastMessage) {
		cache.DeliverBroadcast(ctx, msg)
	})
	broadcaster.SetPeers(peerMap(cfg.Cache.Peers))

	cache = ddoccache.New(registry,
		ddoccache.WithEventSource(src),
		ddoccache.WithBroadcaster(broadcaster),
		ddoccache.WithObserver(metrics.Observe),
		ddoccache.WithStats(metrics.Sink),
		ddoccache.WithMaxSize(func() int { return config.Get().Cache.MaxSize }),
		ddoccache.WithRefreshInterval(func() time.Duration {
			d, _ := cfg.RefreshInterval()
			return d
		}),
	)

	cache.Start(ctx)
	defer func() {
		if err := cache.Close(context.Background()); err != nil {
			zap.L().Warn("cache shutdown incomplete", zap.Error(err))
		}
	}()

	router := server.NewAdminRouter(cache, src)
	httpServer := server.New(cfg.Admin.ListenAddr, router)

	go func() {
		zap.L().Info("admin server listening", zap.String("addr", cfg.Admin.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Errorw("admin server failed", "err", err)
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("admin server shutdown error", zap.Error(err))
	}
}

// peerMap parses cache.peers entries of the form "node_id=http://host:port".
// A malformed entry is skipped rather than aborting startup over one typo.
func peerMap(peers []string) map[string]string {
	out := make(map[string]string, len(peers))
	for _, p := range peers {
		for i := 0; i < len(p); i++ {
			if p[i] == '=' {
				out[p[:i]] = p[i+1:]
				break
			}
		}
	}
	return out
}
