// internal/server/admin.go
//
// Admin / observability HTTP surface for ddoccached.
//
// Mounts:
//
//   1. **GET  /metrics**           – promhttp.Handler(), the standard
//      Prometheus scrape endpoint.
//   2. **GET  /debug/ddoccache**   – plain-text snapshot (entry count) for
//      a human poking at a running node.
//   3. **POST /admin/evict**       – manual {"dbname": "..."} trigger for
//      Cache.EvictDatabase, for operators working around a stuck design
//      document without waiting on the event source.
//   4. **POST /admin/event**       – manual {"Kind": "...", "DBName": "..."}
//      database lifecycle event, published to the event source; mounted
//      only when NewAdminRouter is given a publisher.
//   5. **POST /admin/broadcast**   – the receiving end a peer's
//      internal/cluster.HTTPBroadcaster posts do_evict/do_refresh
//      directives to.
//
// Wired the same way the teacher mounts a tenant's Component routes: one
// chi.Router built once in NewAdminRouter, handed to server.New for the
// timeout defaults.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

// AdminCache is the subset of *ddoccache.Cache the admin surface needs.
type AdminCache interface {
	Len() int
	EvictDatabase(ctx context.Context, dbname string)
	DeliverBroadcast(ctx context.Context, msg ddoccache.BroadcastMessage)
}

// EventPublisher is the subset of *events.ManualSource the admin surface
// needs, letting an operator (or a shard-side webhook with no better
// transport available) inject a database lifecycle event by hand.
type EventPublisher interface {
	Publish(ev ddoccache.DBEvent)
}

// NewAdminRouter builds the admin/observability router for cache, with
// publisher wired to /admin/event.  publisher may be nil, in which case
// that route responds 404 — not every deployment drives lifecycle events
// through the admin surface.
func NewAdminRouter(cache AdminCache, publisher EventPublisher) http.Handler {
	r := chi.NewRouter()

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/debug/ddoccache", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "entries_active: %d\n", cache.Len())
	})

	r.Post("/admin/evict", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DBName string `json:"dbname"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.DBName == "" {
			http.Error(w, "bad request: want {\"dbname\": \"...\"}", http.StatusBadRequest)
			return
		}
		cache.EvictDatabase(req.Context(), body.DBName)
		zap.L().Info("admin evict", zap.String("dbname", body.DBName))
		w.WriteHeader(http.StatusAccepted)
	})

	if publisher != nil {
		r.Post("/admin/event", func(w http.ResponseWriter, req *http.Request) {
			var ev ddoccache.DBEvent
			if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
				http.Error(w, "bad request: malformed db event", http.StatusBadRequest)
				return
			}
			publisher.Publish(ev)
			zap.L().Info("admin event", zap.String("kind", string(ev.Kind)), zap.String("dbname", ev.DBName))
			w.WriteHeader(http.StatusAccepted)
		})
	}

	r.Post("/admin/broadcast", func(w http.ResponseWriter, req *http.Request) {
		var msg ddoccache.BroadcastMessage
		if err := json.NewDecoder(req.Body).Decode(&msg); err != nil {
			http.Error(w, "bad request: malformed broadcast message", http.StatusBadRequest)
			return
		}
		cache.DeliverBroadcast(req.Context(), msg)
		w.WriteHeader(http.StatusAccepted)
	})

	return r
}
