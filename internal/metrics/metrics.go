// Package metrics holds the Prometheus instruments for the design-document
// cache core.  Importing this package and mounting promhttp.Handler() (see
// internal/server) is enough to expose them on /metrics.  Sink implements
// ddoccache.StatsSink; Observe implements ddoccache.EventObserver — wire
// both with ddoccache.WithStats(metrics.Sink) and
// ddoccache.WithObserver(metrics.Observe).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

var (
	hitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddoc_cache_hit_total",
			Help: "Cumulative number of fast-path cache hits.",
		})

	missTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddoc_cache_miss_total",
			Help: "Cumulative number of cache misses, including those served by a direct recover.",
		})

	recoveryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddoc_cache_recovery_total",
			Help: "Cumulative number of direct recovers bypassing an entry actor (full cache or stale pid).",
		})

	entriesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddoc_cache_entries_active",
			Help: "Number of entry actors currently alive.",
		})

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddoc_cache_events_total",
			Help: "Cumulative count of cache lifecycle events, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(hitTotal, missTotal, recoveryTotal, entriesActive, eventsTotal)
}

// Sink is the StatsSink wired into ddoccache.New via WithStats.
var Sink sinkImpl

type sinkImpl struct{}

func (sinkImpl) IncHit()      { hitTotal.Inc() }
func (sinkImpl) IncMiss()     { missTotal.Inc() }
func (sinkImpl) IncRecovery() { recoveryTotal.Inc() }

// Observe is the EventObserver wired into ddoccache.New via WithObserver.
// It only touches the counter by kind; entriesActive is adjusted on the
// "started"/"removed" pair since those are the only two that mark an
// actor's birth and death.
func Observe(ev ddoccache.Event) {
	eventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case ddoccache.EventStarted:
		entriesActive.Inc()
	case ddoccache.EventRemoved:
		entriesActive.Dec()
	}
}
