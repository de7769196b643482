// Package metrics exposes the tracer's own counters as Prometheus
// collectors: trie occupancy, the error-surface counters of spec.md §7,
// and per-handler dispatch health, re-themed from the teacher's
// internal/metrics.go (log-pipeline throughput/queue/sink gauges) to this
// domain's trie/tracker/scheduler shape. Uses promauto throughout, which
// registers each collector with prometheus.DefaultRegisterer at
// declaration time — the same library the teacher depends on
// (github.com/prometheus/client_golang), applied the way its own
// promauto.NewGaugeVec calls already do, without the
// register-then-recover-from-panic indirection the teacher's safeRegister
// helper needed for its larger, occasionally-reinitialized metric set.
//
// Only the host-resource gauges are updated, by internal/hostmonitor through
// HostGauges. No component sets or increments the trie, tracker,
// error-surface, or handler-dispatch collectors declared here, so /metrics
// reports them at zero.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodeCount and RootCount mirror BoundedImprintTrie.node_count()/
	// root_count() (spec.md §4.3).
	NodeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtraced_trie_node_count",
		Help: "Current number of live imprint-trie nodes, roots included.",
	})
	RootCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtraced_trie_root_count",
		Help: "Current number of distinct imprint-trie roots.",
	})

	// Traversals, CleanReleases, GCLeaks, EOLLeaks are declared as lifetime
	// totals across every node (spec.md §4.2's per-node counters,
	// aggregated for the ops surface); nothing feeds them from the engine.
	Traversals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_traversals_total",
		Help: "Total method-path traversals recorded across the imprint trie.",
	})
	CleanReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_clean_releases_total",
		Help: "Total confirmed terminal releases (refcount observed zero).",
	})
	GCLeaks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_gc_leaks_total",
		Help: "Total objects reclaimed by the collector without a terminal release.",
	})
	EOLLeaks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_eol_leaks_total",
		Help: "Total objects still active at shutdown without a terminal release.",
	})

	// LimitHits, ReentrantDrops, DroppedEvents are the error-surface
	// counters of spec.md §7.
	LimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_limit_hits_total",
		Help: "Total node/child/depth/interner cap absorptions.",
	})
	ReentrantDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_reentrant_drops_total",
		Help: "Total intake calls short-circuited by the per-goroutine re-entrancy guard.",
	})
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowtraced_dropped_events_total",
		Help: "Total intake events dropped due to an unknown object kind or other swallowed failure.",
	})

	// TrackedActive mirrors the active-flow map's live occupancy.
	TrackedActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtraced_tracked_active",
		Help: "Current number of objects present in the active-flow map.",
	})

	// HandlerErrors and SnapshotBuildDuration cover the scheduler/handler
	// dispatch pipeline (spec.md §4.7).
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowtraced_handler_errors_total",
		Help: "Total OnMetrics errors or panics per handler.",
	}, []string{"handler"})
	SnapshotBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowtraced_snapshot_build_duration_seconds",
		Help:    "Time spent walking the trie to build one metric snapshot.",
		Buckets: prometheus.DefBuckets,
	})

	// HostGoroutines, HostFDs, HostHeapBytes are the ambient host-resource
	// correlates internal/hostmonitor samples (SPEC_FULL.md §3).
	HostGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtraced_host_goroutines",
		Help: "Current goroutine count sampled from the host process.",
	})
	HostFDs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtraced_host_open_fds",
		Help: "Current open file descriptor count sampled from the host process.",
	})
	HostHeapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtraced_host_heap_bytes",
		Help: "Current Go heap in-use bytes sampled from the host process.",
	})
)

// HostGauges adapts the package-level Prometheus gauges to
// internal/hostmonitor.Gauges, so that leaf package doesn't need to import
// internal/metrics directly.
type HostGauges struct{}

func (HostGauges) SetHostGoroutines(v float64) { HostGoroutines.Set(v) }
func (HostGauges) SetHostOpenFDs(v float64)     { HostFDs.Set(v) }
func (HostGauges) SetHostHeapBytes(v float64)   { HostHeapBytes.Set(v) }

// Handler returns the promhttp handler serving every collector registered
// above against prometheus.DefaultRegisterer. internal/app mounts it on its
// single consolidated ops mux alongside /healthz and /snapshot, rather than
// running a second listener the way the teacher's internal/metrics.go did
// for the log pipeline — spec.md §1's Non-goals name one read-only ops
// surface, not two.
func Handler() http.Handler {
	return promhttp.Handler()
}
