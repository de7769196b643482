// Package flowtypes holds the shared contracts crossing package
// boundaries: the metric taxonomy, the immutable snapshot shape, and the
// handler and object-kind descriptor interfaces external collaborators
// implement. Kept separate from internal/snapshot and internal/engine so
// that pkg/activeflow, internal/engine, internal/snapshot,
// internal/scheduler, and internal/handlers can all depend on it without
// a cycle.
package flowtypes

import (
	"time"

	"flowtraced/pkg/ident"
)

// MetricType names one of the reportable metric families a handler may
// request (spec.md §3/§6).
type MetricType string

const (
	// DirectLeaks covers flows rooted at, or tagged as, off-heap
	// allocations that were never cleanly released.
	DirectLeaks MetricType = "DIRECT_LEAKS"
	// HeapLeaks covers the complement: on-heap flows never cleanly
	// released.
	HeapLeaks MetricType = "HEAP_LEAKS"
)

// AllMetricTypes lists every metric family the snapshot builder knows how
// to produce.
var AllMetricTypes = []MetricType{DirectLeaks, HeapLeaks}

// LeakRecord describes one leaking root-to-leaf path.
type LeakRecord struct {
	FlowRepr     string
	LeakCount    uint64
	CaptureNanos int64
}

// MetricPayload is one MetricType's contribution to a snapshot: the
// individual leak records plus their total.
type MetricPayload struct {
	Records []LeakRecord
	Total   uint64
}

// MetricSnapshot is the immutable result of one build_snapshot pass. Once
// constructed it is never mutated; callers may share it freely across
// goroutines.
type MetricSnapshot struct {
	CaptureNanos int64
	Metrics      map[MetricType]MetricPayload
}

// Handler is the scheduler's dispatch contract. Handlers declare the
// metric families they need; the scheduler hands each handler only the
// subset it asked for. Implementations must be non-blocking and must not
// panic — on_metrics exceptions are caught by the scheduler, but a
// handler that panics loses its own snapshot.
type Handler interface {
	Name() string
	RequiredMetrics() map[MetricType]struct{}
	OnMetrics(snapshot MetricSnapshot) error
}

// ObjectKindDescriptor lets the engine be polymorphic over what "tracked
// object" means. The default kind, registered by the engine itself,
// models a native off-heap buffer.
type ObjectKindDescriptor struct {
	// Name identifies the kind for logging/diagnostics.
	Name string
	// IsDirect reports whether objects of this kind are off-heap
	// allocations (feeds DIRECT_LEAKS vs HEAP_LEAKS classification).
	IsDirect func(obj interface{}) bool
	// Identity returns a stable identity hash for obj. Two calls for the
	// same logical object must return the same value for the lifetime of
	// that object.
	Identity func(obj interface{}) uint64
}

// Config is the configuration contract of spec.md §6, read once at
// process startup; re-reading mid-process is out of scope (a restart is
// required to pick up changes). Shared across internal/config (which
// loads and validates it), internal/engine, internal/scheduler, and
// internal/handlers (which consume it).
type Config struct {
	// IncludePatterns / ExcludePatterns / TrackConstructors are dotted or
	// globbed class patterns passed through uninterpreted to the
	// instrumentation layer; the engine does not read them.
	IncludePatterns   []string `yaml:"include_patterns"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	TrackConstructors []string `yaml:"track_constructors"`

	// FilterDirectOnly, when set, skips on_construction for heap-only
	// allocation sites via a name-based fast path before consulting the
	// object kind descriptor (spec.md §6).
	FilterDirectOnly bool `yaml:"filter_direct_only"`

	// PushInterval is the scheduler's pump period (spec.md §4.7).
	PushInterval time.Duration `yaml:"push_interval"`

	// NodeLimit / DepthLimit / InternerCapacity bound the trie, flow
	// depth, and interner respectively (spec.md §3/§4.1/§4.3); zero means
	// "use the package default".
	NodeLimit        int `yaml:"node_limit"`
	DepthLimit       int `yaml:"depth_limit"`
	InternerCapacity int `yaml:"interner_capacity"`

	// QueueCapacity bounds the reclamation channel buffer; DrainInterval
	// overrides the inline drain cadence (spec.md §4.4).
	QueueCapacity int `yaml:"queue_capacity"`
	DrainInterval int `yaml:"drain_interval"`

	// LogLevel / LogFormat configure the ambient logrus logger.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server is the read-only ops HTTP surface (spec.md §1 Non-goals:
	// not the management interface).
	Server ServerConfig `yaml:"server"`

	// Handlers configures the concrete Handler implementations
	// internal/handlers wires up.
	Handlers HandlersConfig `yaml:"handlers"`

	// HostMonitor configures the ambient host-resource sampler.
	HostMonitor HostMonitorConfig `yaml:"host_monitor"`
}

// ServerConfig controls the read-only ops HTTP surface.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HandlersConfig groups the per-handler configuration blocks. Each handler
// is wired only if its block is non-nil and Enabled.
type HandlersConfig struct {
	File   *FileHandlerConfig   `yaml:"file"`
	Kafka  *KafkaHandlerConfig  `yaml:"kafka"`
	Docker *DockerHandlerConfig `yaml:"docker"`
}

// FileHandlerConfig configures the JSONL flow-repr sink and its rotation
// and archive compression.
type FileHandlerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	Compression string `yaml:"compression"` // none|gzip|zstd|lz4|snappy
}

// KafkaHandlerConfig configures the Kafka leak-record publisher.
type KafkaHandlerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Compression string   `yaml:"compression"`
	SASL        *SASLConfig `yaml:"sasl"`
}

// SASLConfig configures SCRAM authentication against the Kafka brokers.
type SASLConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mechanism string `yaml:"mechanism"` // SCRAM-SHA-256|SCRAM-SHA-512
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
}

// DockerHandlerConfig configures the leak-burst/container-RSS correlator.
type DockerHandlerConfig struct {
	Enabled        bool `yaml:"enabled"`
	LeakThreshold  uint64 `yaml:"leak_threshold"`
}

// HostMonitorConfig configures the periodic host resource sampler.
type HostMonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MatchesPattern reports whether a dotted/globbed class pattern
// (include/exclude/track_constructors patterns) matches sig's class
// prefix. Patterns are otherwise passed through to the instrumentation
// layer uninterpreted; this helper is for callers that need to evaluate
// them locally. filter_direct_only's name-based fast path in
// internal/engine does not use it.
func MatchesPattern(pattern string, sig ident.MethodSignature) bool {
	return globMatch(pattern, string(sig))
}

func globMatch(pattern, s string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(s) >= len(prefix) && s[:len(prefix)] == prefix
	}
	return pattern == s
}
