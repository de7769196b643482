// Package scheduler implements the MetricScheduler and HandlerRegistry of
// spec.md §4.7: a single-threaded periodic pump that builds one snapshot
// per push_interval, requesting the union of every registered handler's
// declared interest, and dispatches to each handler the subset it asked
// for.
//
// Grounded on the teacher's pkg/cleanup.DiskSpaceManager and
// pkg/leakdetection.ResourceMonitor, both of which run a single
// ticker-driven loop with a Stop() that waits for the loop to exit — the
// idiom this package reuses for its pump goroutine, with a stop channel
// and a done channel.
package scheduler

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"flowtraced/pkg/flowtypes"
)

const defaultPushInterval = 60 * time.Second

// SnapshotBuilder is the subset of internal/snapshot.Builder the
// scheduler depends on.
type SnapshotBuilder interface {
	BuildSnapshot(captureNanos int64, requested map[flowtypes.MetricType]struct{}) flowtypes.MetricSnapshot
}

// Registry is a copy-on-write list of registered handlers (spec.md §5
// "HandlerRegistry: copy-on-write list; updates are rare"). Safe for
// concurrent Register/Unregister against concurrent reads from the pump
// goroutine.
type Registry struct {
	mu       sync.Mutex
	handlers []flowtypes.Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds h to the registry.
func (r *Registry) Register(h flowtypes.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]flowtypes.Handler, len(r.handlers), len(r.handlers)+1)
	copy(next, r.handlers)
	r.handlers = append(next, h)
}

// Unregister removes the handler with the given name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]flowtypes.Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		if h.Name() != name {
			next = append(next, h)
		}
	}
	r.handlers = next
}

// Snapshot returns the currently registered handlers. The returned slice
// must be treated as read-only.
func (r *Registry) Snapshot() []flowtypes.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlers
}

// unionInterests returns the union of every handler's required metric
// types.
func unionInterests(handlers []flowtypes.Handler) map[flowtypes.MetricType]struct{} {
	union := make(map[flowtypes.MetricType]struct{})
	for _, h := range handlers {
		for mt := range h.RequiredMetrics() {
			union[mt] = struct{}{}
		}
	}
	return union
}

// filterFor narrows snap to only the metric types handler declared
// interest in, so each handler "sees only the types it requested; others
// are omitted" (spec.md §4.7).
func filterFor(handler flowtypes.Handler, snap flowtypes.MetricSnapshot) flowtypes.MetricSnapshot {
	want := handler.RequiredMetrics()
	filtered := flowtypes.MetricSnapshot{
		CaptureNanos: snap.CaptureNanos,
		Metrics:      make(map[flowtypes.MetricType]flowtypes.MetricPayload, len(want)),
	}
	for mt := range want {
		if payload, ok := snap.Metrics[mt]; ok {
			filtered.Metrics[mt] = payload
		}
	}
	return filtered
}

// Scheduler is the single-threaded periodic pump (spec.md §4.7). Handler
// dispatch is synchronous on the pump goroutine: a slow handler delays
// subsequent pushes but never aborts the scheduler, matching the design's
// "must never abort the scheduler" requirement.
type Scheduler struct {
	builder      SnapshotBuilder
	registry     *Registry
	logger       *logrus.Logger
	pushInterval time.Duration

	handlerErrors map[string]uint64
	errMu         sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Scheduler bound to builder and registry. A zero
// pushInterval falls back to the spec default of 60s.
func New(builder SnapshotBuilder, registry *Registry, pushInterval time.Duration, logger *logrus.Logger) *Scheduler {
	if pushInterval <= 0 {
		pushInterval = defaultPushInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		builder:       builder,
		registry:      registry,
		logger:        logger,
		pushInterval:  pushInterval,
		handlerErrors: make(map[string]uint64),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the pump goroutine. It returns immediately; callers stop
// the pump with Stop.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pushOnce(time.Now().UnixNano())
		}
	}
}

// pushOnce builds one snapshot over the union of current interests and
// dispatches it to every registered handler.
func (s *Scheduler) pushOnce(captureNanos int64) {
	handlers := s.registry.Snapshot()
	if len(handlers) == 0 {
		return
	}
	snap := s.builder.BuildSnapshot(captureNanos, unionInterests(handlers))
	for _, h := range handlers {
		s.dispatch(h, snap)
	}
}

// dispatch calls h.OnMetrics with its requested subset of snap, catching
// a panic the same way a thrown exception would be caught in the source
// design (spec.md §4.7 "Exceptions thrown by handlers are caught and
// recorded").
func (s *Scheduler) dispatch(h flowtypes.Handler, snap flowtypes.MetricSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.recordHandlerError(h.Name())
			s.logger.WithFields(logrus.Fields{"handler": h.Name(), "panic": r}).
				Error("handler panicked during metric dispatch")
		}
	}()

	if err := h.OnMetrics(filterFor(h, snap)); err != nil {
		s.recordHandlerError(h.Name())
		s.logger.WithFields(logrus.Fields{"handler": h.Name(), "error": err}).
			Warn("handler returned an error from OnMetrics")
	}
}

func (s *Scheduler) recordHandlerError(name string) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.handlerErrors[name]++
}

// HandlerErrors reports the lifetime error count per handler name.
func (s *Scheduler) HandlerErrors() map[string]uint64 {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	out := make(map[string]uint64, len(s.handlerErrors))
	for k, v := range s.handlerErrors {
		out[k] = v
	}
	return out
}

// Shutdown produces one final snapshot (the caller must have already
// invoked the engine's shutdown/mark-remaining-as-leaks step) and
// delivers it synchronously before stopping the pump goroutine (spec.md
// §4.7 "Cancellation/shutdown").
func (s *Scheduler) Shutdown() {
	s.pushOnce(time.Now().UnixNano())
	s.Stop()
}

// Stop cancels the pump's timed sleep and waits for the goroutine to
// exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
