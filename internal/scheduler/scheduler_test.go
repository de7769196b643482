package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtraced/pkg/flowtypes"
)

type stubBuilder struct {
	mu       sync.Mutex
	calls    int
	requests []map[flowtypes.MetricType]struct{}
}

func (b *stubBuilder) BuildSnapshot(captureNanos int64, requested map[flowtypes.MetricType]struct{}) flowtypes.MetricSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.requests = append(b.requests, requested)
	return flowtypes.MetricSnapshot{
		CaptureNanos: captureNanos,
		Metrics: map[flowtypes.MetricType]flowtypes.MetricPayload{
			flowtypes.DirectLeaks: {Total: 1},
			flowtypes.HeapLeaks:   {Total: 2},
		},
	}
}

type stubHandler struct {
	name     string
	required map[flowtypes.MetricType]struct{}

	mu   sync.Mutex
	seen []flowtypes.MetricSnapshot
	err  error
}

func (h *stubHandler) Name() string                                  { return h.name }
func (h *stubHandler) RequiredMetrics() map[flowtypes.MetricType]struct{} { return h.required }
func (h *stubHandler) OnMetrics(snap flowtypes.MetricSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, snap)
	return h.err
}

func (h *stubHandler) snapshots() []flowtypes.MetricSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]flowtypes.MetricSnapshot, len(h.seen))
	copy(out, h.seen)
	return out
}

func TestSchedulerDispatchesOnlyRequestedTypes(t *testing.T) {
	builder := &stubBuilder{}
	registry := NewRegistry()
	direct := &stubHandler{name: "direct", required: map[flowtypes.MetricType]struct{}{flowtypes.DirectLeaks: {}}}
	registry.Register(direct)

	s := New(builder, registry, time.Hour, nil)
	s.Start()
	defer s.Stop()

	s.pushOnce(42)

	snaps := direct.snapshots()
	require.Len(t, snaps, 1)
	_, hasDirect := snaps[0].Metrics[flowtypes.DirectLeaks]
	_, hasHeap := snaps[0].Metrics[flowtypes.HeapLeaks]
	assert.True(t, hasDirect)
	assert.False(t, hasHeap, "handler never requested HEAP_LEAKS")
}

func TestSchedulerSurvivesHandlerError(t *testing.T) {
	builder := &stubBuilder{}
	registry := NewRegistry()
	failing := &stubHandler{name: "failing", required: map[flowtypes.MetricType]struct{}{flowtypes.DirectLeaks: {}}, err: errors.New("boom")}
	healthy := &stubHandler{name: "healthy", required: map[flowtypes.MetricType]struct{}{flowtypes.HeapLeaks: {}}}
	registry.Register(failing)
	registry.Register(healthy)

	s := New(builder, registry, time.Hour, nil)
	s.Start()
	defer s.Stop()

	s.pushOnce(1)
	s.pushOnce(2)

	assert.Len(t, healthy.snapshots(), 2, "a failing handler must not stop the scheduler from reaching the next handler or the next push")
	assert.EqualValues(t, 2, s.HandlerErrors()["failing"])
}

func TestSchedulerSurvivesHandlerPanic(t *testing.T) {
	builder := &stubBuilder{}
	registry := NewRegistry()
	s := New(builder, registry, time.Hour, nil)

	panicking := &panicHandler{name: "panicker", required: map[flowtypes.MetricType]struct{}{flowtypes.DirectLeaks: {}}}
	registry.Register(panicking)

	s.Start()
	defer s.Stop()

	assert.NotPanics(t, func() { s.pushOnce(1) })
	assert.EqualValues(t, 1, s.HandlerErrors()["panicker"])
}

type panicHandler struct {
	name     string
	required map[flowtypes.MetricType]struct{}
}

func (h *panicHandler) Name() string                                      { return h.name }
func (h *panicHandler) RequiredMetrics() map[flowtypes.MetricType]struct{} { return h.required }
func (h *panicHandler) OnMetrics(flowtypes.MetricSnapshot) error           { panic("handler exploded") }

func TestUnregisterRemovesHandler(t *testing.T) {
	registry := NewRegistry()
	h := &stubHandler{name: "x", required: map[flowtypes.MetricType]struct{}{}}
	registry.Register(h)
	require.Len(t, registry.Snapshot(), 1)

	registry.Unregister("x")
	assert.Empty(t, registry.Snapshot())
}
