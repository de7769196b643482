// Package engine implements the FlowEngine: the public intake API
// instrumentation calls into on every tracked-object construction,
// method-entry, method-exit, and terminal release (spec.md §4.5). It
// routes those events into the active-flow tracker and the bounded
// imprint trie, enforces the at-most-once allocation root and per-goroutine
// re-entrancy guard, and returns no error to the caller.
//
// Grounded on the teacher's internal/dispatcher.Dispatcher as the
// "everything routes through one orchestration point, nothing blocks the
// caller" idiom, re-themed from log-entry dispatch to lifecycle-event
// intake.
package engine

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"flowtraced/pkg/activeflow"
	"flowtraced/pkg/flowtypes"
	"flowtraced/pkg/gls"
	"flowtraced/pkg/ident"
	"flowtraced/pkg/trie"
)

// defaultKindName is the descriptor used when no explicit kind was
// registered for the instrumentation call site: a native reference-counted
// buffer (spec.md §6 "the default kind is the native buffer type").
const defaultKindName = "buffer"

// Engine is the process-wide intake handle (the design's "explicit
// constructor at startup; thereafter immutable routing handle" — spec.md
// §9). Tests construct independent instances via New rather than reaching
// for a package-level singleton.
type Engine struct {
	trie    *trie.Trie
	tracker *activeflow.Tracker
	interner *ident.Interner
	guard   *gls.Guard
	logger  *logrus.Logger

	filterDirectOnly bool

	kindsMu sync.RWMutex
	kinds   map[string]flowtypes.ObjectKindDescriptor

	droppedEvents  atomic.Uint64
	reentrantDrops atomic.Uint64
}

// New constructs an independent Engine from cfg. It registers the default
// buffer kind descriptor automatically.
func New(cfg flowtypes.Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	t := trie.New(cfg.NodeLimit, cfg.DepthLimit)
	e := &Engine{
		trie:             t,
		tracker:          activeflow.NewTracker(t, cfg.QueueCapacity, cfg.DrainInterval),
		interner:         ident.NewInterner(cfg.InternerCapacity),
		guard:            gls.NewGuard(),
		logger:           logger,
		filterDirectOnly: cfg.FilterDirectOnly,
		kinds:            make(map[string]flowtypes.ObjectKindDescriptor),
	}
	e.RegisterObjectKind(flowtypes.ObjectKindDescriptor{
		Name:     defaultKindName,
		IsDirect: func(interface{}) bool { return false },
		Identity: identityOfAny,
	})
	return e
}

// Trie exposes the underlying imprint trie for the snapshot builder.
func (e *Engine) Trie() *trie.Trie { return e.trie }

// Tracker exposes the underlying active-flow tracker for the snapshot
// builder's forced drain.
func (e *Engine) Tracker() *activeflow.Tracker { return e.tracker }

// RegisterObjectKind adds or replaces a kind descriptor (spec.md §6
// "register_object_kind"), letting the engine be polymorphic over what
// "tracked object" means without inheritance (spec.md §9's "capability
// set" redesign note).
func (e *Engine) RegisterObjectKind(d flowtypes.ObjectKindDescriptor) {
	e.kindsMu.Lock()
	defer e.kindsMu.Unlock()
	e.kinds[d.Name] = d
}

func (e *Engine) kind(name string) (flowtypes.ObjectKindDescriptor, bool) {
	e.kindsMu.RLock()
	defer e.kindsMu.RUnlock()
	d, ok := e.kinds[name]
	return d, ok
}

// Stats reports the engine's lifetime error-surface counters (spec.md §7)
// alongside a point-in-time view of tracker occupancy, matching the
// teacher's GetStats() convention (internal/dispatcher, pkg/leakdetection).
// No intake path increments DroppedEvents, and intake calls do not recover
// a panic raised inside them (for example by a custom Identity or IsDirect
// capability), so DroppedEvents stays zero.
type Stats struct {
	DroppedEvents  uint64
	ReentrantDrops uint64
	LimitHits      uint64
	TrackedActive  int
	GCLeaks        uint64
	EOLLeaks       uint64
	NodeCount      uint64
	RootCount      int
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		DroppedEvents:  e.droppedEvents.Load(),
		ReentrantDrops: e.reentrantDrops.Load(),
		LimitHits:      e.trie.LimitHits(),
		TrackedActive:  e.tracker.Len(),
		GCLeaks:        e.tracker.GCLeaks(),
		EOLLeaks:       e.tracker.EOLLeaks(),
		NodeCount:      e.trie.NodeCount(),
		RootCount:      e.trie.RootCount(),
	}
}

// Shutdown marks every still-active flow an end-of-life leak and clears
// the active map (spec.md §4.4 mark_remaining_as_leaks, invoked by
// internal/app before the scheduler's final snapshot).
func (e *Engine) Shutdown() {
	e.tracker.DrainGCQueue()
	e.tracker.MarkRemainingAsLeaks()
}

// InvocationScope is the per-invocation identity set the instrumentation
// threads through a single method call so that a parameter list carrying
// the same tracked object more than once collapses to a single traversal
// (spec.md §4.5 "Parameter-set handling"). The zero value is usable; a nil
// *InvocationScope disables dedup (each call is recorded independently),
// which is the correct behavior for a bare single-object call site.
type InvocationScope struct {
	seen map[uint64]struct{}
}

// BeginInvocation starts a new per-invocation identity set.
func (e *Engine) BeginInvocation() *InvocationScope {
	return &InvocationScope{seen: make(map[uint64]struct{}, 4)}
}

// consume returns true the first time identity is seen within this scope
// (or always true for a nil scope).
func (s *InvocationScope) consume(identity uint64) bool {
	if s == nil {
		return true
	}
	if _, ok := s.seen[identity]; ok {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[uint64]struct{}, 4)
	}
	s.seen[identity] = struct{}{}
	return true
}

// identityOfAny is the default ObjectKindDescriptor.Identity: a stable
// identity hash derived from obj's pointer value. While a tracked object is
// reachable its pointer is unique, which is exactly the lifetime
// register_object_kind's Identity capability needs; hashing with xxhash
// keeps it the same width as the interner's xxhash keys in pkg/ident.
// obj must be a pointer, slice, map, chan, or func value — every
// call site here passes a pointer.
func identityOfAny(obj interface{}) uint64 {
	var buf [8]byte
	p := uint64(reflect.ValueOf(obj).Pointer())
	for i := 0; i < 8; i++ {
		buf[i] = byte(p >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// resolveIdentity consults the registered default kind descriptor's
// Identity capability (spec.md §6 register_object_kind) for obj, so a
// caller that re-registers defaultKindName with a custom Identity function
// actually changes what identity intake resolves to, rather than the
// pointer hash being applied unconditionally regardless of registration.
func (e *Engine) resolveIdentity(obj interface{}) uint64 {
	if d, ok := e.kind(defaultKindName); ok && d.Identity != nil {
		return d.Identity(obj)
	}
	return identityOfAny(obj)
}

// resolveIsDirect consults the registered default kind descriptor's
// IsDirect capability (spec.md §6) and ORs it onto observed, the
// caller-supplied flag from the instrumentation call site. A kind
// descriptor can only broaden what counts as direct, never narrow an
// explicit true from the call site, matching the same never-clobber
// discipline activeflow.GetOrCreate applies when tagging a root.
func (e *Engine) resolveIsDirect(obj interface{}, observed bool) bool {
	if observed {
		return true
	}
	if d, ok := e.kind(defaultKindName); ok && d.IsDirect != nil {
		return d.IsDirect(obj)
	}
	return false
}

// OnConstruction is called when a tracked object is born (spec.md §4.5).
// If a flow already exists for obj's identity the call is ignored — the
// at-most-once root guarantee — otherwise allocationSiteSig seeds a new
// root. isDirect is carried on the flow for DIRECT_LEAKS/HEAP_LEAKS
// classification downstream; when the engine was configured with
// filter_direct_only, a name-based fast path may override it or skip the
// call outright (spec.md §6). Either way, the registered default kind's
// Identity and IsDirect capabilities are consulted afterward, so a caller
// that re-registers defaultKindName always takes effect, not only under
// filter_direct_only.
func OnConstruction[T any](e *Engine, obj *T, allocationSiteSig string, isDirect bool) {
	if !e.guard.Enter() {
		e.reentrantDrops.Add(1)
		return
	}
	defer e.guard.Exit()

	if e.filterDirectOnly {
		switch {
		case strings.Contains(strings.ToLower(allocationSiteSig), "heapbuffer"):
			return
		case strings.Contains(strings.ToLower(allocationSiteSig), "directbuffer"):
			isDirect = true
		}
	}
	isDirect = e.resolveIsDirect(obj, isDirect)

	sig := e.interner.Intern(allocationSiteSig)
	identity := e.resolveIdentity(obj)
	activeflow.GetOrCreate(e.tracker, obj, identity, sig, isDirect)
}

// OnMethodEnter advances obj's flow under a child keyed by
// (method_sig, bucketize(observed_refcount)). If no flow exists yet — an
// instrumented method entered with an object the engine never saw
// constructed — a lazy root is created using method_sig itself (spec.md
// §4.5). scope may be nil for a single-object call site; for a call site
// passing several tracked parameters, share one scope across all of them
// so repeats collapse to a single traversal.
func OnMethodEnter[T any](e *Engine, scope *InvocationScope, obj *T, methodSig string, observedRefcount int64) {
	if !e.guard.Enter() {
		e.reentrantDrops.Add(1)
		return
	}
	defer e.guard.Exit()

	identity := e.resolveIdentity(obj)
	if !scope.consume(identity) {
		return
	}

	sig := e.interner.Intern(methodSig)
	bucket := ident.Bucketize(observedRefcount)
	flow := activeflow.GetOrCreate(e.tracker, obj, identity, sig, false)
	e.tracker.Advance(flow, sig, bucket)
}

// OnMethodExit advances obj's flow using method_sig + "_return" so the
// exit point is distinguishable from the entry (spec.md §4.5). Never
// fails.
func OnMethodExit[T any](e *Engine, scope *InvocationScope, obj *T, methodSig string, observedRefcount int64) {
	if !e.guard.Enter() {
		e.reentrantDrops.Add(1)
		return
	}
	defer e.guard.Exit()

	identity := e.resolveIdentity(obj)
	if !scope.consume(identity) {
		return
	}

	sig := e.interner.Intern(methodSig + "_return")
	bucket := ident.Bucketize(observedRefcount)
	flow := activeflow.GetOrCreate(e.tracker, obj, identity, sig, false)
	e.tracker.Advance(flow, sig, bucket)
}

// OnTerminalRelease is called only once the terminal release has been
// confirmed externally (refcount observed zero). It advances to a
// (site_sig, bucket=0) child and records a clean release; subsequent
// calls for the same identity are ignored (spec.md §4.5).
func OnTerminalRelease[T any](e *Engine, obj *T, siteSig string) {
	if !e.guard.Enter() {
		e.reentrantDrops.Add(1)
		return
	}
	defer e.guard.Exit()

	identity := e.resolveIdentity(obj)
	sig := e.interner.Intern(siteSig)
	flow := activeflow.GetOrCreate(e.tracker, obj, identity, sig, false)
	if flow.Completed() {
		return
	}
	e.tracker.Advance(flow, sig, ident.BucketZero)
	e.tracker.RecordCleanRelease(identity)
}
