// Package snapshot implements the MetricSnapshotBuilder (spec.md §4.6): a
// depth-first walk of the bounded imprint trie that renders leaking
// root-to-leaf paths into the compact, LLM-oriented flow_repr grammar of
// spec.md §3/§6.
//
// Grounded on the teacher's internal/metrics snapshot-style helpers
// (GetStats()/point-in-time struct building) re-themed from counter
// aggregation to trie traversal, since no teacher package walks a tree.
package snapshot

import (
	"fmt"
	"strings"

	"flowtraced/pkg/flowtypes"
	"flowtraced/pkg/trie"
)

// Engine is the subset of internal/engine.Engine the builder depends on,
// kept narrow to avoid an import cycle between internal/engine and
// internal/snapshot.
type Engine interface {
	Trie() *trie.Trie
}

// TrackerDrainer is the subset of pkg/activeflow.Tracker the builder
// forces a drain on before walking the trie (spec.md §4.6 step 1).
type TrackerDrainer interface {
	DrainGCQueue()
}

// Builder walks a trie and renders MetricSnapshots.
type Builder struct {
	engine  Engine
	tracker TrackerDrainer
}

// New creates a Builder bound to engine's trie and tracker.
func New(engine Engine, tracker TrackerDrainer) *Builder {
	return &Builder{engine: engine, tracker: tracker}
}

// BuildSnapshot walks the subset of roots relevant to each type in
// requested, producing the leak records and totals spec.md §4.6
// describes. captureNanos is the caller-supplied capture timestamp
// (internal/scheduler stamps it from time.Now(), keeping this package
// free of a direct time dependency on the hot path).
func (b *Builder) BuildSnapshot(captureNanos int64, requested map[flowtypes.MetricType]struct{}) flowtypes.MetricSnapshot {
	b.tracker.DrainGCQueue()

	snap := flowtypes.MetricSnapshot{
		CaptureNanos: captureNanos,
		Metrics:      make(map[flowtypes.MetricType]flowtypes.MetricPayload, len(requested)),
	}

	for _, root := range b.engine.Trie().IterRoots() {
		mtype := classify(root)
		if _, want := requested[mtype]; !want {
			continue
		}
		records := walkRoot(root, captureNanos)
		payload := snap.Metrics[mtype]
		for _, rec := range records {
			payload.Records = append(payload.Records, rec)
			payload.Total += rec.LeakCount
		}
		snap.Metrics[mtype] = payload
	}

	return snap
}

// classify assigns a root to DIRECT_LEAKS or HEAP_LEAKS per spec.md §4.6
// step 2. A root is DIRECT_LEAKS once any flow constructed under it was
// tagged is_direct (propagated onto the root by activeflow.GetOrCreate,
// since every flow sharing a root shares its allocation site); everything
// else is HEAP_LEAKS. The designated overflow root is opaque and always
// classified HEAP_LEAKS, since its contents cannot be attributed to either
// family once collapsed.
func classify(root *trie.Node) flowtypes.MetricType {
	if string(root.Sig) == trie.OverflowLabel {
		return flowtypes.HeapLeaks
	}
	if root.IsDirect() {
		return flowtypes.DirectLeaks
	}
	return flowtypes.HeapLeaks
}

// pathStep is one node along a root-to-leaf chain, kept separately from
// *trie.Node so walkRoot can build the flow_repr without re-walking.
type pathStep struct {
	sig    string
	bucket uint8
}

// walkRoot performs the depth-first enumeration of spec.md §4.6 step 3,
// bounded by trie.MaxDepth, emitting one LeakRecord per leaf with a
// non-zero leak_count (step 5).
func walkRoot(root *trie.Node, captureNanos int64) []flowtypes.LeakRecord {
	var out []flowtypes.LeakRecord
	var walk func(n *trie.Node, path []pathStep, depth int)
	walk = func(n *trie.Node, path []pathStep, depth int) {
		path = append(path, pathStep{sig: string(n.Sig), bucket: uint8(n.Bucket)})

		if n.IsLeaf() || depth >= trie.MaxDepth {
			leakCount := n.GCLeaks() + n.EOLLeaks()
			if leakCount > 0 {
				out = append(out, flowtypes.LeakRecord{
					FlowRepr:     renderFlowRepr(root, path, leakCount, n.Traversals()),
					LeakCount:    leakCount,
					CaptureNanos: captureNanos,
				})
			}
			if !n.IsLeaf() {
				// Depth cap reached with children still present: the
				// remaining subtree collapsed into self-traversals at n
				// per spec.md §3, so there is nothing further to descend.
				return
			}
			return
		}

		for _, child := range n.ChildrenSnapshot() {
			walk(child, path, depth+1)
		}
	}
	walk(root, nil, 0)
	return out
}

// renderFlowRepr composes the pipe-delimited grammar of spec.md §6:
//
//	root=<sig>|final_ref=<bucket>|leak_count=<u64>|leak_rate=<pct>|path=<step>(' -> '<step>)*
func renderFlowRepr(root *trie.Node, path []pathStep, leakCount, traversalsAtLeaf uint64) string {
	leaf := path[len(path)-1]
	rate := float64(leakCount) / float64(max64(1, traversalsAtLeaf)) * 100

	var steps strings.Builder
	for i, s := range path {
		if i > 0 {
			steps.WriteString(" -> ")
		}
		fmt.Fprintf(&steps, "%s[ref=%d]", s.sig, s.bucket)
	}

	return fmt.Sprintf("root=%s|final_ref=%d|leak_count=%d|leak_rate=%.1f%%|path=%s",
		root.Sig, leaf.bucket, leakCount, rate, steps.String())
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
