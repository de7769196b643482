// Package trie implements the bounded imprint trie: a concurrent,
// memory-capped prefix tree aggregating the method-call paths tracked
// objects traverse between allocation and terminal release (or leak).
//
// Grounded on the teacher's general concurrency idiom (sync.RWMutex-guarded
// maps, atomic counters for hot-path updates) rather than a generic
// off-the-shelf trie package, since the node identity, cap-and-absorb
// growth policy, and counter shape here are specific to spec.md §3/§4.3.
package trie

import (
	"sync"
	"sync/atomic"

	"flowtraced/pkg/ident"
)

// PerNodeCap bounds the number of distinct children a single node may
// acquire. Once reached, new distinct children are absorbed as traversals
// of the node itself.
const PerNodeCap = 1000

// NodeKey identifies a child uniquely under its parent: the interned
// signature identity plus the refcount bucket observed at that step.
type NodeKey struct {
	Sig    ident.MethodSignature
	Bucket ident.RefCountBucket
}

// Node is one node of the flow trie. Signature and Bucket never change
// after creation. Children is a concurrent insert-if-absent map; the
// counters are independent atomics — a snapshot reader sees monotonic,
// non-negative values per counter, but no cross-counter consistency is
// promised (spec.md §4.2).
type Node struct {
	Sig    ident.MethodSignature
	Bucket ident.RefCountBucket
	Parent *Node // weak/non-owning: never traversed for ownership, only for display
	IsRoot bool

	mu       sync.RWMutex
	children map[NodeKey]*Node

	traversals    atomic.Uint64
	cleanReleases atomic.Uint64
	gcLeaks       atomic.Uint64
	eolLeaks      atomic.Uint64
	isDirect      atomic.Bool

	owner *Trie
}

// MarkDirect tags a root as rooted at an off-heap allocation site (spec.md
// §4.6 step 2). Only ever sets the flag; a caller observing a non-direct
// construction must not call this, rather than calling it with false, so an
// earlier direct tag on a shared root is never clobbered.
func (n *Node) MarkDirect() { n.isDirect.Store(true) }

// IsDirect reports whether MarkDirect has been called on this node.
func (n *Node) IsDirect() bool { return n.isDirect.Load() }

func newNode(owner *Trie, sig ident.MethodSignature, bucket ident.RefCountBucket, parent *Node) *Node {
	return &Node{
		Sig:      sig,
		Bucket:   bucket,
		Parent:   parent,
		children: make(map[NodeKey]*Node),
		owner:    owner,
	}
}

// RecordTraversal atomically counts a step through this node.
func (n *Node) RecordTraversal() { n.traversals.Add(1) }

// RecordCleanRelease atomically counts a confirmed terminal release at
// this node.
func (n *Node) RecordCleanRelease() { n.cleanReleases.Add(1) }

// RecordGCLeak atomically counts an object reclaimed without release,
// attributed to this node.
func (n *Node) RecordGCLeak() { n.gcLeaks.Add(1) }

// RecordEOLLeak atomically counts an object still active at shutdown,
// attributed to this node.
func (n *Node) RecordEOLLeak() { n.eolLeaks.Add(1) }

// Traversals returns the current traversal count.
func (n *Node) Traversals() uint64 { return n.traversals.Load() }

// CleanReleases returns the current clean-release count.
func (n *Node) CleanReleases() uint64 { return n.cleanReleases.Load() }

// GCLeaks returns the current gc-leak count.
func (n *Node) GCLeaks() uint64 { return n.gcLeaks.Load() }

// EOLLeaks returns the current end-of-life leak count.
func (n *Node) EOLLeaks() uint64 { return n.eolLeaks.Load() }

// IsLeaf reports whether the node has no children, or its counters
// indicate a terminal outcome was recorded at it (spec.md §4.6 step 3).
func (n *Node) IsLeaf() bool {
	if n.ChildCount() == 0 {
		return true
	}
	return n.cleanReleases.Load() > 0 || n.gcLeaks.Load() > 0 || n.eolLeaks.Load() > 0
}

// ChildCount reports the current number of distinct children.
func (n *Node) ChildCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.children)
}

// ChildrenSnapshot returns a stable slice of the current children for
// iteration. The slice is a shallow copy; the trie may still grow
// concurrently.
func (n *Node) ChildrenSnapshot() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

// GetOrCreateChild returns the child keyed by (sig, bucket), creating it if
// absent and both the per-node cap and the trie's global node cap allow
// it. When either cap is reached, the step is absorbed: the current node's
// own traversal counter is incremented and n itself is returned, meaning
// the caller's next step effectively stays put (spec.md §4.2/§4.3).
func (n *Node) GetOrCreateChild(sig ident.MethodSignature, bucket ident.RefCountBucket) *Node {
	key := NodeKey{Sig: sig, Bucket: bucket}

	n.mu.RLock()
	if child, ok := n.children[key]; ok {
		n.mu.RUnlock()
		return child
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()

	if child, ok := n.children[key]; ok {
		return child
	}

	if len(n.children) >= PerNodeCap || !n.owner.tryGrow() {
		n.traversals.Add(1)
		n.owner.recordLimitHit()
		return n
	}

	child := newNode(n.owner, sig, bucket, n)
	n.children[key] = child
	return child
}
