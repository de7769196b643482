package trie

import (
	"sync"
	"sync/atomic"

	"flowtraced/pkg/ident"
)

const (
	// MaxTotalNodes bounds the whole trie's node count, roots included.
	MaxTotalNodes = 1_000_000
	// MaxDepth bounds how far any flow may descend from its root.
	MaxDepth = 100
	// OverflowLabel is the signature used for the designated overflow
	// root once MaxTotalNodes has been reached (spec.md §9).
	OverflowLabel = "OVERFLOW"
)

// Trie is the bounded imprint trie: an owner of root nodes, a global node
// cap, and the overflow-root fallback described in spec.md §4.3.
type Trie struct {
	maxNodes int
	maxDepth int

	mu    sync.RWMutex
	roots map[ident.MethodSignature]*Node

	nodeCount atomic.Uint64
	limitHits atomic.Uint64

	overflowOnce sync.Once
	overflow     *Node
}

// New creates an empty trie with the given caps. A zero value for either
// falls back to the spec defaults.
func New(maxNodes, maxDepth int) *Trie {
	if maxNodes <= 0 {
		maxNodes = MaxTotalNodes
	}
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}
	return &Trie{
		maxNodes: maxNodes,
		maxDepth: maxDepth,
		roots:    make(map[ident.MethodSignature]*Node),
	}
}

// MaxDepth reports the configured depth cap.
func (t *Trie) MaxDepth() int { return t.maxDepth }

// NodeCount reports the number of live nodes, roots included.
func (t *Trie) NodeCount() uint64 { return t.nodeCount.Load() }

// RootCount reports the number of distinct roots.
func (t *Trie) RootCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roots)
}

// LimitHits reports how many child/root creations were absorbed because
// the per-node child cap or the global node cap was already reached.
// Depth-cap absorptions in pkg/activeflow and interner overflow are not
// counted here.
func (t *Trie) LimitHits() uint64 { return t.limitHits.Load() }

func (t *Trie) recordLimitHit() { t.limitHits.Add(1) }

// tryGrow attempts to reserve budget for one more node against the global
// cap. Returns false if the trie is already at capacity.
func (t *Trie) tryGrow() bool {
	for {
		cur := t.nodeCount.Load()
		if cur >= uint64(t.maxNodes) {
			return false
		}
		if t.nodeCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// GetOrCreateRoot returns the root for sig, creating it if absent and the
// global node cap still has room. Once the cap is reached, further new
// roots collapse into a single designated OVERFLOW root whose contents are
// opaque to consumers (spec.md §9).
func (t *Trie) GetOrCreateRoot(sig ident.MethodSignature) *Node {
	t.mu.RLock()
	if root, ok := t.roots[sig]; ok {
		t.mu.RUnlock()
		return root
	}
	t.mu.RUnlock()

	t.mu.Lock()
	if root, ok := t.roots[sig]; ok {
		t.mu.Unlock()
		return root
	}

	if !t.tryGrow() {
		t.mu.Unlock()
		t.recordLimitHit()
		return t.overflowRoot()
	}

	root := newNode(t, sig, ident.BucketZero, nil)
	root.IsRoot = true
	t.roots[sig] = root
	t.mu.Unlock()
	return root
}

// overflowRoot lazily creates (once) the single OVERFLOW root used once the
// trie is at capacity. It is created out-of-band of the global node cap
// since the cap is already saturated by the time it is needed.
func (t *Trie) overflowRoot() *Node {
	t.overflowOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		root := newNode(t, OverflowLabel, ident.BucketZero, nil)
		root.IsRoot = true
		t.roots[OverflowLabel] = root
		t.overflow = root
	})
	t.overflow.RecordTraversal()
	return t.overflow
}

// IterRoots returns a snapshot slice of the current roots for read-only
// iteration (e.g. by the snapshot builder). The slice may lag concurrent
// inserts; that is acceptable per spec.md §4.6.
func (t *Trie) IterRoots() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.roots))
	for _, r := range t.roots {
		out = append(out, r)
	}
	return out
}

// Reset clears all trie state. Used only in tests.
func (t *Trie) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots = make(map[ident.MethodSignature]*Node)
	t.nodeCount.Store(0)
	t.limitHits.Store(0)
	t.overflowOnce = sync.Once{}
	t.overflow = nil
}
