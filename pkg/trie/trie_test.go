package trie

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtraced/pkg/ident"
)

func itoa(i int) string { return strconv.Itoa(i) }

func TestGetOrCreateRootIsIdempotent(t *testing.T) {
	tr := New(0, 0)

	a := tr.GetOrCreateRoot("Alloc.direct")
	b := tr.GetOrCreateRoot("Alloc.direct")

	require.Same(t, a, b)
	assert.EqualValues(t, 1, tr.NodeCount())
}

func TestGetOrCreateChildIsIdempotent(t *testing.T) {
	tr := New(0, 0)
	root := tr.GetOrCreateRoot("Alloc.direct")

	a := root.GetOrCreateChild("Svc.process", ident.BucketOne)
	b := root.GetOrCreateChild("Svc.process", ident.BucketOne)

	require.Same(t, a, b)
}

func TestPerNodeCapAbsorbsExcessChildren(t *testing.T) {
	tr := New(0, 0)
	root := tr.GetOrCreateRoot("Alloc.direct")

	// Fill the node to the real PerNodeCap distinct children, then check
	// that the next distinct child is absorbed.
	for i := 0; i < PerNodeCap; i++ {
		sig := ident.MethodSignature("Svc.step" + itoa(i))
		root.GetOrCreateChild(sig, ident.BucketOne)
	}
	require.Equal(t, PerNodeCap, root.ChildCount())

	before := root.Traversals()
	got := root.GetOrCreateChild("one-too-many", ident.BucketOne)
	assert.Same(t, root, got, "absorption must return the node itself")
	assert.Equal(t, before+1, root.Traversals())
}

func TestOverflowRootCollapsesNewRootsAtCapacity(t *testing.T) {
	tr := New(1, 0) // only one node allowed total

	first := tr.GetOrCreateRoot("Alloc.direct")
	assert.False(t, first.Sig == OverflowLabel)

	second := tr.GetOrCreateRoot("Alloc.heap")
	assert.Equal(t, ident.MethodSignature(OverflowLabel), second.Sig)
	assert.EqualValues(t, 1, second.Traversals())
}

func TestResetClearsState(t *testing.T) {
	tr := New(0, 0)
	tr.GetOrCreateRoot("Alloc.direct")
	require.Equal(t, 1, tr.RootCount())

	tr.Reset()
	assert.Equal(t, 0, tr.RootCount())
	assert.EqualValues(t, 0, tr.NodeCount())
}

func TestLeafDetection(t *testing.T) {
	tr := New(0, 0)
	root := tr.GetOrCreateRoot("Alloc.direct")
	assert.True(t, root.IsLeaf(), "childless node is a leaf")

	child := root.GetOrCreateChild("Svc.process", ident.BucketOne)
	assert.False(t, root.IsLeaf(), "node with a non-terminal child is not a leaf")

	child.RecordCleanRelease()
	assert.True(t, child.IsLeaf(), "a node with a recorded clean release is a leaf even with no children")
}
