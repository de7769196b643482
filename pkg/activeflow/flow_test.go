package activeflow

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtraced/pkg/ident"
	"flowtraced/pkg/trie"
)

type fakeBuffer struct{ tag int }

func TestGetOrCreateIsAtMostOnceRoot(t *testing.T) {
	tr := trie.New(0, 0)
	tracker := NewTracker(tr, 0, 0)

	obj := &fakeBuffer{tag: 1}
	a := GetOrCreate(tracker, obj, 42, "Alloc.direct", true)
	b := GetOrCreate(tracker, obj, 42, "Alloc.direct", true)

	require.Same(t, a, b)
	assert.Equal(t, 1, tracker.Len())
}

func TestRecordCleanReleaseIsIdempotent(t *testing.T) {
	tr := trie.New(0, 0)
	tracker := NewTracker(tr, 0, 0)
	obj := &fakeBuffer{}
	f := GetOrCreate(tracker, obj, 7, "Alloc.direct", true)

	require.True(t, tracker.RecordCleanRelease(7))
	assert.False(t, tracker.RecordCleanRelease(7), "second release must be a no-op")
	assert.True(t, f.Completed())
	assert.EqualValues(t, 1, f.CurrentNode().CleanReleases())
}

func TestAdvanceMovesToChildAndIncrementsDepth(t *testing.T) {
	tr := trie.New(0, 0)
	tracker := NewTracker(tr, 0, 0)
	obj := &fakeBuffer{}
	f := GetOrCreate(tracker, obj, 9, "Alloc.direct", true)
	root := f.CurrentNode()

	tracker.Advance(f, "Svc.process", ident.BucketOne)

	assert.NotSame(t, root, f.CurrentNode())
	assert.EqualValues(t, 1, f.Depth())
	assert.EqualValues(t, 1, f.CurrentNode().Traversals())
}

func TestMarkRemainingAsLeaksRecordsEOLAndClears(t *testing.T) {
	tr := trie.New(0, 0)
	tracker := NewTracker(tr, 0, 0)
	obj := &fakeBuffer{}
	f := GetOrCreate(tracker, obj, 11, "Alloc.direct", true)

	tracker.MarkRemainingAsLeaks()

	assert.EqualValues(t, 1, f.CurrentNode().EOLLeaks())
	assert.Equal(t, 0, tracker.Len())
	assert.EqualValues(t, 1, tracker.EOLLeaks())
}

func TestDrainGCQueueRecordsLeakForUnreclaimedObject(t *testing.T) {
	tr := trie.New(0, 0)
	tracker := NewTracker(tr, 0, 0)

	var root *trie.Node
	func() {
		obj := &fakeBuffer{}
		f := GetOrCreate(tracker, obj, 21, "Alloc.direct", true)
		root = f.CurrentNode()
	}()

	// obj is now unreachable; force collection so its cleanup runs, then
	// give the runtime's cleanup goroutine a moment to enqueue it before
	// draining. This mirrors how a real test would force GC + drain per
	// spec.md's illustrative example in §9.
	for i := 0; i < 5 && tracker.Len() > 0; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		tracker.DrainGCQueue()
	}

	assert.Equal(t, 0, tracker.Len())
	assert.EqualValues(t, 1, root.GCLeaks())
}
