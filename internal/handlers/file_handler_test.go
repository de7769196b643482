package handlers

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtraced/pkg/flowtypes"
)

func TestFileHandlerWritesJSONLRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.jsonl")

	h, err := NewFileHandler(flowtypes.FileHandlerConfig{Path: path, MaxSizeMB: 64}, nil)
	require.NoError(t, err)
	defer h.Close()

	snap := flowtypes.MetricSnapshot{
		CaptureNanos: 1,
		Metrics: map[flowtypes.MetricType]flowtypes.MetricPayload{
			flowtypes.DirectLeaks: {
				Total: 1,
				Records: []flowtypes.LeakRecord{
					{FlowRepr: "root=Alloc.direct|final_ref=1|leak_count=1|leak_rate=100.0%|path=Alloc.direct[ref=0]", LeakCount: 1},
				},
			},
		},
	}
	require.NoError(t, h.OnMetrics(snap))
	require.NoError(t, h.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
		assert.Contains(t, scanner.Text(), "Alloc.direct")
	}
	assert.Equal(t, 1, lines)
}

func TestFileHandlerRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.jsonl")

	h, err := NewFileHandler(flowtypes.FileHandlerConfig{Path: path, MaxSizeMB: 0}, nil)
	require.NoError(t, err)
	h.maxBytes = 64 // force rotation after a tiny payload
	defer h.Close()

	snap := flowtypes.MetricSnapshot{
		Metrics: map[flowtypes.MetricType]flowtypes.MetricPayload{
			flowtypes.HeapLeaks: {
				Records: []flowtypes.LeakRecord{
					{FlowRepr: "root=Alloc.heap|final_ref=0|leak_count=1|leak_rate=100.0%|path=Alloc.heap[ref=0] -> Parser.parse[ref=1]", LeakCount: 1},
				},
			},
		},
	}
	require.NoError(t, h.OnMetrics(snap))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "expected the current file plus at least one rotated backup")
}

func TestFileHandlerRequiredMetricsIsEverything(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFileHandler(flowtypes.FileHandlerConfig{Path: filepath.Join(dir, "f.jsonl")}, nil)
	require.NoError(t, err)
	defer h.Close()

	want := h.RequiredMetrics()
	assert.Len(t, want, len(flowtypes.AllMetricTypes))
	for _, mt := range flowtypes.AllMetricTypes {
		_, ok := want[mt]
		assert.True(t, ok)
	}
}
