// Command flowtail is an operator CLI that tails the JSONL file internal/
// handlers.FileHandler writes, printing each leak record as a one-line
// human-readable summary. It never talks to the daemon directly — it only
// reads the file the daemon's file handler is configured to write to,
// matching the read-only spirit of spec.md §1's Non-goals.
//
// Grounded on the teacher's internal/monitors.logTailer: github.com/nxadm/
// tail configured with Follow/ReOpen for a log-rotation-safe tail, with the
// teacher's worker-pool fan-out dropped since this CLI has a single
// consumer (its own stdout) rather than a dispatch pipeline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nxadm/tail"

	"flowtraced/pkg/flowtypes"
)

// record mirrors the unexported JSON shape internal/handlers.FileHandler
// writes one line of per leak record.
type record struct {
	CaptureNanos int64                `json:"capture_nanos"`
	MetricType   flowtypes.MetricType `json:"metric_type"`
	FlowRepr     string               `json:"flow_repr"`
	LeakCount    uint64               `json:"leak_count"`
}

func main() {
	var path string
	var fromBeginning bool
	flag.StringVar(&path, "path", "", "Path to the flow snapshot JSONL file to tail")
	flag.BoolVar(&fromBeginning, "from-beginning", false, "Start at the beginning of the file instead of its current end")
	flag.Parse()

	if path == "" {
		fmt.Fprintln(os.Stderr, "flowtail: -path is required")
		os.Exit(1)
	}

	seek := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if fromBeginning {
		seek = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: seek,
		Poll:     false,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowtail: failed to tail %s: %v\n", path, err)
		os.Exit(1)
	}
	defer t.Cleanup()

	for line := range t.Lines {
		if line.Err != nil {
			fmt.Fprintf(os.Stderr, "flowtail: read error: %v\n", line.Err)
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line.Text), &rec); err != nil {
			fmt.Fprintf(os.Stderr, "flowtail: malformed record, skipping: %v\n", err)
			continue
		}
		fmt.Printf("[%s] leak_count=%d %s\n", rec.MetricType, rec.LeakCount, rec.FlowRepr)
	}
}
