// Package handlers provides the concrete flowtypes.Handler implementations
// the scheduler dispatches snapshots to: a rotating JSONL file, a Kafka
// publisher, and a Docker leak/RSS correlator (SPEC_FULL.md §3).
//
// FileHandler is grounded on the teacher's internal/sinks.LocalFileSink:
// size-triggered rotation of a single append-only file, with the rotated
// file optionally passed through a compression codec before being left on
// disk for an operator (or cmd/flowtail) to pick up.
package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"flowtraced/pkg/compression"
	"flowtraced/pkg/flowtypes"
)

// fileRecord is one line of the JSONL output: a single leak record tagged
// with the metric family it was reported under.
type fileRecord struct {
	CaptureNanos int64                 `json:"capture_nanos"`
	MetricType   flowtypes.MetricType  `json:"metric_type"`
	FlowRepr     string                `json:"flow_repr"`
	LeakCount    uint64                `json:"leak_count"`
}

// FileHandler appends each snapshot's leak records as JSONL to a single
// file, rotating it once it reaches maxBytes and optionally compressing
// the rotated-out file with the configured codec.
type FileHandler struct {
	path       string
	maxBytes   int64
	maxBackups int
	codec      compression.Codec
	logger     *logrus.Logger

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileHandler creates a FileHandler writing to cfg.Path. The directory
// must already exist; NewFileHandler creates the file itself if absent.
func NewFileHandler(cfg flowtypes.FileHandlerConfig, logger *logrus.Logger) (*FileHandler, error) {
	if logger == nil {
		logger = logrus.New()
	}
	codec, err := compression.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	maxBytes := int64(cfg.MaxSizeMB) * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 64 * 1024 * 1024
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}

	h := &FileHandler{
		path:       cfg.Path,
		maxBytes:   maxBytes,
		maxBackups: maxBackups,
		codec:      codec,
		logger:     logger,
	}
	if err := h.openCurrent(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *FileHandler) openCurrent() error {
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file handler: open %s: %w", h.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file handler: stat %s: %w", h.path, err)
	}
	h.file = f
	h.size = info.Size()
	return nil
}

// Name implements flowtypes.Handler.
func (h *FileHandler) Name() string { return "file" }

// RequiredMetrics implements flowtypes.Handler: the file sink wants every
// metric family so operators get a complete JSONL record of everything the
// engine observed.
func (h *FileHandler) RequiredMetrics() map[flowtypes.MetricType]struct{} {
	want := make(map[flowtypes.MetricType]struct{}, len(flowtypes.AllMetricTypes))
	for _, mt := range flowtypes.AllMetricTypes {
		want[mt] = struct{}{}
	}
	return want
}

// OnMetrics implements flowtypes.Handler.
func (h *FileHandler) OnMetrics(snap flowtypes.MetricSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for mtype, payload := range snap.Metrics {
		for _, rec := range payload.Records {
			line, err := json.Marshal(fileRecord{
				CaptureNanos: snap.CaptureNanos,
				MetricType:   mtype,
				FlowRepr:     rec.FlowRepr,
				LeakCount:    rec.LeakCount,
			})
			if err != nil {
				return fmt.Errorf("file handler: marshal record: %w", err)
			}
			line = append(line, '\n')
			n, err := h.file.Write(line)
			if err != nil {
				return fmt.Errorf("file handler: write: %w", err)
			}
			h.size += int64(n)
		}
	}

	if h.size >= h.maxBytes {
		if err := h.rotateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// rotateLocked closes the current file, moves it aside (compressing the
// backup if a codec was configured), prunes backups beyond maxBackups, and
// reopens a fresh current file. Caller must hold h.mu.
func (h *FileHandler) rotateLocked() error {
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("file handler: close for rotation: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	backupPath := fmt.Sprintf("%s.%s%s", h.path, stamp, h.codec.Extension())

	if err := h.moveAndCompress(backupPath); err != nil {
		h.logger.WithError(err).WithField("path", h.path).Error("failed to rotate flow snapshot file")
	}

	h.pruneBackups()

	if err := h.openCurrent(); err != nil {
		return err
	}
	return nil
}

func (h *FileHandler) moveAndCompress(backupPath string) error {
	if h.codec == compression.CodecNone {
		return os.Rename(h.path, backupPath)
	}

	src, err := os.Open(h.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	wc, err := compression.Wrap(h.codec, dst)
	if err != nil {
		dst.Close()
		return err
	}
	buf := make([]byte, 64*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := wc.Write(buf[:n]); werr != nil {
				wc.Close()
				return werr
			}
		}
		if rerr != nil {
			break
		}
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return os.Remove(h.path)
}

func (h *FileHandler) pruneBackups() {
	dir := filepath.Dir(h.path)
	base := filepath.Base(h.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) > len(base) && e.Name()[:len(base)+1] == base+"." {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	if len(backups) <= h.maxBackups {
		return
	}
	// Backup names are timestamp-suffixed, so lexical order is chronological.
	for _, stale := range backups[:len(backups)-h.maxBackups] {
		os.Remove(stale)
	}
}

// Close flushes and closes the current file.
func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}
