// Package compression wraps a rotated archive's underlying writer with one
// of the codecs the operator selected for internal/handlers.FileHandler
// (spec_full.md §3): none, gzip, zstd, lz4, or snappy. Each codec maps to a
// distinct library already declared by the teacher's go.mod, re-themed here
// from HTTP response-body compression (the teacher's pkg/compression) to
// at-rest archive compression for rotated JSONL snapshots.
package compression

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a selectable archive compression algorithm.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecLZ4    Codec = "lz4"
	CodecSnappy Codec = "snappy"
)

// ParseCodec normalizes a configured compression string into a Codec,
// defaulting to CodecNone for an empty value.
func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(s)) {
	case "", CodecNone:
		return CodecNone, nil
	case CodecGzip:
		return CodecGzip, nil
	case CodecZstd:
		return CodecZstd, nil
	case CodecLZ4:
		return CodecLZ4, nil
	case CodecSnappy:
		return CodecSnappy, nil
	default:
		return "", fmt.Errorf("compression: unknown codec %q", s)
	}
}

// Extension returns the conventional file suffix for codec, empty for
// CodecNone.
func (c Codec) Extension() string {
	switch c {
	case CodecGzip:
		return ".gz"
	case CodecZstd:
		return ".zst"
	case CodecLZ4:
		return ".lz4"
	case CodecSnappy:
		return ".sz"
	default:
		return ""
	}
}

// Wrap returns a WriteCloser that compresses everything written to it with
// codec before forwarding to w. Closing the returned writer flushes the
// codec's trailer and then closes w. CodecNone returns w itself.
func Wrap(codec Codec, w io.WriteCloser) (io.WriteCloser, error) {
	switch codec {
	case CodecNone, "":
		return w, nil
	case CodecGzip:
		return &gzipWriteCloser{gz: gzip.NewWriter(w), under: w}, nil
	case CodecZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("compression: zstd writer: %w", err)
		}
		return &zstdWriteCloser{zw: zw, under: w}, nil
	case CodecLZ4:
		return &lz4WriteCloser{lz: lz4.NewWriter(w), under: w}, nil
	case CodecSnappy:
		return &snappyWriteCloser{sw: snappy.NewBufferedWriter(w), under: w}, nil
	default:
		return nil, fmt.Errorf("compression: unknown codec %q", codec)
	}
}

type gzipWriteCloser struct {
	gz    *gzip.Writer
	under io.WriteCloser
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.gz.Write(p) }
func (g *gzipWriteCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.under.Close()
		return err
	}
	return g.under.Close()
}

type zstdWriteCloser struct {
	zw    *zstd.Encoder
	under io.WriteCloser
}

func (z *zstdWriteCloser) Write(p []byte) (int, error) { return z.zw.Write(p) }
func (z *zstdWriteCloser) Close() error {
	if err := z.zw.Close(); err != nil {
		z.under.Close()
		return err
	}
	return z.under.Close()
}

type lz4WriteCloser struct {
	lz    *lz4.Writer
	under io.WriteCloser
}

func (l *lz4WriteCloser) Write(p []byte) (int, error) { return l.lz.Write(p) }
func (l *lz4WriteCloser) Close() error {
	if err := l.lz.Close(); err != nil {
		l.under.Close()
		return err
	}
	return l.under.Close()
}

type snappyWriteCloser struct {
	sw    *snappy.Writer
	under io.WriteCloser
}

func (s *snappyWriteCloser) Write(p []byte) (int, error) { return s.sw.Write(p) }
func (s *snappyWriteCloser) Close() error {
	if err := s.sw.Close(); err != nil {
		s.under.Close()
		return err
	}
	return s.under.Close()
}
