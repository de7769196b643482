// Package ident provides the canonical, identity-comparable method-signature
// strings that key every node of the flow trie, plus the refcount
// quantization used alongside them.
//
// Grounded on the teacher's pkg/deduplication (xxhash-keyed cache with a
// capacity bound) and on the sharded-intern idea surveyed in the example
// pack's lock-free string interner — reworked here with a plain
// sync.RWMutex-guarded map. The engine interns a signature on every intake
// call; a string already interned is resolved under the read lock alone.
package ident

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// MethodSignature is an interned UTF-8 string of the form
// "ClassSimpleName.methodName". Two equal signatures returned by the same
// Interner are identity-equal (==) as long as the interner had spare
// capacity when both were interned.
type MethodSignature string

// RefCountBucket quantizes an externally observed refcount into one of four
// buckets: 0 (released to zero), 1, 2, or 3-or-more.
type RefCountBucket uint8

const (
	BucketZero RefCountBucket = 0
	BucketOne  RefCountBucket = 1
	BucketTwo  RefCountBucket = 2
	BucketMany RefCountBucket = 3
)

// Bucketize quantizes an observed refcount into a RefCountBucket.
func Bucketize(observed int64) RefCountBucket {
	switch {
	case observed <= 0:
		return BucketZero
	case observed == 1:
		return BucketOne
	case observed == 2:
		return BucketTwo
	default:
		return BucketMany
	}
}

// Interner is a fixed-capacity, thread-safe pool of canonical strings.
// Once Capacity distinct strings have been interned, further distinct
// strings are returned un-interned (by value, not by identity) — callers
// must compare by value, never assume two un-interned signatures for equal
// text share an underlying string header.
type Interner struct {
	mu       sync.RWMutex
	table    map[uint64][]MethodSignature
	size     int
	capacity int

	lookups int64
	hits    int64
}

// NewInterner creates an interner bounded to capacity distinct strings.
// A capacity of 0 or less falls back to a sane default.
func NewInterner(capacity int) *Interner {
	if capacity <= 0 {
		capacity = 65536
	}
	return &Interner{
		table:    make(map[uint64][]MethodSignature),
		capacity: capacity,
	}
}

// Intern returns the canonical MethodSignature for s. Two calls with equal
// s return identity-equal results while the interner has capacity; once
// full, new distinct strings are handed back un-interned (degrading
// equality checks to value comparison for those entries only).
func (in *Interner) Intern(s string) MethodSignature {
	h := xxhash.Sum64String(s)

	in.mu.RLock()
	for _, cand := range in.table[h] {
		if string(cand) == s {
			in.mu.RUnlock()
			return cand
		}
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()

	// Re-check under the write lock: another goroutine may have interned
	// the same string while we waited.
	for _, cand := range in.table[h] {
		if string(cand) == s {
			return cand
		}
	}

	in.lookups++
	if in.size >= in.capacity {
		return MethodSignature(s)
	}

	canonical := MethodSignature(s)
	in.table[h] = append(in.table[h], canonical)
	in.size++
	in.hits++
	return canonical
}

// Stats reports interner occupancy for diagnostics.
type Stats struct {
	Size     int
	Capacity int
}

// Stats returns current interner occupancy.
func (in *Interner) Stats() Stats {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return Stats{Size: in.size, Capacity: in.capacity}
}

// Len reports the number of distinct strings currently interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.size
}
