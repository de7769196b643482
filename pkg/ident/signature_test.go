package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternReturnsIdentityEqualStrings(t *testing.T) {
	in := NewInterner(10)

	a := in.Intern("Buffer.retain")
	b := in.Intern("Buffer.retain")

	require.Equal(t, a, b)
	assert.Equal(t, 1, in.Len())
}

func TestInternDegradesGracefullyPastCapacity(t *testing.T) {
	in := NewInterner(2)

	in.Intern("A.a")
	in.Intern("B.b")
	overflow := in.Intern("C.c")

	assert.Equal(t, MethodSignature("C.c"), overflow)
	assert.Equal(t, 2, in.Len(), "interner must not grow past capacity")
}

func TestBucketize(t *testing.T) {
	cases := map[int64]RefCountBucket{
		-1: BucketZero,
		0:  BucketZero,
		1:  BucketOne,
		2:  BucketTwo,
		3:  BucketMany,
		99: BucketMany,
	}
	for observed, want := range cases {
		assert.Equal(t, want, Bucketize(observed))
	}
}
