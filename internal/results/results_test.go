package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/fkey"
)

func TestMerge_UnionsSets(t *testing.T) {
	a := Empty()
	a.AddParsed(fkey.NewSource("a.js"))
	b := Empty()
	b.AddParsed(fkey.NewSource("b.js"))

	merged := Merge(a, b)
	assert.Len(t, merged.Parsed, 2)
}

func TestMerge_PreservesParallelListAlignment(t *testing.T) {
	a := Empty()
	a.AddFailure(fkey.NewSource("a.js"), Failure{Kind: Uncaught, Message: "boom"})
	b := Empty()
	b.AddFailure(fkey.NewSource("b.js"), Failure{Kind: ParseError, Message: "syntax"})

	merged := Merge(a, b)
	require.Len(t, merged.FailedKeys, 2)
	require.Len(t, merged.FailureReasons, 2)
	assert.Equal(t, fkey.NewSource("a.js"), merged.FailedKeys[0])
	assert.Equal(t, "boom", merged.FailureReasons[0].Message)
	assert.Equal(t, fkey.NewSource("b.js"), merged.FailedKeys[1])
	assert.Equal(t, "syntax", merged.FailureReasons[1].Message)
}

func TestMerge_Associative(t *testing.T) {
	a := Empty()
	a.AddParsed(fkey.NewSource("a.js"))
	b := Empty()
	b.AddParsed(fkey.NewSource("b.js"))
	c := Empty()
	c.AddParsed(fkey.NewSource("c.js"))

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))

	assert.Equal(t, left.Parsed, right.Parsed)
}

func TestMergeAll_Empty(t *testing.T) {
	merged := MergeAll(nil)
	assert.Empty(t, merged.Parsed)
}

func TestPartition_EachKeyInExactlyOneBucket(t *testing.T) {
	r := Empty()
	key := fkey.NewSource("a.js")
	r.AddParsed(key)

	buckets := 0
	for _, present := range []bool{
		has(r.Parsed, key), has(r.Unparsed, key), has(r.Changed, key),
		has(r.Unchanged, key), has(r.NotFound, key),
	} {
		if present {
			buckets++
		}
	}
	assert.Equal(t, 1, buckets)
}

func has(set map[fkey.FileKey]struct{}, key fkey.FileKey) bool {
	_, ok := set[key]
	return ok
}
