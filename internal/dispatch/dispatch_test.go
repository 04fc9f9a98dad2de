package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/heap"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/reducer"
)

func newDriver(h *heap.Heap, files map[fkey.FileKey][]byte) *Driver {
	return &Driver{
		Heap: h,
		Read: func(key fkey.FileKey) ([]byte, error) {
			b, ok := files[key]
			if !ok {
				return nil, errors.New("not found")
			}
			return b, nil
		},
		Workers:    4,
		BucketSize: 2,
		Options:    popts.ParsingOptions{TypesMode: popts.TypesAllowed},
		ResolveMod: func(key fkey.FileKey, hint reducer.Hint) fkey.ModuleName { return fkey.ModuleName(key.Path()) },
	}
}

func TestParse_ColdRunPartitionsEveryKey(t *testing.T) {
	h := heap.New()
	files := map[fkey.FileKey][]byte{
		fkey.NewSource("a.js"): []byte("/* @flow */\nexport function f() {}\n"),
		fkey.NewSource("b.js"): []byte("export const x = 1;\n"),
	}
	d := newDriver(h, files)
	d.Options = popts.ParsingOptions{TypesMode: popts.TypesForbiddenByDefault}

	res, err := d.Parse(context.Background(), []fkey.FileKey{fkey.NewSource("a.js"), fkey.NewSource("b.js")})
	require.NoError(t, err)

	assert.Contains(t, res.Parsed, fkey.NewSource("a.js"))
	assert.Contains(t, res.Unparsed, fkey.NewSource("b.js"))
}

func TestReparse_NoChangeYieldsUnchanged(t *testing.T) {
	h := heap.New()
	content := []byte("/* @flow */\nexport function f() {}\n")
	key := fkey.NewSource("a.js")
	files := map[fkey.FileKey][]byte{key: content}
	d := newDriver(h, files)

	_, err := d.Parse(context.Background(), []fkey.FileKey{key})
	require.NoError(t, err)

	res, err := d.Reparse(context.Background(), []fkey.FileKey{key})
	require.NoError(t, err)

	assert.Contains(t, res.Unchanged, key)
	assert.Empty(t, res.Parsed)

	old, ok := h.GetOldFileHash(key)
	require.True(t, ok)
	current, ok := h.GetFileHash(key)
	require.True(t, ok)
	assert.Equal(t, current, old)
}

func TestReparse_ChangedBytesReparse(t *testing.T) {
	h := heap.New()
	key := fkey.NewSource("a.js")
	files := map[fkey.FileKey][]byte{key: []byte("/* @flow */\nexport function f() {}\n")}
	d := newDriver(h, files)

	_, err := d.Parse(context.Background(), []fkey.FileKey{key})
	require.NoError(t, err)

	files[key] = []byte("/* @flow */\nexport function g() {}\n")
	res, err := d.Reparse(context.Background(), []fkey.FileKey{key})
	require.NoError(t, err)

	assert.Contains(t, res.Parsed, key)
	assert.NotContains(t, res.Unchanged, key)
}

func TestEnsureParsed_FiltersAlreadyParsedKeys(t *testing.T) {
	h := heap.New()
	a := fkey.NewSource("a.js")
	b := fkey.NewSource("b.js")
	files := map[fkey.FileKey][]byte{
		a: []byte("/* @flow */\nexport function f() {}\n"),
		b: []byte("/* @flow */\nexport function g() {}\n"),
	}
	d := newDriver(h, files)

	_, err := d.Parse(context.Background(), []fkey.FileKey{a})
	require.NoError(t, err)

	res, err := d.EnsureParsed(context.Background(), []fkey.FileKey{a, b})
	require.NoError(t, err)

	assert.Empty(t, res.Changed)
	assert.Empty(t, res.NotFound)
	assert.True(t, h.HasAST(b))
}

func TestEnsureParsed_HashMismatchSurfacesChanged(t *testing.T) {
	h := heap.New()
	key := fkey.NewSource("a.js")
	files := map[fkey.FileKey][]byte{key: []byte("/* @flow */\nexport function f() {}\n")}
	d := newDriver(h, files)

	// No current AST (e.g. a prior run's type-check gate skipped it), but a
	// hash was recorded at H0 while disk now holds H1 — the case scenario 6
	// of §8 exercises.
	h.ParseMutator().AddUnparsed(key, fkey.ContentHash(999999), "")
	require.False(t, h.HasAST(key))

	res, err := d.EnsureParsed(context.Background(), []fkey.FileKey{key})
	require.NoError(t, err)

	assert.Contains(t, res.Changed, key)
}

func TestProgress_FiresWithFinalTotal(t *testing.T) {
	h := heap.New()
	key := fkey.NewSource("a.js")
	files := map[fkey.FileKey][]byte{key: []byte("export const x = 1;\n")}
	d := newDriver(h, files)

	var lastTotal, lastFinished int
	d.Progress = func(total, finished int) { lastTotal, lastFinished = total, finished }

	_, err := d.Parse(context.Background(), []fkey.FileKey{key})
	require.NoError(t, err)
	assert.Equal(t, 1, lastTotal)
	assert.Equal(t, 1, lastFinished)
}
