//go:build leaktests
// +build leaktests

package dispatch

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/goleak"

	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/heap"
)

// TestParse_WorkerPoolLeavesNoGoroutines verifies the errgroup-bounded
// worker pool used by Parse/Reparse/EnsureParsed tears down cleanly —
// every worker goroutine exits once its buckets are drained.
func TestParse_WorkerPoolLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := heap.New()
	files := map[fkey.FileKey][]byte{}
	keys := make([]fkey.FileKey, 0, 50)
	for i := 0; i < 50; i++ {
		key := fkey.NewSource(fmt.Sprintf("file%d.js", i))
		files[key] = []byte("export const x = 1;\n")
		keys = append(keys, key)
	}
	d := newDriver(h, files)
	d.Workers = 8
	d.BucketSize = 3

	_, err := d.Parse(context.Background(), keys)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
}
