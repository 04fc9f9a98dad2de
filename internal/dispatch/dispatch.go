// Package dispatch implements C7, the Dispatch Driver: the three
// user-facing entry points (parse, reparse, ensure_parsed), each a
// worker-parallel fold of the Reducer over a FileKey set with the partial
// accumulators merged back together (§4.7).
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/flowparse/internal/debug"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/heap"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/reducer"
	"github.com/standardbeagle/flowparse/internal/remoteexec"
	"github.com/standardbeagle/flowparse/internal/results"
)

// ErrPartialResults is returned alongside whatever partial Results a
// cancelled run managed to accumulate. Per §5's cancellation policy, that
// partial value is unspecified and callers must not use it as if it were
// a complete run.
var ErrPartialResults = errors.New("dispatch: cancelled, results are partial and must be discarded")

// Progress is the optional per-bucket callback (§4.7): total elements in
// the run and how many of those elements have finished so far.
type Progress func(total, finished int)

// Driver is C7, bound to a heap, a worker count, and a file source.
type Driver struct {
	Heap        *heap.Heap
	Read        func(fkey.FileKey) ([]byte, error)
	Workers     int
	BucketSize  int
	Options     popts.ParsingOptions
	Uploader    remoteexec.Uploader
	ResolveMod  reducer.ModuleResolver
	Noflow      func(fkey.FileKey) bool
	MaxHeader   int
	Progress    Progress
	OnDirty     func(heap.ModuleSet)
	Profile     bool
}

func (d *Driver) workers() int {
	if d.Workers <= 0 {
		return 1
	}
	return d.Workers
}

func (d *Driver) bucketSize() int {
	if d.BucketSize <= 0 {
		return 32
	}
	return d.BucketSize
}

// buckets splits keys into the worker-pulled chunks the `next` primitive of
// §6.2 hands out; each worker repeatedly pulls the next bucket until the
// source is drained.
func buckets(keys []fkey.FileKey, size int) [][]fkey.FileKey {
	if size <= 0 {
		size = len(keys)
	}
	var out [][]fkey.FileKey
	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[i:end])
	}
	return out
}

// fold is the `fold(workers, job, neutral, merge, next)` primitive of
// §6.2: a bounded-parallelism errgroup pulls buckets, runs job over each
// bucket into a local accumulator seeded at neutral, and the results are
// combined with merge once every worker has drained the source.
func fold(ctx context.Context, workerCount int, bks [][]fkey.FileKey, onBucket func([]fkey.FileKey) *results.Results, progress Progress) (*results.Results, error) {
	total := 0
	for _, b := range bks {
		total += len(b)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount)

	out := make([]*results.Results, len(bks))
	var mu sync.Mutex
	finished := 0

	for i, b := range bks {
		i, b := i, b
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res := onBucket(b)
			out[i] = res

			mu.Lock()
			finished += len(b)
			snapshot := finished
			mu.Unlock()
			if progress != nil {
				progress(total, snapshot)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		partial := results.MergeAll(nonNil(out))
		return partial, ErrPartialResults
	}

	return results.MergeAll(out), nil
}

func nonNil(parts []*results.Results) []*results.Results {
	out := make([]*results.Results, 0, len(parts))
	for _, p := range parts {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (d *Driver) runFold(ctx context.Context, keys []fkey.FileKey, mkConfig func() reducer.Config) (*results.Results, error) {
	bks := buckets(keys, d.bucketSize())
	return fold(ctx, d.workers(), bks, func(bucket []fkey.FileKey) *results.Results {
		cfg := mkConfig()
		acc := results.Empty()
		for _, key := range bucket {
			reducer.Reduce(ctx, acc, key, cfg)
		}
		return acc
	}, d.Progress)
}

// Parse is the cold entry point: skip_changed=false, skip_unchanged=false,
// the direct-write Parse mutator.
func (d *Driver) Parse(ctx context.Context, keys []fkey.FileKey) (*results.Results, error) {
	start := time.Now()
	cfg := reducer.Config{
		Read:            d.Read,
		HeapRead:        d.Heap,
		Mutator:         d.Heap.ParseMutator(),
		IsInitial:       d.Heap.IsInitialTransaction(),
		ResolveMod:      d.ResolveMod,
		SkipChanged:     false,
		SkipUnchanged:   false,
		MaxHeaderTokens: d.MaxHeader,
		Noflow:          d.Noflow,
		Options:         d.Options,
		Uploader:        d.Uploader,
	}
	res, err := d.runFold(ctx, keys, func() reducer.Config { return cfg })
	if err == nil && d.OnDirty != nil {
		d.OnDirty(res.DirtyModules)
	}
	d.afterRun("parse", start, res, err)
	return res, err
}

// Reparse is the incremental entry point: skip_changed=false,
// skip_unchanged=true, the transaction-scoped Reparse mutator. After the
// fold, the transaction's close-out finalizers run, then the Driver
// commits.
func (d *Driver) Reparse(ctx context.Context, keys []fkey.FileKey) (*results.Results, error) {
	start := time.Now()
	tx := d.Heap.BeginTransaction()
	cfg := reducer.Config{
		Read:            d.Read,
		HeapRead:        tx,
		Mutator:         tx.Mutator(),
		IsInitial:       d.Heap.IsInitialTransaction(),
		ResolveMod:      d.ResolveMod,
		SkipChanged:     false,
		SkipUnchanged:   true,
		MaxHeaderTokens: d.MaxHeader,
		Noflow:          d.Noflow,
		Options:         d.Options,
		Uploader:        d.Uploader,
	}

	res, err := d.runFold(ctx, keys, func() reducer.Config { return cfg })
	if err != nil {
		tx.Rollback()
		d.afterRun("reparse", start, res, err)
		return res, err
	}

	tx.RecordUnchanged(keysOf(res.Unchanged))
	tx.RecordNotFound(keysOf(res.NotFound))
	tx.Commit()

	if d.OnDirty != nil {
		d.OnDirty(res.DirtyModules)
	}

	d.afterRun("reparse", start, res, nil)
	return res, nil
}

// EnsureParsed is the two-phase entry point of §4.7: filter to keys
// lacking a current AST, then run Parse with skip_changed=true over the
// filtered set, surfacing only changed ∪ not_found to the caller.
func (d *Driver) EnsureParsed(ctx context.Context, keys []fkey.FileKey) (*results.Results, error) {
	start := time.Now()

	var missing []fkey.FileKey
	for _, k := range keys {
		if !d.Heap.HasAST(k) {
			missing = append(missing, k)
		}
	}

	cfg := reducer.Config{
		Read:            d.Read,
		HeapRead:        d.Heap,
		Mutator:         d.Heap.ParseMutator(),
		IsInitial:       d.Heap.IsInitialTransaction(),
		ResolveMod:      d.ResolveMod,
		SkipChanged:     true,
		SkipUnchanged:   false,
		MaxHeaderTokens: d.MaxHeader,
		Noflow:          d.Noflow,
		Options:         d.Options,
		Uploader:        d.Uploader,
	}

	full, err := d.runFold(ctx, missing, func() reducer.Config { return cfg })
	if err != nil {
		d.afterRun("ensure_parsed", start, full, err)
		return full, err
	}

	surfaced := results.Empty()
	for k := range full.Changed {
		surfaced.AddChanged(k)
	}
	for k := range full.NotFound {
		surfaced.AddNotFound(k)
	}
	surfaced.MarkDirty(full.DirtyModules)

	d.afterRun("ensure_parsed", start, surfaced, nil)
	return surfaced, nil
}

func keysOf(set map[fkey.FileKey]struct{}) []fkey.FileKey {
	out := make([]fkey.FileKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// afterRun emits the profiling log line of §4.7: the six bucket counts
// plus the failed count and elapsed seconds, gated on distributed mode or
// an explicit profile flag.
func (d *Driver) afterRun(op string, start time.Time, res *results.Results, err error) {
	if !d.Profile && !d.Options.Distributed {
		return
	}
	if res == nil {
		return
	}
	debug.LogDispatch(
		"%s: parsed=%d unparsed=%d changed=%d unchanged=%d not_found=%d package_json=%d failed=%d elapsed=%.3fs cancelled=%v\n",
		op, len(res.Parsed), len(res.Unparsed), len(res.Changed), len(res.Unchanged),
		len(res.NotFound), len(res.PackageKeys), len(res.FailedKeys),
		time.Since(start).Seconds(), err != nil,
	)
}
