// Package results implements C6, the Result Accumulator & Merger: the
// per-worker outcome set and its associative, commutative combinator
// (§4.6).
package results

import (
	"github.com/standardbeagle/flowparse/internal/docblock"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/pipeline"
)

// FailureKind is the closed ParseFailure variant set of §3.1.
type FailureKind uint8

const (
	Uncaught FailureKind = iota
	DocblockErrors
	ParseError
)

// Failure is one (file_key, reason) pair's reason half, carried in the
// `failure_reasons` parallel list.
type Failure struct {
	Kind           FailureKind
	Message        string
	DocblockErrors []docblock.Error
}

// Results is the aggregate of §3.1: five FileKey sets, a dirty-module set,
// and two parallel list pairs. Every field is safe to read directly; all
// mutation should go through the Add* helpers so the two parallel-list
// pairs never drift out of alignment.
type Results struct {
	Parsed    map[fkey.FileKey]struct{}
	Unparsed  map[fkey.FileKey]struct{}
	Changed   map[fkey.FileKey]struct{}
	Unchanged map[fkey.FileKey]struct{}
	NotFound  map[fkey.FileKey]struct{}

	FailedKeys     []fkey.FileKey
	FailureReasons []Failure

	PackageKeys   []fkey.FileKey
	PackageErrors []*pipeline.PackageError // nil entry = success

	DirtyModules map[fkey.ModuleName]struct{}
}

// Empty returns a Results with every set and list empty, ready to
// accumulate into (§4.6).
func Empty() *Results {
	return &Results{
		Parsed:       map[fkey.FileKey]struct{}{},
		Unparsed:     map[fkey.FileKey]struct{}{},
		Changed:      map[fkey.FileKey]struct{}{},
		Unchanged:    map[fkey.FileKey]struct{}{},
		NotFound:     map[fkey.FileKey]struct{}{},
		DirtyModules: map[fkey.ModuleName]struct{}{},
	}
}

func (r *Results) AddParsed(key fkey.FileKey)    { r.Parsed[key] = struct{}{} }
func (r *Results) AddUnparsed(key fkey.FileKey)  { r.Unparsed[key] = struct{}{} }
func (r *Results) AddChanged(key fkey.FileKey)   { r.Changed[key] = struct{}{} }
func (r *Results) AddUnchanged(key fkey.FileKey) { r.Unchanged[key] = struct{}{} }
func (r *Results) AddNotFound(key fkey.FileKey)  { r.NotFound[key] = struct{}{} }

func (r *Results) AddFailure(key fkey.FileKey, reason Failure) {
	r.FailedKeys = append(r.FailedKeys, key)
	r.FailureReasons = append(r.FailureReasons, reason)
}

func (r *Results) AddPackageResult(key fkey.FileKey, err *pipeline.PackageError) {
	r.PackageKeys = append(r.PackageKeys, key)
	r.PackageErrors = append(r.PackageErrors, err)
}

func (r *Results) MarkDirty(modules map[fkey.ModuleName]struct{}) {
	for m := range modules {
		r.DirtyModules[m] = struct{}{}
	}
}

// Merge implements §4.6: set-union on the five outcome sets and the
// dirty-module set; concatenation (in a, then b order) on the two
// parallel-list pairs, preserving per-entry alignment. Merge is
// associative; it is commutative up to the unspecified ordering within the
// two parallel-list pairs (§3.2).
func Merge(a, b *Results) *Results {
	out := Empty()
	unionInto(out.Parsed, a.Parsed, b.Parsed)
	unionInto(out.Unparsed, a.Unparsed, b.Unparsed)
	unionInto(out.Changed, a.Changed, b.Changed)
	unionInto(out.Unchanged, a.Unchanged, b.Unchanged)
	unionInto(out.NotFound, a.NotFound, b.NotFound)
	unionModulesInto(out.DirtyModules, a.DirtyModules, b.DirtyModules)

	out.FailedKeys = append(append([]fkey.FileKey{}, a.FailedKeys...), b.FailedKeys...)
	out.FailureReasons = append(append([]Failure{}, a.FailureReasons...), b.FailureReasons...)

	out.PackageKeys = append(append([]fkey.FileKey{}, a.PackageKeys...), b.PackageKeys...)
	out.PackageErrors = append(append([]*pipeline.PackageError{}, a.PackageErrors...), b.PackageErrors...)

	return out
}

func unionInto(dst, a, b map[fkey.FileKey]struct{}) {
	for k := range a {
		dst[k] = struct{}{}
	}
	for k := range b {
		dst[k] = struct{}{}
	}
}

func unionModulesInto(dst, a, b map[fkey.ModuleName]struct{}) {
	for k := range a {
		dst[k] = struct{}{}
	}
	for k := range b {
		dst[k] = struct{}{}
	}
}

// MergeAll folds Merge over a slice of partial Results, matching how the
// Dispatch Driver combines per-worker accumulators (§4.7). An empty slice
// returns Empty().
func MergeAll(parts []*Results) *Results {
	out := Empty()
	for _, p := range parts {
		out = Merge(out, p)
	}
	return out
}
