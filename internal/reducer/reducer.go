// Package reducer implements C5, the Reducer: the glue from one FileKey to
// a pipeline outcome to a heap mutator call to an accumulator update
// (§4.5). It is the only component that touches both the Pipeline (C3) and
// the Heap Mutator (C4).
package reducer

import (
	"context"

	"github.com/standardbeagle/flowparse/internal/docblock"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/heap"
	"github.com/standardbeagle/flowparse/internal/hasher"
	"github.com/standardbeagle/flowparse/internal/pipeline"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/remoteexec"
	"github.com/standardbeagle/flowparse/internal/results"
)

// HintKind is the closed set of module-identity hints §4.5 resolves
// against: `Unknown, `Module(docblock), `Package(pkg).
type HintKind uint8

const (
	HintUnknown HintKind = iota
	HintModule
	HintPackage
)

// Hint is the payload passed to the injected module-identity resolver.
type Hint struct {
	Kind     HintKind
	Docblock docblock.Docblock
	Package  *pipeline.PackageInfo
}

// ModuleResolver resolves a FileKey (plus a hint about what's known of its
// contents so far) to the module identity every heap write is keyed by.
type ModuleResolver func(key fkey.FileKey, hint Hint) fkey.ModuleName

// heapReader is the read-side contract §4.4 gives both mutator flavors;
// *heap.Heap and *heap.Transaction both satisfy it structurally.
type heapReader interface {
	GetFileAddr(fkey.FileKey) (heap.Handle, bool)
	GetFileHash(fkey.FileKey) (fkey.ContentHash, bool)
	GetOldFileHash(fkey.FileKey) (fkey.ContentHash, bool)
}

// heapMutator is the write-side contract shared by the Parse and Reparse
// mutators.
type heapMutator interface {
	AddParsed(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName, bundle *pipeline.Bundle) heap.ModuleSet
	AddUnparsed(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName) heap.ModuleSet
	AddPackage(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName, pkg *heap.PackageRecord) heap.ModuleSet
	ClearNotFound(key fkey.FileKey, module fkey.ModuleName) heap.ModuleSet
}

// Config bundles everything one Reduce call needs beyond (acc, file_key):
// the shared reader, heap read/write handles, skip semantics, and the
// injected collaborators §4.5 and §9 call out as external.
type Config struct {
	Read func(fkey.FileKey) ([]byte, error)

	HeapRead   heapReader
	Mutator    heapMutator
	IsInitial  bool // the global "initial transaction" flag of §5
	ResolveMod ModuleResolver

	SkipChanged   bool
	SkipUnchanged bool

	MaxHeaderTokens int
	Noflow          func(fkey.FileKey) bool

	Options  popts.ParsingOptions
	Uploader remoteexec.Uploader
}

// Reduce executes the decision tree of §4.5 for one FileKey, mutating acc
// in place and returning it for chaining convenience.
func Reduce(ctx context.Context, acc *results.Results, key fkey.FileKey, cfg Config) *results.Results {
	handle, hadAddr := cfg.HeapRead.GetFileAddr(key)
	if cfg.IsInitial && hadAddr {
		if _, already := handle.GetParse(); already {
			return acc
		}
	}

	content, err := cfg.Read(key)
	if err != nil {
		if !cfg.SkipChanged {
			module := cfg.ResolveMod(key, Hint{Kind: HintUnknown})
			dirty := cfg.Mutator.ClearNotFound(key, module)
			acc.MarkDirty(dirty)
		}
		acc.AddNotFound(key)
		return acc
	}

	hash := hasher.Hash(content)

	if cfg.SkipChanged {
		current, ok := cfg.HeapRead.GetFileHash(key)
		if ok && hash != current {
			acc.AddChanged(key)
			return acc
		}
	}

	if cfg.SkipUnchanged {
		old, ok := cfg.HeapRead.GetOldFileHash(key)
		if ok && hash == old {
			acc.AddUnchanged(key)
			return acc
		}
	}

	docblockErrs, db := docblock.Parse(content, cfg.MaxHeaderTokens)
	if cfg.Noflow != nil && cfg.Noflow(key) {
		db = db.WithFlow(docblock.OptOut)
	}

	module := cfg.ResolveMod(key, Hint{Kind: HintModule, Docblock: db})

	if len(docblockErrs) > 0 {
		dirty := cfg.Mutator.AddUnparsed(key, hash, module)
		acc.MarkDirty(dirty)
		acc.AddFailure(key, results.Failure{Kind: results.DocblockErrors, Message: firstMessage(docblockErrs), DocblockErrors: docblockErrs})
		return acc
	}

	outcome := pipeline.Run(ctx, key, content, pipeline.Inputs{
		Options:  cfg.Options,
		Docblock: db,
		Uploader: cfg.Uploader,
	})

	switch outcome.Kind {
	case pipeline.OutcomeOk:
		dirty := cfg.Mutator.AddParsed(key, hash, module, outcome.Ok)
		acc.MarkDirty(dirty)
		acc.AddParsed(key)

	case pipeline.OutcomeRecovered:
		dirty := cfg.Mutator.AddUnparsed(key, hash, module)
		acc.MarkDirty(dirty)
		acc.AddFailure(key, results.Failure{Kind: results.ParseError, Message: firstParseErrorMessage(outcome.Recovered)})

	case pipeline.OutcomeExn:
		dirty := cfg.Mutator.AddUnparsed(key, hash, module)
		acc.MarkDirty(dirty)
		acc.AddFailure(key, results.Failure{Kind: results.Uncaught, Message: outcome.Exn.Message})

	case pipeline.OutcomeSkip:
		switch outcome.SkipKind {
		case pipeline.SkipPackage:
			pkgModule := cfg.ResolveMod(key, Hint{Kind: HintPackage, Package: outcome.Package.Info})
			dirty := cfg.Mutator.AddPackage(key, hash, pkgModule, &heap.PackageRecord{
				Info: outcome.Package.Info,
				Err:  outcome.Package.Err,
			})
			acc.MarkDirty(dirty)
			acc.AddPackageResult(key, outcome.Package.Err)

		default: // SkipResource, SkipNonFlow
			dirty := cfg.Mutator.AddUnparsed(key, hash, module)
			acc.MarkDirty(dirty)
			acc.AddUnparsed(key)
		}
	}

	return acc
}

func firstMessage(errs []docblock.Error) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}

func firstParseErrorMessage(r *pipeline.RecoveredBundle) string {
	if r == nil || len(r.ParseErrors) == 0 {
		return ""
	}
	return r.ParseErrors[0].Error()
}
