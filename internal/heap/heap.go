// Package heap implements C4, the Heap Mutator Facade: the shared,
// transactionally-updated keyed store every worker writes through, per
// §4.4. Each entry carries a "current" and an "old" slot — a generational
// two-slot model that lets a reparse diff against the previous run and a
// rollback discard an in-flight transaction untouched (§9).
package heap

import (
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/pipeline"
)

// SlotKind is the closed set of payload shapes a slot can hold.
type SlotKind uint8

const (
	Parsed SlotKind = iota
	Unparsed
	Package
	NotFound
)

// PackageRecord is the Package slot's payload: either a successfully
// extracted PackageInfo or the error that prevented it.
type PackageRecord struct {
	Info *pipeline.PackageInfo
	Err  *pipeline.PackageError
}

// Slot is one generation's recorded state for a FileKey.
type Slot struct {
	Kind    SlotKind
	Parsed  *pipeline.Bundle
	Package *PackageRecord
}

// Entry is the per-FileKey record described in §3.1: current and old
// slots, plus the content hash each slot was written with.
type Entry struct {
	Current    Slot
	Old        Slot
	Hash       fkey.ContentHash
	HasHash    bool
	OldHash    fkey.ContentHash
	HasOldHash bool
}

// Handle is the opaque addressable reference §4.4's read-side operations
// pass around, avoiding a repeated key lookup once a caller already holds
// one. The same Handle type serves both the Parse mutator's direct heap
// reads and the Reparse mutator's transaction-overlaid reads; only how
// resolve is built differs.
type Handle struct {
	key     fkey.FileKey
	resolve func() *Entry
}

// Heap is the shared, concurrently-mutated store. Per §5, the key-space
// guarantees per-key single-writer semantics: the caller never hands two
// workers the same FileKey within one dispatch.
type Heap struct {
	entries sync.Map // map[fkey.FileKey]*atomic.Pointer[Entry]
	initTx  atomic.Bool
}

// New returns an empty Heap.
func New() *Heap {
	return &Heap{}
}

// SetInitialTransaction flags whether the in-flight transaction is a
// cold-start scan (§5's "initial-transaction" global state), which the
// Reducer consults to suppress duplicate work.
func (h *Heap) SetInitialTransaction(v bool) { h.initTx.Store(v) }

// IsInitialTransaction reports the current initial-transaction flag.
func (h *Heap) IsInitialTransaction() bool { return h.initTx.Load() }

func (h *Heap) addrFor(key fkey.FileKey) *atomic.Pointer[Entry] {
	v, _ := h.entries.LoadOrStore(key, &atomic.Pointer[Entry]{})
	return v.(*atomic.Pointer[Entry])
}

// GetFileAddr is the read-side lookup of §4.4: it never creates an entry,
// only finds one already written by a prior mutator call.
func (h *Heap) GetFileAddr(key fkey.FileKey) (Handle, bool) {
	v, ok := h.entries.Load(key)
	if !ok {
		return Handle{}, false
	}
	ptr := v.(*atomic.Pointer[Entry])
	return Handle{key: key, resolve: ptr.Load}, true
}

func (h Handle) entry() *Entry {
	if h.resolve == nil {
		return nil
	}
	return h.resolve()
}

// GetParse returns the current-slot parsed bundle for handle, or false if
// the current slot isn't a Parsed slot (or the handle is empty).
func (h Handle) GetParse() (*pipeline.Bundle, bool) {
	e := h.entry()
	if e == nil || e.Current.Kind != Parsed {
		return nil, false
	}
	return e.Current.Parsed, true
}

// GetFileHash returns the current-generation hash recorded for key.
func (h *Heap) GetFileHash(key fkey.FileKey) (fkey.ContentHash, bool) {
	handle, ok := h.GetFileAddr(key)
	if !ok {
		return 0, false
	}
	e := handle.entry()
	if e == nil || !e.HasHash {
		return 0, false
	}
	return e.Hash, true
}

// GetOldFileHash returns the previous-generation hash recorded for key.
func (h *Heap) GetOldFileHash(key fkey.FileKey) (fkey.ContentHash, bool) {
	handle, ok := h.GetFileAddr(key)
	if !ok {
		return 0, false
	}
	e := handle.entry()
	if e == nil || !e.HasOldHash {
		return 0, false
	}
	return e.OldHash, true
}

// HasAST is the ensure-parsed flow's read-side predicate (§4.7): whether
// key's current slot already holds a parsed AST.
func (h *Heap) HasAST(key fkey.FileKey) bool {
	handle, ok := h.GetFileAddr(key)
	if !ok {
		return false
	}
	_, has := handle.GetParse()
	return has
}

// shift computes the new Entry for a write: the slot being written becomes
// current, the previous current shifts to old, and hashes follow along —
// the generational two-slot model of §9. A key's very first write has no
// real prior generation to diff against; it seeds both the current and old
// hash with the same value so an immediate reparse of unchanged bytes
// still classifies as unchanged rather than perpetually "changed" (the
// reparse idempotence property of §8).
func shift(prev *Entry, slot Slot, hash fkey.ContentHash) *Entry {
	next := &Entry{Current: slot, Hash: hash, HasHash: true}
	if prev != nil && prev.HasHash {
		next.Old = prev.Current
		next.OldHash = prev.Hash
		next.HasOldHash = true
	} else {
		next.Old = slot
		next.OldHash = hash
		next.HasOldHash = true
	}
	return next
}

// closeStaleGeneration releases the native tree-sitter tree of the
// generation an Entry is about to stop referencing entirely. shift always
// keeps prev.Current alive as the new Old slot, so the only slot that ever
// falls off the two-generation window is prev.Old — unless it's aliased
// with prev.Current (the first-write seeding in shift sets both slots to
// the same Bundle), in which case it's still reachable and must not be
// closed. Call this exactly once, at the point prev stops being the heap's
// (or a committed transaction's) live entry — never speculatively, since
// Reparse writes aren't visible until Commit.
func closeStaleGeneration(prev *Entry) {
	if prev == nil || prev.Old.Kind != Parsed || prev.Old.Parsed == nil {
		return
	}
	if prev.Current.Kind == Parsed && prev.Current.Parsed == prev.Old.Parsed {
		return
	}
	prev.Old.Parsed.AST.Close()
}

// ModuleSet is the accumulating dirty-module set a mutator call returns,
// matching §3.1's `dirty_modules`.
type ModuleSet map[fkey.ModuleName]struct{}

func oneModule(name fkey.ModuleName) ModuleSet {
	if name == "" {
		return ModuleSet{}
	}
	return ModuleSet{name: struct{}{}}
}

// directWrite applies a write immediately to the heap, bypassing any
// transaction overlay — the Parse mutator's contract (§4.4: "writes
// directly; not rollback-safe").
func (h *Heap) directWrite(key fkey.FileKey, slot Slot, hash fkey.ContentHash, module fkey.ModuleName) ModuleSet {
	ptr := h.addrFor(key)
	prev := ptr.Load()
	closeStaleGeneration(prev)
	ptr.Store(shift(prev, slot, hash))
	return oneModule(module)
}

// ParseMutator is the direct-write mutator flavor of §4.4, used by the
// cold `parse` entry point.
type ParseMutator struct {
	heap *Heap
}

// ParseMutator returns the direct-write mutator bound to this heap.
func (h *Heap) ParseMutator() *ParseMutator {
	return &ParseMutator{heap: h}
}

func (m *ParseMutator) AddParsed(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName, bundle *pipeline.Bundle) ModuleSet {
	return m.heap.directWrite(key, Slot{Kind: Parsed, Parsed: bundle}, hash, module)
}

func (m *ParseMutator) AddUnparsed(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName) ModuleSet {
	return m.heap.directWrite(key, Slot{Kind: Unparsed}, hash, module)
}

func (m *ParseMutator) AddPackage(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName, pkg *PackageRecord) ModuleSet {
	return m.heap.directWrite(key, Slot{Kind: Package, Package: pkg}, hash, module)
}

func (m *ParseMutator) ClearNotFound(key fkey.FileKey, module fkey.ModuleName) ModuleSet {
	ptr := m.heap.addrFor(key)
	prev := ptr.Load()
	closeStaleGeneration(prev)
	next := &Entry{Current: Slot{Kind: NotFound}}
	if prev != nil {
		next.Old = prev.Current
		if prev.HasHash {
			next.OldHash = prev.Hash
			next.HasOldHash = true
		}
	}
	ptr.Store(next)
	return oneModule(module)
}
