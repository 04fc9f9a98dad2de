package heap

import (
	"sync"

	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/pipeline"
)

// Transaction is the Reparse mutator's scope (§4.4, §9): writes land in an
// overlay and only become visible to the rest of the heap on Commit;
// Rollback discards the overlay untouched. Only the Driver creates and
// closes a Transaction — workers only ever see it through a Mutator.
type Transaction struct {
	heap *Heap

	mu      sync.Mutex
	overlay map[fkey.FileKey]*Entry
	dirty   map[fkey.ModuleName]struct{}
}

// BeginTransaction opens a new Reparse scope over h.
func (h *Heap) BeginTransaction() *Transaction {
	return &Transaction{
		heap:    h,
		overlay: make(map[fkey.FileKey]*Entry),
		dirty:   make(map[fkey.ModuleName]struct{}),
	}
}

// GetFileAddr resolves key through the transaction's overlay first, falling
// back to the committed heap — giving the Reducer's initial-transaction
// idempotence check (§4.4) visibility into writes this same transaction
// already made.
func (t *Transaction) GetFileAddr(key fkey.FileKey) (Handle, bool) {
	t.mu.Lock()
	e, ok := t.overlay[key]
	t.mu.Unlock()
	if ok {
		return Handle{key: key, resolve: func() *Entry { return e }}, true
	}
	return t.heap.GetFileAddr(key)
}

// GetFileHash mirrors Heap.GetFileHash, overlay-aware.
func (t *Transaction) GetFileHash(key fkey.FileKey) (fkey.ContentHash, bool) {
	h, ok := t.GetFileAddr(key)
	if !ok {
		return 0, false
	}
	e := h.entry()
	if e == nil || !e.HasHash {
		return 0, false
	}
	return e.Hash, true
}

// GetOldFileHash mirrors Heap.GetOldFileHash, overlay-aware.
func (t *Transaction) GetOldFileHash(key fkey.FileKey) (fkey.ContentHash, bool) {
	h, ok := t.GetFileAddr(key)
	if !ok {
		return 0, false
	}
	e := h.entry()
	if e == nil || !e.HasOldHash {
		return 0, false
	}
	return e.OldHash, true
}

// HasAST mirrors Heap.HasAST, overlay-aware.
func (t *Transaction) HasAST(key fkey.FileKey) bool {
	h, ok := t.GetFileAddr(key)
	if !ok {
		return false
	}
	_, has := h.GetParse()
	return has
}

func (t *Transaction) resolvePrev(key fkey.FileKey) *Entry {
	if h, ok := t.GetFileAddr(key); ok {
		return h.entry()
	}
	return nil
}

func (t *Transaction) writeOverlay(key fkey.FileKey, next *Entry, module fkey.ModuleName) ModuleSet {
	t.mu.Lock()
	t.overlay[key] = next
	if module != "" {
		t.dirty[module] = struct{}{}
	}
	t.mu.Unlock()
	return oneModule(module)
}

// ReparseMutator is the transaction-scoped mutator flavor of §4.4.
type ReparseMutator struct {
	tx *Transaction
}

// Mutator returns the Reparse mutator bound to this transaction.
func (t *Transaction) Mutator() *ReparseMutator {
	return &ReparseMutator{tx: t}
}

func (m *ReparseMutator) AddParsed(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName, bundle *pipeline.Bundle) ModuleSet {
	next := shift(m.tx.resolvePrev(key), Slot{Kind: Parsed, Parsed: bundle}, hash)
	return m.tx.writeOverlay(key, next, module)
}

func (m *ReparseMutator) AddUnparsed(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName) ModuleSet {
	next := shift(m.tx.resolvePrev(key), Slot{Kind: Unparsed}, hash)
	return m.tx.writeOverlay(key, next, module)
}

func (m *ReparseMutator) AddPackage(key fkey.FileKey, hash fkey.ContentHash, module fkey.ModuleName, pkg *PackageRecord) ModuleSet {
	next := shift(m.tx.resolvePrev(key), Slot{Kind: Package, Package: pkg}, hash)
	return m.tx.writeOverlay(key, next, module)
}

func (m *ReparseMutator) ClearNotFound(key fkey.FileKey, module fkey.ModuleName) ModuleSet {
	prev := m.tx.resolvePrev(key)
	next := &Entry{Current: Slot{Kind: NotFound}}
	if prev != nil {
		next.Old = prev.Current
		if prev.HasHash {
			next.OldHash = prev.Hash
			next.HasOldHash = true
		}
	}
	return m.tx.writeOverlay(key, next, module)
}

// RecordUnchanged is the reparse driver's transaction-close finalizer
// (§4.7): the Reducer's decision tree never touches the heap for files it
// classifies `unchanged` (to avoid a redundant write on the common-case
// path), so the old-slot hash has to be refreshed here in one batch
// instead, keeping the next generation's unchanged comparison correct.
func (t *Transaction) RecordUnchanged(keys []fkey.FileKey) {
	for _, key := range keys {
		prev := t.resolvePrev(key)
		if prev == nil || !prev.HasHash {
			continue
		}
		next := &Entry{
			Current:    prev.Current,
			Old:        prev.Current,
			Hash:       prev.Hash,
			HasHash:    true,
			OldHash:    prev.Hash,
			HasOldHash: true,
		}
		t.writeOverlay(key, next, "")
	}
}

// RecordNotFound is the reparse driver's transaction-close finalizer for
// files the fold classified `not_found` without an inline heap write
// (mirrors RecordUnchanged's batch pattern; harmless if a key was already
// written via ClearNotFound during the fold).
func (t *Transaction) RecordNotFound(keys []fkey.FileKey) {
	for _, key := range keys {
		prev := t.resolvePrev(key)
		next := &Entry{Current: Slot{Kind: NotFound}}
		if prev != nil {
			next.Old = prev.Current
			if prev.HasHash {
				next.OldHash = prev.Hash
				next.HasOldHash = true
			}
		}
		t.writeOverlay(key, next, "")
	}
}

// DirtyModules returns every module this transaction has touched so far.
func (t *Transaction) DirtyModules() ModuleSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(ModuleSet, len(t.dirty))
	for m := range t.dirty {
		out[m] = struct{}{}
	}
	return out
}

// Commit applies every overlaid write to the heap. Per-key writes are
// independent (the single-writer invariant of §5 means no two keys in the
// overlay can race with each other), so Commit needs no additional
// synchronization beyond the per-key atomic store already used by direct
// writes. The generation each overlaid entry replaces only becomes
// unreachable here, at the moment the store lands — closing it any earlier
// (e.g. when the Reducer called the Reparse mutator) would free a tree a
// Rollback is still supposed to leave the heap holding.
func (t *Transaction) Commit() {
	t.mu.Lock()
	overlay := t.overlay
	t.overlay = make(map[fkey.FileKey]*Entry)
	t.mu.Unlock()

	for key, entry := range overlay {
		addr := t.heap.addrFor(key)
		closeStaleGeneration(addr.Load())
		addr.Store(entry)
	}
}

// Rollback discards every overlaid write. The heap is left exactly as it
// was before the transaction began.
func (t *Transaction) Rollback() {
	t.mu.Lock()
	t.overlay = make(map[fkey.FileKey]*Entry)
	t.dirty = make(map[fkey.ModuleName]struct{})
	t.mu.Unlock()
}
