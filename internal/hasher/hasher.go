// Package hasher implements C1, the Content Hasher: a streaming,
// non-cryptographic 64-bit digest used only for equality checks when
// deciding whether a file's bytes have changed since the last generation.
package hasher

import (
	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/flowparse/internal/fkey"
)

// Hasher accumulates bytes into a 64-bit digest, seeded at 0 (xxhash.New()'s
// own zero-seed default). Build one with New; the zero value holds no digest
// and is not usable.
type Hasher struct {
	d *xxhash.Digest
}

// New returns an initialized Hasher (the "init" operation of §4.1).
func New() *Hasher {
	return &Hasher{d: xxhash.New()}
}

// Update feeds more bytes into the running digest. It never returns an
// error: xxhash.Digest.Write is documented to always succeed.
func (h *Hasher) Update(b []byte) {
	_, _ = h.d.Write(b)
}

// Digest returns the current 64-bit fingerprint without resetting state.
func (h *Hasher) Digest() fkey.ContentHash {
	return fkey.ContentHash(h.d.Sum64())
}

// Hash is a convenience one-shot digest over a full byte slice, equivalent
// to New(); Update(b); Digest(), but avoids an allocation for the common
// case of hashing an already-buffered file.
func Hash(content []byte) fkey.ContentHash {
	return fkey.ContentHash(xxhash.Sum64(content))
}
