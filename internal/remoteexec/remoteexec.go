// Package remoteexec implements the Remote Execution collaborator of
// §6.3: an optional blob-upload sink invoked only when a file's parsing
// options have `distributed` set (§4.3 step 11). A TTL'd, content-addressed
// de-duplication cache sits in front of the real uploader so a blob already
// uploaded within the TTL window is not sent again (a full cache passes
// uploads through uncached).
package remoteexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// Digest is the content address a successful upload is keyed by.
type Digest string

// Uploader is the external collaborator's single operation (§6.3):
// upload_blob(bytes) -> digest?. A nil, nil return is not possible; either
// a Digest or an error comes back.
type Uploader interface {
	UploadBlob(ctx context.Context, blob []byte) (Digest, error)
}

// cacheEntry is one de-duplicated upload record.
type cacheEntry struct {
	digest   Digest
	cachedAt int64 // UnixNano, for atomic TTL comparisons
}

const (
	DefaultTTL     = 30 * time.Minute
	DefaultMaxKeys = 10_000
)

// CachedUploader wraps an Uploader with a lock-free, TTL'd de-dup cache
// keyed by the blob's own content hash: re-uploading a byte-identical
// type_sig blob within the TTL window returns the previously-assigned
// digest without touching the network.
type CachedUploader struct {
	next Uploader

	entries  sync.Map // map[string]*cacheEntry, keyed by hex digest of blob
	ttlNanos int64
	maxKeys  int64

	count     atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewCachedUploader wraps next with a de-dup cache of the given TTL. A zero
// ttl falls back to DefaultTTL; a zero maxKeys falls back to DefaultMaxKeys.
func NewCachedUploader(next Uploader, ttl time.Duration, maxKeys int) *CachedUploader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &CachedUploader{
		next:     next,
		ttlNanos: ttl.Nanoseconds(),
		maxKeys:  int64(maxKeys),
	}
}

func blobKey(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// UploadBlob is the cached entry point. On a live cache hit it returns the
// stored digest; otherwise it delegates to the wrapped Uploader and caches
// the result (unless the cache is already at capacity, in which case the
// upload still happens but is not cached — a full cache degrades to
// pass-through rather than rejecting uploads).
func (c *CachedUploader) UploadBlob(ctx context.Context, blob []byte) (Digest, error) {
	key := blobKey(blob)
	now := time.Now().UnixNano()

	if v, ok := c.entries.Load(key); ok {
		entry := v.(*cacheEntry)
		if now-atomic.LoadInt64(&entry.cachedAt) <= c.ttlNanos {
			c.hits.Add(1)
			return entry.digest, nil
		}
		c.entries.Delete(key)
		c.count.Add(-1)
		c.evictions.Add(1)
	}

	c.misses.Add(1)
	digest, err := c.next.UploadBlob(ctx, blob)
	if err != nil {
		return "", err
	}

	if c.count.Load() < c.maxKeys {
		c.entries.Store(key, &cacheEntry{digest: digest, cachedAt: now})
		c.count.Add(1)
	}
	return digest, nil
}

// Stats reports cache hit/miss/eviction counters, useful for the profiling
// log line a caller with `distributed` on may want to emit.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Count     int64
}

func (c *CachedUploader) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Count:     c.count.Load(),
	}
}
