package remoteexec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingUploader struct {
	calls atomic.Int64
}

func (u *countingUploader) UploadBlob(ctx context.Context, blob []byte) (Digest, error) {
	u.calls.Add(1)
	return Digest("digest-" + string(blob)), nil
}

func TestCachedUploader_DedupsIdenticalBlobs(t *testing.T) {
	inner := &countingUploader{}
	c := NewCachedUploader(inner, time.Minute, 0)

	d1, err := c.UploadBlob(context.Background(), []byte("abc"))
	require.NoError(t, err)
	d2, err := c.UploadBlob(context.Background(), []byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedUploader_DifferentBlobsBothUpload(t *testing.T) {
	inner := &countingUploader{}
	c := NewCachedUploader(inner, time.Minute, 0)

	_, _ = c.UploadBlob(context.Background(), []byte("abc"))
	_, _ = c.UploadBlob(context.Background(), []byte("xyz"))

	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedUploader_ExpiredEntryReUploads(t *testing.T) {
	inner := &countingUploader{}
	c := NewCachedUploader(inner, time.Nanosecond, 0)

	_, _ = c.UploadBlob(context.Background(), []byte("abc"))
	time.Sleep(time.Millisecond)
	_, _ = c.UploadBlob(context.Background(), []byte("abc"))

	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedUploader_Stats(t *testing.T) {
	inner := &countingUploader{}
	c := NewCachedUploader(inner, time.Minute, 0)

	_, _ = c.UploadBlob(context.Background(), []byte("abc"))
	_, _ = c.UploadBlob(context.Background(), []byte("abc"))

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}
