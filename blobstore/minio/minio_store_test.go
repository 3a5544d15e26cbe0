package minio

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "seg", NewStore(nil, "b").key("seg"))
	assert.Equal(t, "idx/seg", NewStore(nil, "b", WithPrefix("idx/")).key("seg"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("other")))
}

// TestStoreIntegration requires a MinIO instance on localhost:9000.
func TestStoreIntegration(t *testing.T) {
	store, err := Dial("localhost:9000", "minioadmin", "minioadmin", "test-bkdgo", WithPrefix("test-prefix/"))
	if err != nil {
		t.Skipf("minio client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := store.client.ListBuckets(ctx); err != nil {
		t.Skipf("minio not available: %v", err)
	}
	require.NoError(t, store.EnsureBucket(ctx))

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.bin", data))

	b, err := store.Open(ctx, "test.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), b.Size())

	buf := make([]byte, 5)
	n, err := b.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf[:n]))

	w, err := store.Create(ctx, "stream.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := blobstore.ReadFile(ctx, store, "stream.bin")
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(got))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.bin")
	assert.Contains(t, names, "stream.bin")

	require.NoError(t, store.Delete(ctx, "test.bin"))
	require.NoError(t, store.Delete(ctx, "stream.bin"))
	require.NoError(t, store.Delete(ctx, "stream.bin"))

	_, err = store.Open(ctx, "test.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = b.ReadAt(ctx, buf, int64(len(data)))
	assert.ErrorIs(t, err, io.EOF)
}
