package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/bkdgo/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	for _, useMmap := range []bool{true, false} {
		name := "read"
		if useMmap {
			name = "mmap"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewLocalStore(dir, WithMmap(useMmap))
			ctx := context.Background()

			data := []byte("hello world, this is a segment blob")

			w, err := store.Create(ctx, "segment-000001.kdb")
			require.NoError(t, err)
			n, err := w.Write(data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			require.NoError(t, w.Close())

			_, err = os.Stat(filepath.Join(dir, "segment-000001.kdb"))
			require.NoError(t, err)

			blob, err := store.Open(ctx, "segment-000001.kdb")
			require.NoError(t, err)
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err = blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			require.Equal(t, "world", string(buf))
			require.NoError(t, blob.Close())

			require.NoError(t, store.Put(ctx, "CURRENT", []byte("MANIFEST-000001.bin")))
			got, err := ReadFile(ctx, store, "CURRENT")
			require.NoError(t, err)
			assert.Equal(t, "MANIFEST-000001.bin", string(got))

			names, err := store.List(ctx, "segment-")
			require.NoError(t, err)
			assert.Equal(t, []string{"segment-000001.kdb"}, names)

			require.NoError(t, store.Delete(ctx, "segment-000001.kdb"))
			require.NoError(t, store.Delete(ctx, "segment-000001.kdb"), "deleting a missing blob succeeds")

			_, err = store.Open(ctx, "segment-000001.kdb")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestLocalStore_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	w, err := store.Create(ctx, "segment-000002.kdb")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_FaultInjection(t *testing.T) {
	dir := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("segment-", fs.Fault{FailAfterBytes: 8})
	store := NewLocalStore(dir, WithFileSystem(ffs))
	ctx := context.Background()

	w, err := store.Create(ctx, "segment-000003.kdb")
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.ErrorIs(t, err, fs.ErrInjected)
	require.NoError(t, w.Abort())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names, "failed writes must never become visible")

	// Other blobs are unaffected.
	require.NoError(t, store.Put(ctx, "MANIFEST-000001.bin", []byte("0123456789")))
	got, err := ReadFile(ctx, store, "MANIFEST-000001.bin")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestLocalStore_ListMissingDir(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
