package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w, err := store.Create(ctx, "segment-000001.kdb")
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)

	_, err = store.Open(ctx, "segment-000001.kdb")
	assert.True(t, errors.Is(err, ErrNotFound), "blob is invisible until Close")

	require.NoError(t, w.Close())

	b, err := store.Open(ctx, "segment-000001.kdb")
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, store.Put(ctx, "segment-000002.kdb", []byte("x")))
	names, err := store.List(ctx, "segment-")
	require.NoError(t, err)
	assert.Equal(t, []string{"segment-000001.kdb", "segment-000002.kdb"}, names)

	require.NoError(t, store.Corrupt("segment-000002.kdb", 0))
	got, err := ReadFile(ctx, store, "segment-000002.kdb")
	require.NoError(t, err)
	assert.Equal(t, byte('x'^0xff), got[0])

	require.NoError(t, store.Truncate("segment-000001.kdb", 3))
	got, err = ReadFile(ctx, store, "segment-000001.kdb")
	require.NoError(t, err)
	assert.Equal(t, "012", string(got))

	require.NoError(t, store.Delete(ctx, "segment-000001.kdb"))
	_, err = store.Open(ctx, "segment-000001.kdb")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_Abort(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w, err := store.Create(ctx, "a")
	require.NoError(t, err)
	_, _ = w.Write([]byte("data"))
	require.NoError(t, w.Abort())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
