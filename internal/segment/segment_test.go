package segment

import (
	"bytes"
	"context"
	"testing"

	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/hupe1980/bkdgo/internal/cache"
	"github.com/hupe1980/bkdgo/internal/compress"
	"github.com/hupe1980/bkdgo/model"
	"github.com/hupe1980/bkdgo/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlob = "segment-000001.kdb"

func writeSegment(t *testing.T, store *blobstore.MemoryStore, entries []model.Entry, opts Options) Info {
	t.Helper()
	ctx := context.Background()

	tree, err := Build(entries, opts)
	require.NoError(t, err)

	w, err := store.Create(ctx, testBlob)
	require.NoError(t, err)
	info, err := Write(ctx, w, 1, tree)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return info
}

func openSegment(t *testing.T, store *blobstore.MemoryStore, opts ...Option) *Segment {
	t.Helper()
	ctx := context.Background()
	blob, err := store.Open(ctx, testBlob)
	require.NoError(t, err)
	seg, err := Open(ctx, 1, blob, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })
	return seg
}

func collect(t *testing.T, seq func(func(model.Entry, error) bool)) []model.Entry {
	t.Helper()
	var out []model.Entry
	for e, err := range seq {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestWriteOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(11)

	for _, comp := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			entries := rng.UniqueEntries(3000, 3, -500, 500)
			oracle := testutil.NewOracle()
			for _, e := range entries {
				oracle.Insert(e.Point, e.Value)
			}

			opts := testOptions(3, 16, 8)
			opts.Compression = comp
			info := writeSegment(t, store, entries, opts)
			seg := openSegment(t, store)

			assert.Equal(t, 3000, seg.Count())
			assert.Equal(t, info.Count, seg.Count())
			assert.Equal(t, info.BlockCount, seg.BlockCount())
			assert.Equal(t, info.Root, seg.Root())
			assert.Equal(t, info.Size, seg.Size())
			assert.Equal(t, info.BBox, seg.BBox())
			assert.Equal(t, opts.PageSize(), seg.PageSize())
			assert.Equal(t, comp, seg.Options().Compression)
			require.NoError(t, seg.Validate(ctx))

			testutil.AssertSameEntries(t, oracle.Query(model.FullBox(3)), collect(t, seg.Scan(ctx)))
			for q := 0; q < 40; q++ {
				box := rng.Box(3, -600, 600)
				testutil.AssertSameEntries(t, oracle.Query(box), collect(t, seg.RangeQuery(ctx, box)), "box=%v", box)
			}

			for _, e := range entries[:200] {
				v, ok, err := seg.Get(ctx, e.Point)
				require.NoError(t, err)
				require.True(t, ok, "point %v", e.Point)
				assert.Equal(t, e.Value, v)

				p, ok, err := seg.FindValue(ctx, e.Value)
				require.NoError(t, err)
				require.True(t, ok, "value %d", e.Value)
				assert.Equal(t, e.Point, p)
			}

			_, ok, err := seg.Get(ctx, model.Point{10000, 0, 0})
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = seg.FindValue(ctx, 999999)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRangeQueryOutsideBoundingBox(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, testutil.NewRNG(1).UniqueEntries(100, 2, 0, 100), testOptions(2, 4, 4))

	c := cache.NewLRUBlockCache(1<<20, nil)
	seg := openSegment(t, store, WithBlockCache(c))
	assert.Empty(t, collect(t, seg.RangeQuery(ctx, model.NewBox(model.Point{200, 200}, model.Point{300, 300}))))

	hits, misses := c.Stats()
	assert.Zero(t, hits+misses, "no block is read for a disjoint box")
}

func TestRangeQueryLazyAndRestartable(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, testutil.NewRNG(2).UniqueEntries(500, 2, 0, 1000), testOptions(2, 8, 4))
	seg := openSegment(t, store)

	seq := seg.RangeQuery(ctx, model.FullBox(2))
	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
		if n == 10 {
			break
		}
	}
	assert.Equal(t, 10, n)

	assert.Len(t, collect(t, seq), 500, "a second iteration starts over")
}

func TestRangeQueryCanceled(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, testutil.NewRNG(2).UniqueEntries(100, 2, 0, 1000), testOptions(2, 8, 4))
	seg := openSegment(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	for _, err := range seg.Scan(ctx) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestBlockCacheServesRepeatedReads(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, testutil.NewRNG(4).UniqueEntries(200, 2, 0, 1000), testOptions(2, 8, 4))

	c := cache.NewLRUBlockCache(1<<20, nil)
	seg := openSegment(t, store, WithBlockCache(c))

	collect(t, seg.Scan(ctx))
	hits1, _ := c.Stats()
	collect(t, seg.Scan(ctx))
	hits2, _ := c.Stats()
	assert.Greater(t, hits2, hits1)
}

func TestCorruptPageIsReported(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	opts := testOptions(2, 8, 4)
	info := writeSegment(t, store, testutil.NewRNG(5).UniqueEntries(300, 2, 0, 1000), opts)

	// Flip a payload byte of the first leaf (address 0 is always a leaf).
	require.NoError(t, store.Corrupt(testBlob, pageHeaderSize+3))
	seg := openSegment(t, store)

	var gotErr error
	for _, err := range seg.Scan(ctx) {
		if err != nil {
			gotErr = err
		}
	}
	require.ErrorIs(t, gotErr, ErrCorruptBlock)
	var cbe *CorruptBlockError
	require.ErrorAs(t, gotErr, &cbe)
	assert.Equal(t, Address(0), cbe.Address)
	assert.Equal(t, model.SegmentID(1), cbe.Segment)

	assert.ErrorIs(t, seg.Validate(ctx), ErrCorruptBlock)
	assert.Greater(t, info.BlockCount, 1)
}

func TestBackReferenceIsReported(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	entries := testutil.NewRNG(8).UniqueEntries(300, 2, 0, 1000)

	tree, err := Build(entries, testOptions(2, 8, 4))
	require.NoError(t, err)
	root := &tree.blocks[tree.root]
	require.False(t, root.IsLeaf())
	root.Children[len(root.Children)-1] = tree.root

	w, err := store.Create(ctx, testBlob)
	require.NoError(t, err)
	_, err = Write(ctx, w, 1, tree)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	seg := openSegment(t, store)

	var gotErr error
	for _, err := range seg.Scan(ctx) {
		if err != nil {
			gotErr = err
		}
	}
	require.ErrorIs(t, gotErr, ErrCorruptBlock)
	var cbe *CorruptBlockError
	require.ErrorAs(t, gotErr, &cbe)
	assert.Equal(t, tree.root, cbe.Address)

	_, err = seg.ReadBlock(ctx, tree.root)
	assert.ErrorIs(t, err, ErrCorruptBlock)
	assert.ErrorIs(t, seg.Validate(ctx), ErrCorruptBlock)
}

func TestCorruptRootIsReported(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	opts := testOptions(2, 8, 4)
	info := writeSegment(t, store, testutil.NewRNG(6).UniqueEntries(300, 2, 0, 1000), opts)

	require.NoError(t, store.Corrupt(testBlob, int64(info.Root)*int64(info.PageSize)+4))
	seg := openSegment(t, store)

	_, _, err := seg.Get(ctx, model.Point{1, 1})
	if seg.MayContain(model.Point{1, 1}) {
		assert.ErrorIs(t, err, ErrCorruptBlock)
	}
	var gotErr error
	for _, err := range seg.Scan(ctx) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, ErrCorruptBlock)
}

func TestTruncatedBlobFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	info := writeSegment(t, store, testutil.NewRNG(7).UniqueEntries(100, 2, 0, 1000), testOptions(2, 8, 4))

	for _, size := range []int64{0, 10, info.Size - 1, info.Size / 2} {
		writeSegment(t, store, testutil.NewRNG(7).UniqueEntries(100, 2, 0, 1000), testOptions(2, 8, 4))
		require.NoError(t, store.Truncate(testBlob, size))

		blob, err := store.Open(ctx, testBlob)
		require.NoError(t, err)
		_, err = Open(ctx, 1, blob)
		assert.ErrorIs(t, err, ErrCorruptBlock, "size=%d", size)
	}
}

func TestCorruptMetaFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	info := writeSegment(t, store, testutil.NewRNG(8).UniqueEntries(100, 2, 0, 1000), testOptions(2, 8, 4))

	require.NoError(t, store.Corrupt(testBlob, info.Size-footerSize-5))
	blob, err := store.Open(ctx, testBlob)
	require.NoError(t, err)
	_, err = Open(ctx, 1, blob)
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestOpenRejectsForeignSegment(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, testutil.NewRNG(9).UniqueEntries(10, 2, 0, 1000), testOptions(2, 8, 4))

	blob, err := store.Open(ctx, testBlob)
	require.NoError(t, err)
	_, err = Open(ctx, 2, blob)
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestEmptySegment(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, nil, testOptions(2, 8, 4))
	seg := openSegment(t, store)

	assert.Equal(t, 0, seg.Count())
	assert.Nil(t, seg.BBox())
	assert.Empty(t, collect(t, seg.Scan(ctx)))
	assert.False(t, seg.MayContain(model.Point{0, 0}))
	require.NoError(t, seg.Validate(ctx))
}

func TestClosedSegment(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeSegment(t, store, testutil.NewRNG(10).UniqueEntries(50, 2, 0, 1000), testOptions(2, 8, 4))

	blob, err := store.Open(ctx, testBlob)
	require.NoError(t, err)
	seg, err := Open(ctx, 1, blob)
	require.NoError(t, err)
	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())

	var gotErr error
	for _, err := range seg.Scan(ctx) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, ErrClosed)
}

func TestWriteIsDeterministic(t *testing.T) {
	ctx := context.Background()
	entries := testutil.NewRNG(12).UniqueEntries(500, 2, 0, 1000)

	var a, b bytes.Buffer
	t1, err := Build(append([]model.Entry(nil), entries...), testOptions(2, 8, 4))
	require.NoError(t, err)
	_, err = Write(ctx, &a, 3, t1)
	require.NoError(t, err)

	t2, err := Build(append([]model.Entry(nil), entries...), testOptions(2, 8, 4))
	require.NoError(t, err)
	_, err = Write(ctx, &b, 3, t2)
	require.NoError(t, err)

	assert.Equal(t, a.Bytes(), b.Bytes())
}
