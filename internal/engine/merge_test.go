package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bkdgo/blobstore"
	"github.com/hupe1980/bkdgo/internal/resource"
	"github.com/hupe1980/bkdgo/internal/segment"
	"github.com/hupe1980/bkdgo/model"
	"github.com/hupe1980/bkdgo/testutil"
)

func TestDedupeNewestKeepsFirstCopy(t *testing.T) {
	entries := []model.Entry{
		{Point: model.Point{2, 2}, Value: 30},
		{Point: model.Point{1, 1}, Value: 10},
		{Point: model.Point{2, 2}, Value: 20},
		{Point: model.Point{0, 5}, Value: 40},
		{Point: model.Point{1, 1}, Value: 11},
	}
	got := dedupeNewest(entries)
	assert.Equal(t, []model.Entry{
		{Point: model.Point{0, 5}, Value: 40},
		{Point: model.Point{1, 1}, Value: 10},
		{Point: model.Point{2, 2}, Value: 30},
	}, got)
	assert.Empty(t, dedupeNewest(nil))
}

func TestPlanMergeTargetsSmallestFittingLevel(t *testing.T) {
	e := openEngine(t, blobstore.NewMemoryStore(), smallConfig(4))
	entries := testutil.NewRNG(20).UniqueEntries(15, 2, -50, 50)
	insertAll(t, e, entries)

	e.mu.Lock()
	defer e.mu.Unlock()
	require.Equal(t, 3, e.active.Len())
	require.NoError(t, e.rotateLocked())

	st := e.levels
	require.Equal(t, LevelOccupied, st[0].state)
	require.Equal(t, LevelOccupied, st[1].state)

	p, ok := e.planMergeLocked()
	require.True(t, ok)
	// 3 + 4 > 4 and 3 + 4 + 8 > 8, so level 2 is the target
	assert.Equal(t, 2, p.target)
	assert.Equal(t, []int{0, 1, 2}, p.marked)
	assert.Equal(t, 15, p.live)
	for _, l := range p.marked {
		assert.Equal(t, LevelMerging, e.levels[l].state)
	}

	e.abortMergeLocked(p)
	assert.Equal(t, LevelOccupied, e.levels[0].state)
	assert.Equal(t, LevelOccupied, e.levels[1].state)
	assert.Len(t, e.levels, 2)
	assert.Len(t, e.frozen, 1)
}

func TestMergeRespectsMemoryLimit(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64})
	e := openEngine(t, blobstore.NewMemoryStore(), smallConfig(4), WithResourceController(rc), WithBlockCacheSize(0))
	insertAll(t, e, testutil.NewRNG(21).UniqueEntries(4, 2, -50, 50))

	st := e.Stats()
	assert.Equal(t, 1, st.FrozenBuffers)
	assert.ErrorIs(t, st.LastMergeError, resource.ErrMemoryLimitExceeded)
	assert.NotErrorIs(t, st.LastMergeError, ErrMergeIO)
	var merr *MergeError
	require.ErrorAs(t, st.LastMergeError, &merr)
	assert.Equal(t, MergeStageRead, merr.Stage)
	assert.Equal(t, 4, e.Count())

	n, err := e.CountBox(ctx, model.FullBox(2))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMergeOfCorruptInputIsNotAnIOFailure(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	e, err := Open(ctx, store, smallConfig(8), WithBlockCacheSize(0))
	require.NoError(t, err)
	insertAll(t, e, testutil.NewRNG(22).UniqueEntries(8, 2, 0, 100))
	require.NoError(t, e.Close(ctx))

	blobs := segmentBlobs(t, store)
	require.Len(t, blobs, 1)
	require.NoError(t, store.Corrupt(blobs[0], 15))

	e = openEngine(t, store, Config{}, WithBlockCacheSize(0))
	insertAll(t, e, testutil.NewRNG(23).UniqueEntries(8, 2, 1000, 2000))

	st := e.Stats()
	assert.Equal(t, uint64(1), st.FailedMerges)
	assert.Equal(t, 1, st.FrozenBuffers)
	assert.ErrorIs(t, st.LastMergeError, segment.ErrCorruptBlock)
	assert.NotErrorIs(t, st.LastMergeError, ErrMergeIO)
	var merr *MergeError
	require.ErrorAs(t, st.LastMergeError, &merr)
	assert.Equal(t, MergeStageRead, merr.Stage)
	assert.Equal(t, "read", merr.Stage.String())
}
