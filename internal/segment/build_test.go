package segment

import (
	"cmp"
	"context"
	"slices"
	"testing"

	"github.com/hupe1980/bkdgo/model"
	"github.com/hupe1980/bkdgo/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(dims, leafCap, fanout int) Options {
	o := DefaultOptions(dims)
	o.LeafCapacity = leafCap
	o.Fanout = fanout
	return o
}

func TestBuildSmallInputIsSingleLeaf(t *testing.T) {
	entries := []model.Entry{
		{Point: model.Point{1, 2}, Value: 1},
		{Point: model.Point{3, 4}, Value: 2},
	}
	tree, err := Build(entries, testOptions(2, 4, 4))
	require.NoError(t, err)

	require.Len(t, tree.Blocks(), 1)
	assert.Equal(t, Address(0), tree.Root())
	assert.True(t, tree.Blocks()[0].IsLeaf())
	assert.Equal(t, 2, tree.Count())
	assert.Equal(t, model.Box{{Min: 1, Max: 3}, {Min: 2, Max: 4}}, tree.BBox())
}

func TestBuildEmpty(t *testing.T) {
	tree, err := Build(nil, testOptions(3, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, tree.Count())
	assert.Nil(t, tree.BBox())
	require.NoError(t, tree.Validate(context.Background()))
}

func TestBuildStructuralInvariants(t *testing.T) {
	rng := testutil.NewRNG(99)
	cases := []struct {
		name               string
		n, dims, leaf, fan int
		policy             SplitPolicy
		lo, hi             int64
	}{
		{"1d", 500, 1, 8, 4, RoundRobin, -10000, 10000},
		{"2d-binary", 1000, 2, 4, 2, RoundRobin, -1000, 1000},
		{"3d-wide", 2000, 3, 16, 8, RoundRobin, -100, 100},
		{"4d-maxspread", 1500, 4, 10, 5, MaxSpread, -50, 50},
		{"narrow-range", 800, 2, 3, 16, RoundRobin, 0, 40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := testOptions(tc.dims, tc.leaf, tc.fan)
			opts.SplitPolicy = tc.policy
			entries := rng.UniqueEntries(tc.n, tc.dims, tc.lo, tc.hi)
			want := slices.Clone(entries)

			tree, err := Build(entries, opts)
			require.NoError(t, err)
			require.NoError(t, tree.Validate(context.Background()))

			assert.Equal(t, Address(len(tree.Blocks())-1), tree.Root(), "root is emitted last")

			var got []model.Entry
			for addr, blk := range tree.Blocks() {
				if blk.IsLeaf() {
					assert.LessOrEqual(t, len(blk.Points), tc.leaf)
					for i := range blk.Points {
						got = append(got, model.Entry{Point: blk.Points[i], Value: blk.Values[i]})
					}
					continue
				}
				assert.LessOrEqual(t, len(blk.Children), tc.fan)
				assert.Len(t, blk.Children, len(blk.Splits)+1)
				for _, c := range blk.Children {
					assert.Less(t, int(c), addr, "children precede their parent")
				}
			}
			testutil.AssertSameEntries(t, want, got)
		})
	}
}

func TestBuildRoundRobinAxisByDepth(t *testing.T) {
	rng := testutil.NewRNG(5)
	tree, err := Build(rng.UniqueEntries(400, 3, -1000, 1000), testOptions(3, 4, 4))
	require.NoError(t, err)

	type frame struct {
		addr  Address
		depth int
	}
	stack := []frame{{tree.Root(), 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		blk := tree.Blocks()[f.addr]
		if blk.IsLeaf() {
			continue
		}
		for _, s := range blk.Splits {
			assert.Equal(t, f.depth%3, s.Axis)
		}
		for _, c := range blk.Children {
			stack = append(stack, frame{c, f.depth + 1})
		}
	}
}

func TestBuildSkewedAxis(t *testing.T) {
	// Most points share x=0, so x quantiles collapse onto one value.
	var entries []model.Entry
	for i := 0; i < 300; i++ {
		x := int64(0)
		if i%50 == 0 {
			x = int64(i)
		}
		entries = append(entries, model.Entry{Point: model.Point{x, int64(i)}, Value: model.Value(i + 1)})
	}
	tree, err := Build(entries, testOptions(2, 4, 4))
	require.NoError(t, err)
	require.NoError(t, tree.Validate(context.Background()))
	assert.Equal(t, 300, tree.Count())
}

func TestBuildDuplicatePoints(t *testing.T) {
	var entries []model.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, model.Entry{Point: model.Point{7, 7}, Value: model.Value(i)})
	}
	_, err := Build(entries, testOptions(2, 4, 4))
	assert.ErrorIs(t, err, ErrDuplicatePoint)
}

func TestBuildDimensionMismatch(t *testing.T) {
	_, err := Build([]model.Entry{{Point: model.Point{1}, Value: 1}}, testOptions(2, 4, 4))
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions(2).Validate())
	assert.ErrorIs(t, testOptions(0, 4, 4).Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, testOptions(2, 0, 4).Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, testOptions(2, 4, 1).Validate(), ErrInvalidOptions)

	o := DefaultOptions(2)
	o.SplitPolicy = SplitPolicy(9)
	assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
}

func TestPageSize(t *testing.T) {
	// Leaf: 128 * (2*8 + 8) = 3072, + 12 header -> 3584.
	assert.Equal(t, 3584, PageSize(2, 128, 16))
	// Inner dominates: 15*10 + 16*4 + 12 = 226 -> 512.
	assert.Equal(t, 512, PageSize(1, 1, 16))
	assert.Zero(t, PageSize(3, 50, 200)%512)
}

func TestSelectKth(t *testing.T) {
	rng := testutil.NewRNG(3)
	for _, n := range []int{1, 2, 3, 10, 100, 1000} {
		entries := make([]model.Entry, n)
		for i := range entries {
			// Narrow range forces many ties.
			entries[i] = model.Entry{Point: model.Point{rng.Int64Range(0, int64(n/4))}}
		}
		sorted := make([]int64, n)
		for i, e := range entries {
			sorted[i] = e.Point[0]
		}
		slices.Sort(sorted)

		for _, k := range []int{0, n / 3, n / 2, n - 1} {
			work := slices.Clone(entries)
			selectKth(work, k, 0)
			assert.Equal(t, sorted[k], work[k].Point[0], "n=%d k=%d", n, k)
			for i := 0; i < k; i++ {
				assert.LessOrEqual(t, work[i].Point[0], work[k].Point[0])
			}
			for i := k + 1; i < n; i++ {
				assert.GreaterOrEqual(t, work[i].Point[0], work[k].Point[0])
			}
		}
	}
}

func TestPartitionQuantiles(t *testing.T) {
	entries := make([]model.Entry, 100)
	for i := range entries {
		entries[i] = model.Entry{Point: model.Point{int64(99 - i)}}
	}
	splits, bounds := partition(entries, 0, 4)
	assert.Equal(t, []Split{{0, 25}, {0, 50}, {0, 75}}, splits)
	assert.Equal(t, []int{25, 50, 75}, bounds)

	slices.SortFunc(entries[:25], func(a, b model.Entry) int { return cmp.Compare(a.Point[0], b.Point[0]) })
	assert.Equal(t, int64(0), entries[0].Point[0])
	assert.Equal(t, int64(24), entries[24].Point[0])
}
