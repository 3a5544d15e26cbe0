package segment

import (
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bkdgo/model"
)

type treeShape struct {
	root       Address
	blockCount int
	count      int
	dims       int
	leafCap    int
	fanout     int
	bbox       model.Box
}

type blockSource func(ctx context.Context, addr Address) (*Block, error)

// validateTree checks that every block is reachable exactly once, that block
// shapes respect B and F, and that every point satisfies the constraints of
// all its ancestors.
func validateTree(ctx context.Context, id model.SegmentID, src blockSource, shape treeShape) error {
	type frame struct {
		addr   Address
		bounds model.Box
	}

	visited := roaring.New()
	stack := []frame{{addr: shape.root, bounds: model.FullBox(shape.dims)}}
	points := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if int(f.addr) >= shape.blockCount {
			return corruptf(id, f.addr, "address beyond %d blocks", shape.blockCount)
		}
		if !visited.CheckedAdd(uint32(f.addr)) {
			return corruptf(id, f.addr, "block referenced more than once")
		}

		blk, err := src(ctx, f.addr)
		if err != nil {
			return err
		}

		if blk.IsLeaf() {
			if len(blk.Points) != len(blk.Values) {
				return corruptf(id, f.addr, "%d points but %d values", len(blk.Points), len(blk.Values))
			}
			if len(blk.Points) > shape.leafCap {
				return corruptf(id, f.addr, "leaf holds %d points, capacity %d", len(blk.Points), shape.leafCap)
			}
			for _, p := range blk.Points {
				if len(p) != shape.dims {
					return corruptf(id, f.addr, "point %v has %d dimensions", p, len(p))
				}
				if !f.bounds.Contains(p) {
					return corruptf(id, f.addr, "point %v violates ancestor splits %v", p, f.bounds)
				}
				if !shape.bbox.Contains(p) {
					return corruptf(id, f.addr, "point %v outside segment bounding box", p)
				}
			}
			points += len(blk.Points)
			continue
		}

		if len(blk.Children) != len(blk.Splits)+1 {
			return corruptf(id, f.addr, "%d children for %d splits", len(blk.Children), len(blk.Splits))
		}
		if len(blk.Children) < 2 || len(blk.Children) > shape.fanout {
			return corruptf(id, f.addr, "%d children, fanout %d", len(blk.Children), shape.fanout)
		}
		for i, sp := range blk.Splits {
			if sp.Axis < 0 || sp.Axis >= shape.dims {
				return corruptf(id, f.addr, "split axis %d out of range", sp.Axis)
			}
			if i > 0 && blk.Splits[i-1].Axis == sp.Axis && blk.Splits[i-1].Threshold >= sp.Threshold {
				return corruptf(id, f.addr, "thresholds not increasing on axis %d", sp.Axis)
			}
		}

		for i := len(blk.Children) - 1; i >= 0; i-- {
			bounds := make(model.Box, len(f.bounds))
			copy(bounds, f.bounds)
			if i > 0 {
				sp := blk.Splits[i-1]
				bounds[sp.Axis].Min = max(bounds[sp.Axis].Min, sp.Threshold)
			}
			if i < len(blk.Splits) {
				sp := blk.Splits[i]
				if sp.Threshold == math.MinInt64 {
					return corruptf(id, f.addr, "child %d has an empty range", i)
				}
				bounds[sp.Axis].Max = min(bounds[sp.Axis].Max, sp.Threshold-1)
			}
			stack = append(stack, frame{addr: blk.Children[i], bounds: bounds})
		}
	}

	if n := int(visited.GetCardinality()); n != shape.blockCount {
		return corruptf(id, NoAddress, "%d of %d blocks reachable from the root", n, shape.blockCount)
	}
	if points != shape.count {
		return corruptf(id, NoAddress, "found %d points, expected %d", points, shape.count)
	}
	return nil
}

// Validate checks the structural invariants of an in-memory tree.
func (t *Tree) Validate(ctx context.Context) error {
	bbox := t.bbox
	if bbox == nil {
		bbox = model.FullBox(t.opts.Dims)
	}
	return validateTree(ctx, 0, func(_ context.Context, addr Address) (*Block, error) {
		return t.Block(addr)
	}, treeShape{
		root:       t.root,
		blockCount: len(t.blocks),
		count:      t.count,
		dims:       t.opts.Dims,
		leafCap:    t.opts.LeafCapacity,
		fanout:     t.opts.Fanout,
		bbox:       bbox,
	})
}
